package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"tubego/internal/fileutil"
	"tubego/internal/logging"
	"tubego/internal/retrieval"
)

type record struct {
	task      Task
	seq       uint64
	retriever retrieval.Retriever
}

// Registry is the coarse-locked in-memory task store.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*record
	seq    uint64
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDSource overrides id generation (tests).
func WithIDSource(next func() string) Option {
	return func(r *Registry) {
		if next != nil {
			r.newID = next
		}
	}
}

// New constructs an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tasks:  make(map[string]*record),
		now:    time.Now,
		newID:  newID,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "registry")
	return r
}

// Create inserts a new task in the starting state. The retriever is owned by
// the task and never shared.
func (r *Registry) Create(source string, retriever retrieval.Retriever) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.insertLocked(source)
	if err != nil {
		return Task{}, err
	}
	rec.retriever = retriever
	rec.task.Status = StatusStarting
	rec.task.Progress = "0%"
	r.logger.Debug("task created", logging.String(logging.FieldTaskID, rec.task.ID), logging.String("source", source))
	return rec.task, nil
}

// CreateFromFile registers an existing work-dir file as a task that is ready
// for upload.
func (r *Registry) CreateFromFile(path string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.insertLocked(LocalSource)
	if err != nil {
		return Task{}, err
	}
	rec.task.Status = StatusSuccess
	rec.task.Progress = "100%"
	rec.task.ArtifactPath = path
	rec.task.ArtifactName = filepath.Base(path)
	rec.task.Title = rec.task.ArtifactName
	return rec.task, nil
}

func (r *Registry) insertLocked(source string) (*record, error) {
	for range maxIDAttempts {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, exists := r.tasks[id]; exists {
			r.logger.Debug("task id collision, retrying", logging.String(logging.FieldTaskID, id))
			continue
		}
		now := r.now()
		r.seq++
		rec := &record{
			seq: r.seq,
			task: Task{
				ID:        id,
				Source:    source,
				CreatedAt: now,
				UpdatedAt: now,
			},
		}
		r.tasks[id] = rec
		return rec, nil
	}
	return nil, ErrIDSpaceExhausted
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return Task{}, notFound(id)
	}
	return rec.task, nil
}

// Retriever returns the retrieval handle owned by the task.
func (r *Registry) Retriever(id string) (retrieval.Retriever, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	if rec.retriever == nil {
		return nil, fmt.Errorf("task %s has no retriever", id)
	}
	return rec.retriever, nil
}

// List returns every task in creation order.
func (r *Registry) List() []Task {
	return r.collect(func(Task) bool { return true })
}

// ListActive returns tasks that are starting or retrieving.
func (r *Registry) ListActive() []Task {
	return r.collect(Task.IsActive)
}

// ListByStatus returns tasks in any of the given statuses.
func (r *Registry) ListByStatus(statuses ...Status) []Task {
	set := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return r.collect(func(t Task) bool {
		_, ok := set[t.Status]
		return ok
	})
}

func (r *Registry) collect(keep func(Task) bool) []Task {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if keep(rec.task) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]Task, len(recs))
	for i, rec := range recs {
		out[i] = rec.task
	}
	r.mu.Unlock()
	return out
}

// Stats returns task counts per status.
func (r *Registry) Stats() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make(map[Status]int)
	for _, rec := range r.tasks {
		stats[rec.task.Status]++
	}
	return stats
}

// UpdateStatus moves a task along the transition graph. errMsg is recorded
// as LastError when entering a failed state.
func (r *Registry) UpdateStatus(id string, to Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		r.logger.Debug("status update for unknown task", logging.String(logging.FieldTaskID, id), logging.String("status", string(to)))
		return notFound(id)
	}
	from := rec.task.Status
	if !CanTransition(from, to) {
		return invalidTransition(id, from, to)
	}
	t := &rec.task
	t.Status = to
	switch to {
	case StatusDownloading:
		t.Phase = PhaseDownload
	case StatusProcessing:
		t.Phase = PhasePostprocess
	case StatusSuccess:
		t.Phase = ""
		t.Progress = "100%"
	case StatusCompleted:
		t.Phase = ""
		t.Uploading = false
		t.LastError = ""
	case StatusFailedDL, StatusFailedUL:
		t.Uploading = false
		if errMsg != "" {
			t.LastError = errMsg
		}
	}
	t.UpdatedAt = r.now()
	r.logger.Debug("task status changed",
		logging.String(logging.FieldTaskID, id),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	return nil
}

// UpdateProgress records a progress tick. Ticks are applied only while the
// task is downloading or processing; a postprocess tick moves a downloading
// task to processing. Negative percentages leave the percentage unchanged.
// The return value reports whether the tick was applied.
func (r *Registry) UpdateProgress(id, phase string, percent float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return false
	}
	t := &rec.task
	if t.Status != StatusDownloading && t.Status != StatusProcessing {
		return false
	}
	if phase == PhasePostprocess && t.Status == StatusDownloading {
		t.Status = StatusProcessing
	}
	if phase != "" {
		t.Phase = phase
	}
	if percent >= 0 {
		t.Progress = formatPercent(percent)
	}
	t.UpdatedAt = r.now()
	return true
}

func formatPercent(percent float64) string {
	if percent > 100 {
		percent = 100
	}
	return strconv.FormatFloat(percent, 'f', 1, 64) + "%"
}

// SetTitle records the title returned by analysis.
func (r *Registry) SetTitle(id, title string) error {
	return r.mutate(id, func(t *Task) error {
		t.Title = title
		return nil
	})
}

// SetQuality records the quality used for the current retrieval.
func (r *Registry) SetQuality(id, quality string) error {
	return r.mutate(id, func(t *Task) error {
		t.Quality = quality
		return nil
	})
}

// SetArtifact records the retrieved file. It may only be set once per
// retrieval.
func (r *Registry) SetArtifact(id, path, name string) error {
	return r.mutate(id, func(t *Task) error {
		if t.ArtifactPath != "" {
			return fmt.Errorf("%w: task %s", ErrArtifactSet, id)
		}
		if name == "" {
			name = filepath.Base(path)
		}
		t.ArtifactPath = path
		t.ArtifactName = name
		return nil
	})
}

// RelocateArtifact updates the artifact path after the file was moved.
func (r *Registry) RelocateArtifact(id, path string) error {
	return r.mutate(id, func(t *Task) error {
		if t.ArtifactPath == "" {
			return fmt.Errorf("task %s has no artifact to relocate", id)
		}
		t.ArtifactPath = path
		t.ArtifactName = filepath.Base(path)
		return nil
	})
}

func (r *Registry) mutate(id string, fn func(*Task) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return notFound(id)
	}
	if err := fn(&rec.task); err != nil {
		return err
	}
	rec.task.UpdatedAt = r.now()
	return nil
}

// SetCancel flags an active task for cancellation and moves it to cancelling.
// The flag stays set until a retry clears it.
func (r *Registry) SetCancel(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return Task{}, notFound(id)
	}
	t := &rec.task
	switch {
	case t.Status == StatusCancelling:
	case IsActiveStatus(t.Status):
		t.CancelRequested = true
		t.Status = StatusCancelling
		t.UpdatedAt = r.now()
	default:
		return *t, invalidTransition(id, t.Status, StatusCancelling)
	}
	return *t, nil
}

// CancelRequested reports whether cancellation was requested. Unknown ids
// report true so orphaned work stops at its next check.
func (r *Registry) CancelRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return true
	}
	return rec.task.CancelRequested
}

// Token returns the cancellation token handed to the retriever for a task.
func (r *Registry) Token(id string) retrieval.Token {
	return retrieval.TokenFunc(func() bool { return r.CancelRequested(id) })
}

// FinishCancel completes a cancellation: the task becomes cancelled, any
// recorded artifact is removed, and the record is dropped.
func (r *Registry) FinishCancel(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return Task{}, notFound(id)
	}
	t := rec.task
	if !CanTransition(t.Status, StatusCancelled) {
		return t, invalidTransition(id, t.Status, StatusCancelled)
	}
	if t.ArtifactPath != "" {
		if err := fileutil.RemoveIfExists(t.ArtifactPath); err != nil {
			logging.WarnWithContext(r.logger, "failed to remove cancelled artifact", "artifact_cleanup_failed",
				logging.String(logging.FieldTaskID, id),
				logging.String("path", t.ArtifactPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the file from the work dir manually"),
			)
		}
		t.ArtifactPath = ""
		t.ArtifactName = ""
	}
	t.Status = StatusCancelled
	t.UpdatedAt = r.now()
	delete(r.tasks, id)
	return t, nil
}

// BeginUpload claims a task for upload. Only success and failed_ul tasks can
// be claimed, and only by one uploader at a time.
func (r *Registry) BeginUpload(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return Task{}, notFound(id)
	}
	t := &rec.task
	if t.Uploading {
		return *t, fmt.Errorf("%w: task %s upload already in progress", ErrTaskBusy, id)
	}
	switch t.Status {
	case StatusSuccess:
	case StatusFailedUL:
		t.Status = StatusSuccess
	default:
		return *t, fmt.Errorf("%w: task %s cannot upload from %s", ErrInvalidTransition, id, t.Status)
	}
	t.Uploading = true
	t.Phase = PhaseUpload
	t.UpdatedAt = r.now()
	return *t, nil
}

// ResetForRetry re-arms a failed task and returns the status it re-enters.
// A failed download returns to starting with its cancel flag, error and
// progress cleared. A failed upload returns to success with its artifact
// kept, so only the upload is repeated.
func (r *Registry) ResetForRetry(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return "", notFound(id)
	}
	t := &rec.task
	switch t.Status {
	case StatusFailedDL:
		t.Status = StatusStarting
		t.CancelRequested = false
		t.LastError = ""
		t.Progress = "0%"
		t.Phase = ""
		t.ArtifactPath = ""
		t.ArtifactName = ""
	case StatusFailedUL:
		t.Status = StatusSuccess
		t.LastError = ""
		t.Phase = ""
	default:
		return t.Status, fmt.Errorf("%w: task %s is %s, only failed tasks can be retried", ErrInvalidTransition, id, t.Status)
	}
	t.UpdatedAt = r.now()
	return t.Status, nil
}

// Delete removes a task and the artifact file at its recorded path. Tasks
// that are retrieving, cancelling or uploading are refused.
func (r *Registry) Delete(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return Task{}, notFound(id)
	}
	t := rec.task
	if _, busy := busyStatuses[t.Status]; busy || t.Uploading {
		return t, fmt.Errorf("%w: task %s is %s", ErrTaskBusy, id, t.Status)
	}
	if t.ArtifactPath != "" {
		if err := fileutil.RemoveIfExists(t.ArtifactPath); err != nil {
			return t, fmt.Errorf("remove artifact for task %s: %w", id, err)
		}
	}
	delete(r.tasks, id)
	return t, nil
}

// Remove drops a record without touching its artifact.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// Clear drops every record that is not active, busy or uploading. Artifact
// files are left on disk. It returns the number of records removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.tasks {
		t := rec.task
		if _, busy := busyStatuses[t.Status]; busy || t.IsActive() || t.Uploading {
			continue
		}
		delete(r.tasks, id)
		removed++
	}
	return removed
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
