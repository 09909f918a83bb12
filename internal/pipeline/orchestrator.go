package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tubego/internal/logging"
	"tubego/internal/notifications"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/services"
	"tubego/internal/session"
	"tubego/internal/workerpool"
)

// Uploader delivers an artifact and reports which sender handled it.
type Uploader interface {
	Send(ctx context.Context, path, displayName string) (string, error)
}

// Archiver relocates delivered artifacts.
type Archiver interface {
	Archive(src string) (string, error)
	Clear() (int, error)
}

// Dependencies wires the orchestrator to its collaborators.
type Dependencies struct {
	Registry   *registry.Registry
	Pool       *workerpool.Pool
	Session    *session.Session
	Retrievers retrieval.Factory
	Uploader   Uploader
	Archiver   Archiver
	Notifier   notifications.Service
	WorkDir    string
	Logger     *slog.Logger
}

// Orchestrator runs task pipelines.
type Orchestrator struct {
	reg        *registry.Registry
	pool       *workerpool.Pool
	session    *session.Session
	retrievers retrieval.Factory
	uploader   Uploader
	archiver   Archiver
	notifier   notifications.Service
	workDir    string
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

// Outcome summarizes a finished run or upload.
type Outcome struct {
	TaskID       string
	Status       registry.Status
	ArtifactPath string
	Sender       string
	Err          error
}

// New validates deps and returns an Orchestrator.
func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("pipeline: registry required")
	case deps.Pool == nil:
		return nil, errors.New("pipeline: worker pool required")
	case deps.Session == nil:
		return nil, errors.New("pipeline: session required")
	case deps.Retrievers == nil:
		return nil, errors.New("pipeline: retriever factory required")
	case deps.Uploader == nil:
		return nil, errors.New("pipeline: uploader required")
	case deps.Archiver == nil:
		return nil, errors.New("pipeline: archiver required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		reg:        deps.Registry,
		pool:       deps.Pool,
		session:    deps.Session,
		retrievers: deps.Retrievers,
		uploader:   deps.Uploader,
		archiver:   deps.Archiver,
		notifier:   notifier,
		workDir:    deps.WorkDir,
		logger:     logging.NewComponentLogger(deps.Logger, "pipeline"),
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]struct{}),
	}, nil
}

// Registry exposes the task store for read access.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Session exposes the operator session.
func (o *Orchestrator) Session() *session.Session { return o.session }

// PoolStats reports worker pool load.
func (o *Orchestrator) PoolStats() workerpool.Stats { return o.pool.Stats() }

// Wait blocks until every background run and upload has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels background work and waits for it to return.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// claim marks a task as owned by a run or upload goroutine.
func (o *Orchestrator) claim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[id]; busy {
		return false
	}
	o.running[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
}

func (o *Orchestrator) isRunning(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[id]
	return ok
}

func errBusy(id string) error {
	return fmt.Errorf("%w: task %s already has work in flight", registry.ErrTaskBusy, id)
}

func (o *Orchestrator) background(id string, fn func(ctx context.Context)) error {
	if !o.claim(id) {
		return errBusy(id)
	}
	o.spawn(id, fn)
	return nil
}

// spawn runs fn for a task the caller has already claimed and releases the
// claim when fn returns.
func (o *Orchestrator) spawn(id string, fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(id)
		fn(o.ctx)
	}()
}

func (o *Orchestrator) taskLogger(ctx context.Context, id, phase string) *slog.Logger {
	ctx = services.WithTaskID(ctx, id)
	ctx = services.WithPhase(ctx, phase)
	return logging.WithContext(ctx, o.logger)
}

// Cancel requests cancellation of an active task. Tasks that have no run in
// flight (analyzed but never started) are cancelled and removed at once.
func (o *Orchestrator) Cancel(id string) (registry.Task, error) {
	task, err := o.reg.SetCancel(id)
	if err != nil {
		return task, err
	}
	if o.isRunning(id) {
		o.logger.Info("cancellation requested", logging.String(logging.FieldTaskID, id))
		return task, nil
	}
	return o.finishIdleCancel(task)
}

// finishIdleCancel completes a cancellation flagged by Cancel. A run that
// claimed the task after the flag was set may have finished it already.
func (o *Orchestrator) finishIdleCancel(flagged registry.Task) (registry.Task, error) {
	final, err := o.reg.FinishCancel(flagged.ID)
	if errors.Is(err, registry.ErrNotFound) {
		flagged.Status = registry.StatusCancelled
		return flagged, nil
	}
	if err != nil {
		return flagged, err
	}
	o.logger.Info("idle task cancelled", logging.String(logging.FieldTaskID, flagged.ID))
	return final, nil
}

// Delete removes a task and its artifact.
func (o *Orchestrator) Delete(id string) (registry.Task, error) {
	if o.isRunning(id) {
		return registry.Task{}, errBusy(id)
	}
	task, err := o.reg.Delete(id)
	if err != nil {
		return task, err
	}
	o.logger.Info("task deleted", logging.String(logging.FieldTaskID, id), logging.String("status", string(task.Status)))
	return task, nil
}

// Clear drops finished and failed task records.
func (o *Orchestrator) Clear() int {
	removed := o.reg.Clear()
	o.logger.Info("task records cleared", logging.Int("removed", removed))
	return removed
}

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event, task registry.Task, extra notifications.Payload) {
	payload := notifications.Payload{"id": task.ID, "title": displayTitle(task)}
	for k, v := range extra {
		payload[k] = v
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			o.logger.Debug("daemon shutting down, could not send notification")
			return
		}
		o.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func displayTitle(task registry.Task) string {
	switch {
	case task.Title != "":
		return task.Title
	case task.ArtifactName != "":
		return task.ArtifactName
	default:
		return task.Source
	}
}
