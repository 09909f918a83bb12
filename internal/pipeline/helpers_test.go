package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"tubego/internal/archive"
	"tubego/internal/notifications"
	"tubego/internal/pipeline"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/services"
	"tubego/internal/session"
	"tubego/internal/testsupport"
	"tubego/internal/transport"
	"tubego/internal/workerpool"
)

const mib = 1 << 20

type fakeRetriever struct {
	t    testing.TB
	dir  string
	name string
	size int64

	mu        sync.Mutex
	calls     int
	failures  []error
	ticks     int
	onTick    func(i int)
	afterDone func()
	info      retrieval.Info
	infoErr   error
}

func (f *fakeRetriever) FetchInfo(context.Context, string) (retrieval.Info, error) {
	if f.infoErr != nil {
		return retrieval.Info{}, f.infoErr
	}
	return f.info, nil
}

func (f *fakeRetriever) Retrieve(_ context.Context, req retrieval.Request, onProgress func(retrieval.Progress), token retrieval.Token) (string, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	var failure error
	if call < len(f.failures) {
		failure = f.failures[call]
	}
	f.mu.Unlock()
	if failure != nil {
		return "", failure
	}

	for i := range f.ticks {
		if f.onTick != nil {
			f.onTick(i)
		}
		if token.Cancelled() {
			return "", services.Wrap(services.ErrCancelled, "download", "retrieve", "cancelled during progress", nil)
		}
		onProgress(retrieval.Progress{Phase: retrieval.PhaseDownload, Percent: float64(i+1) * 100 / float64(f.ticks)})
	}
	path := filepath.Join(f.dir, f.name)
	testsupport.WriteSparseFile(f.t, path, f.size)
	if f.afterDone != nil {
		f.afterDone()
	}
	return path, nil
}

func (f *fakeRetriever) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	name     string
	mu       sync.Mutex
	failures []error
	sent     []string
}

func (s *fakeSender) Send(_ context.Context, path, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.sent)
	s.sent = append(s.sent, path)
	if call < len(s.failures) && s.failures[call] != nil {
		return s.failures[call]
	}
	return nil
}

func (s *fakeSender) Name() string   { return s.name }
func (s *fakeSender) MaxSize() int64 { return 0 }

func (s *fakeSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
	n.mu.Unlock()
	return nil
}

// Payload returns the fields of the last publication of event.
func (n *recordingNotifier) Payload(event notifications.Event) notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i] == event {
			return n.payloads[i]
		}
	}
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

// blockingNotifier holds upload_failed publications until released.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (n *blockingNotifier) Publish(ctx context.Context, event notifications.Event, _ notifications.Payload) error {
	if event != notifications.EventUploadFailed {
		return nil
	}
	select {
	case n.entered <- struct{}{}:
	default:
	}
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return nil
}

type failingArchiver struct{}

func (failingArchiver) Archive(string) (string, error) { return "", errors.New("disk full") }
func (failingArchiver) Clear() (int, error)            { return 0, nil }

type harness struct {
	t          *testing.T
	orch       *pipeline.Orchestrator
	reg        *registry.Registry
	sess       *session.Session
	workDir    string
	archiveDir string
	primary    *fakeSender
	secondary  *fakeSender
	notifier   *recordingNotifier
	template   fakeRetriever
	made       []*fakeRetriever
	mu         sync.Mutex
}

type harnessOption func(*harness, *pipeline.Dependencies)

func withArchiver(a pipeline.Archiver) harnessOption {
	return func(_ *harness, d *pipeline.Dependencies) { d.Archiver = a }
}

func withNotifier(n notifications.Service) harnessOption {
	return func(_ *harness, d *pipeline.Dependencies) { d.Notifier = n }
}

func withoutSecondary() harnessOption {
	return func(h *harness, d *pipeline.Dependencies) {
		d.Uploader = transport.NewRouter(h.primary, nil, 50*mib, nil)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	sess, err := session.New("en", "ask")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	h := &harness{
		t:          t,
		reg:        registry.New(),
		sess:       sess,
		workDir:    cfg.Paths.WorkDir,
		archiveDir: cfg.Paths.ArchiveDir,
		primary:    &fakeSender{name: "primary"},
		secondary:  &fakeSender{name: "secondary"},
		notifier:   &recordingNotifier{},
	}
	h.template = fakeRetriever{t: t, dir: h.workDir, name: "clip.mp4", size: 10 * mib, ticks: 4, info: retrieval.Info{Title: "A Clip", Duration: "1:00"}}

	pool := workerpool.New(2, nil)
	t.Cleanup(pool.Close)
	deps := pipeline.Dependencies{
		Registry:   h.reg,
		Pool:       pool,
		Session:    sess,
		Retrievers: h.newRetriever,
		Uploader:   transport.NewRouter(h.primary, h.secondary, 50*mib, nil),
		Archiver:   archive.New(h.archiveDir, nil),
		Notifier:   h.notifier,
		WorkDir:    h.workDir,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	orch, err := pipeline.New(deps)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(orch.Close)
	h.orch = orch
	return h
}

func (h *harness) newRetriever() retrieval.Retriever {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := &fakeRetriever{
		t:        h.template.t,
		dir:      h.template.dir,
		name:     fmt.Sprintf("clip-%d.mp4", len(h.made)),
		size:     h.template.size,
		ticks:    h.template.ticks,
		failures: h.template.failures,
		info:     h.template.info,
		infoErr:  h.template.infoErr,
	}
	h.made = append(h.made, r)
	return r
}

// create registers a task backed by r so the test keeps a handle on it.
func (h *harness) create(r *fakeRetriever) registry.Task {
	h.t.Helper()
	if r.t == nil {
		r.t = h.t
	}
	if r.dir == "" {
		r.dir = h.workDir
	}
	task, err := h.reg.Create("http://example/video", r)
	if err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	return task
}

func (h *harness) get(id string) registry.Task {
	h.t.Helper()
	task, err := h.reg.Get(id)
	if err != nil {
		h.t.Fatalf("Get(%s): %v", id, err)
	}
	return task
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
