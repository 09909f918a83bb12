package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tubego/internal/archive"
	"tubego/internal/config"
	"tubego/internal/logging"
	"tubego/internal/notifications"
	"tubego/internal/pipeline"
	"tubego/internal/preflight"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/session"
	"tubego/internal/staging"
	"tubego/internal/transport"
	"tubego/internal/workerpool"
)

// ErrNotRunning is returned by task operations before Start or after Stop.
var ErrNotRunning = errors.New("daemon not running")

// Partial downloads older than this are swept from the work dir on start.
const stalePartialAge = 6 * time.Hour

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	retrievers retrieval.Factory
	uploader   pipeline.Uploader
	notifier   notifications.Service
	preflight  func(context.Context, *config.Config) []preflight.Result
}

// WithRetrieverFactory replaces the yt-dlp backed retriever factory.
func WithRetrieverFactory(f retrieval.Factory) Option {
	return func(o *options) { o.retrievers = f }
}

// WithUploader replaces the Telegram router.
func WithUploader(u pipeline.Uploader) Option {
	return func(o *options) { o.uploader = u }
}

// WithNotifier replaces the ntfy notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// WithPreflight replaces the startup readiness checks.
func WithPreflight(fn func(context.Context, *config.Config) []preflight.Result) Option {
	return func(o *options) { o.preflight = fn }
}

// Daemon coordinates the task pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	pool     *workerpool.Pool
	session  *session.Session
	orch     *pipeline.Orchestrator
	notifier notifications.Service
	check    func(context.Context, *config.Config) []preflight.Result

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time

	mu       sync.Mutex
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	LogPath      string
	Tasks        map[registry.Status]int
	Pool         workerpool.Stats
	Session      session.Snapshot
	Threshold    int64
	Secondary    bool
	Dependencies []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{preflight: preflight.RunAll}
	for _, opt := range opts {
		opt(&o)
	}

	sess, err := session.New(cfg.Session.Language, cfg.Session.DefaultQuality)
	if err != nil {
		return nil, fmt.Errorf("session defaults: %w", err)
	}
	if o.retrievers == nil {
		if o.retrievers, err = ytdlpFactory(cfg); err != nil {
			return nil, err
		}
	}
	if o.uploader == nil {
		router, err := transport.NewRouterFromConfig(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("telegram delivery: %w", err)
		}
		o.uploader = router
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	reg := registry.New(registry.WithLogger(logger))
	pool := workerpool.New(cfg.Workflow.WorkerPoolSize, logger)
	orch, err := pipeline.New(pipeline.Dependencies{
		Registry:   reg,
		Pool:       pool,
		Session:    sess,
		Retrievers: o.retrievers,
		Uploader:   o.uploader,
		Archiver:   archive.New(cfg.Paths.ArchiveDir, logger),
		Notifier:   o.notifier,
		WorkDir:    cfg.Paths.WorkDir,
		Logger:     logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: reg,
		pool:     pool,
		session:  sess,
		orch:     orch,
		notifier: o.notifier,
		check:    o.preflight,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		done:     make(chan struct{}),
	}, nil
}

func ytdlpFactory(cfg *config.Config) (retrieval.Factory, error) {
	opts := []retrieval.Option{
		retrieval.WithTimeout(time.Duration(cfg.Retrieval.TimeoutSeconds) * time.Second),
		retrieval.WithTitleLength(cfg.Retrieval.TitleMaxLength),
	}
	if _, err := retrieval.New(cfg.Retrieval.Binary, cfg.Retrieval.FFmpegBinary, cfg.Paths.WorkDir, opts...); err != nil {
		return nil, fmt.Errorf("retrieval client: %w", err)
	}
	hasFFmpeg := retrieval.DetectFFmpeg(cfg.Retrieval.FFmpegBinary)
	opts = append(opts, retrieval.WithFFmpeg(hasFFmpeg))
	return func() retrieval.Retriever {
		client, _ := retrieval.New(cfg.Retrieval.Binary, cfg.Retrieval.FFmpegBinary, cfg.Paths.WorkDir, opts...)
		return client
	}, nil
}

// Start acquires the daemon lock, prepares directories and runs the
// readiness checks. Failed checks are logged; they do not block startup.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errors.New("daemon already stopped")
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tubego daemon instance is already running")
	}

	d.checks = d.check(ctx, d.cfg)
	for _, r := range preflight.Failed(d.checks) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail"),
		)
	}

	staging.CleanStale(ctx, d.cfg.Paths.WorkDir, stalePartialAge, d.logger)

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("tubego daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.pool.Size()),
		logging.String("work_dir", d.cfg.Paths.WorkDir),
	)
	return nil
}

// Stop cancels in-flight work, waits for it to return and releases the lock.
// A stopped daemon cannot be started again.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	wasRunning := d.running.Swap(false)

	d.orch.Close()
	d.pool.Close()
	if wasRunning {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file manually"),
			)
		}
		d.logger.Info("tubego daemon stopped")
	}
	d.doneOnce.Do(func() { close(d.done) })
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Done is closed once the daemon has stopped.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Pipeline returns the orchestrator while the daemon is running.
func (d *Daemon) Pipeline() (*pipeline.Orchestrator, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	return d.orch, nil
}

// Session returns the operator session.
func (d *Daemon) Session() *session.Session {
	return d.session
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.cfg.LogFilePath()
}

// TestNotification sends a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	startedAt := d.startedAt
	d.mu.Unlock()

	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		LockFilePath: d.lockPath,
		LogPath:      d.cfg.LogFilePath(),
		Tasks:        d.registry.Stats(),
		Pool:         d.pool.Stats(),
		Session:      d.session.Snapshot(),
		Threshold:    d.cfg.UploadThresholdBytes(),
		Secondary:    d.cfg.SecondaryConfigured(),
		Dependencies: checks,
	}
}
