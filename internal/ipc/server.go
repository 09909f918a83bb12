package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"tubego/internal/daemon"
	"tubego/internal/logging"
	"tubego/internal/pipeline"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/services"
	"tubego/internal/session"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Tubego"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun tubego daemon stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	requests atomic.Uint64
}

// requestContext tags the server context with a per-call request id.
func (s *service) requestContext() (context.Context, string) {
	id := strconv.FormatUint(s.requests.Add(1), 10)
	return services.WithRequestID(s.ctx, id), id
}

func (s *service) pipeline() (*pipeline.Orchestrator, error) {
	orch, err := s.daemon.Pipeline()
	return orch, encodeError(err)
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	resp.TaskStats = make(map[string]int, len(status.Tasks))
	for k, v := range status.Tasks {
		resp.TaskStats[string(k)] = v
	}
	resp.Workers = status.Pool.Size
	resp.WorkersBusy = status.Pool.Running
	resp.JobsQueued = status.Pool.Queued
	resp.Language = status.Session.Language
	resp.DefaultQuality = status.Session.DefaultQuality
	resp.ThresholdBytes = status.Threshold
	resp.Secondary = status.Secondary
	resp.Checks = fromChecks(status.Dependencies)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Add(req AddRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return encodeError(fmt.Errorf("%w: source is required", services.ErrValidation))
	}
	ctx, requestID := s.requestContext()
	task, err := orch.Submit(ctx, source, req.Quality)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	s.logger.Info("task submitted via IPC",
		logging.String(logging.FieldEventType, "task_submitted"),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldCorrelationID, requestID),
		logging.String("status", string(task.Status)))
	return nil
}

func (s *service) Analyze(req AnalyzeRequest, resp *AnalyzeResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	ctx, _ := s.requestContext()
	task, info, err := orch.Analyze(ctx, strings.TrimSpace(req.Source))
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	resp.Duration = info.Duration
	resp.Uploader = info.Uploader
	resp.Thumbnail = info.Thumbnail
	return nil
}

func (s *service) Start(req StartRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	if err := orch.Start(req.ID, req.Quality); err != nil {
		return encodeError(err)
	}
	return s.snapshot(orch, req.ID, resp)
}

func (s *service) Show(req TaskRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	return s.snapshot(orch, req.ID, resp)
}

func (s *service) snapshot(orch *pipeline.Orchestrator, id string, resp *TaskResponse) error {
	task, err := orch.Registry().Get(id)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	var tasks []registry.Task
	switch {
	case req.ActiveOnly:
		tasks = orch.Registry().ListActive()
	case len(req.Statuses) > 0:
		statuses := make([]registry.Status, 0, len(req.Statuses))
		for _, value := range req.Statuses {
			status, ok := registry.ParseStatus(value)
			if !ok {
				return encodeError(fmt.Errorf("%w: unknown status %q", services.ErrValidation, value))
			}
			statuses = append(statuses, status)
		}
		tasks = orch.Registry().ListByStatus(statuses...)
	default:
		tasks = orch.Registry().List()
	}
	resp.Tasks = make([]Task, 0, len(tasks))
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, FromTask(t))
	}
	return nil
}

func (s *service) Cancel(req TaskRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	task, err := orch.Cancel(req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	return nil
}

func (s *service) Retry(req TaskRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	if _, err := orch.Retry(s.ctx, req.ID); err != nil {
		return encodeError(err)
	}
	return s.snapshot(orch, req.ID, resp)
}

func (s *service) Upload(req TaskRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	if err := orch.StartUpload(req.ID); err != nil {
		return encodeError(err)
	}
	return s.snapshot(orch, req.ID, resp)
}

func (s *service) Delete(req TaskRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	task, err := orch.Delete(req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	return nil
}

func (s *service) Clear(_ ClearRequest, resp *CountResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	resp.Count = orch.Clear()
	return nil
}

func (s *service) Files(_ FilesRequest, resp *FilesResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	entries, err := orch.LocalFiles()
	if err != nil {
		return encodeError(err)
	}
	resp.Files = make([]File, 0, len(entries))
	for i, e := range entries {
		resp.Files = append(resp.Files, File{Index: i + 1, Name: e.Name, Size: e.Size})
	}
	return nil
}

func (s *service) FileUpload(req FileRequest, resp *TaskResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	task, err := orch.UploadLocal(s.ctx, req.Ref)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = FromTask(task)
	return nil
}

func (s *service) FileDelete(req FileRequest, resp *FileDeleteResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	name, err := orch.DeleteLocal(req.Ref)
	if err != nil {
		return encodeError(err)
	}
	resp.Name = name
	return nil
}

func (s *service) CleanArchive(_ CleanArchiveRequest, resp *CountResponse) error {
	orch, err := s.pipeline()
	if err != nil {
		return err
	}
	removed, err := orch.CleanArchive()
	if err != nil {
		return encodeError(err)
	}
	resp.Count = removed
	s.logger.Info("archive cleaned",
		logging.String(logging.FieldEventType, "archive_clean"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) Settings(_ SettingsRequest, resp *SettingsResponse) error {
	fillSettings(s.daemon.Session(), resp)
	return nil
}

func (s *service) SetQuality(req SetQualityRequest, resp *SettingsResponse) error {
	sess := s.daemon.Session()
	if err := sess.SetDefaultQuality(req.Quality); err != nil {
		return encodeError(fmt.Errorf("%w: %v", services.ErrValidation, err))
	}
	s.logger.Info("default quality changed", logging.String("quality", sess.DefaultQuality()))
	fillSettings(sess, resp)
	return nil
}

func (s *service) SetLanguage(req SetLanguageRequest, resp *SettingsResponse) error {
	sess := s.daemon.Session()
	if req.Detect {
		sess.DetectLanguage(req.Language)
	} else if err := sess.SetLanguage(req.Language); err != nil {
		return encodeError(fmt.Errorf("%w: %v", services.ErrValidation, err))
	}
	s.logger.Info("language changed", logging.String("language", sess.Language()))
	fillSettings(sess, resp)
	return nil
}

func fillSettings(sess *session.Session, resp *SettingsResponse) {
	snap := sess.Snapshot()
	resp.Language = snap.Language
	resp.DefaultQuality = snap.DefaultQuality
	resp.Languages = session.SupportedLanguages()
	resp.Qualities = retrieval.Qualities()
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return encodeError(err)
}
