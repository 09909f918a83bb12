package ipc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tubego/internal/config"
	"tubego/internal/daemon"
	"tubego/internal/ipc"
	"tubego/internal/logging"
	"tubego/internal/preflight"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/services"
	"tubego/internal/testsupport"
)

type fileRetriever struct {
	dir string
}

func (fileRetriever) FetchInfo(_ context.Context, source string) (retrieval.Info, error) {
	if strings.Contains(source, "bad") {
		return retrieval.Info{}, errors.New("unsupported URL")
	}
	return retrieval.Info{Title: "Demo", Duration: "0:42", Uploader: "someone"}, nil
}

func (r fileRetriever) Retrieve(_ context.Context, req retrieval.Request, onProgress func(retrieval.Progress), _ retrieval.Token) (string, error) {
	onProgress(retrieval.Progress{Phase: retrieval.PhaseDownload, Percent: 50})
	path := filepath.Join(r.dir, "demo-"+req.Quality+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type okUploader struct{}

func (okUploader) Send(context.Context, string, string) (string, error) { return "primary", nil }

func startServer(t *testing.T) (*config.Config, *ipc.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger,
		daemon.WithRetrieverFactory(func() retrieval.Retriever { return fileRetriever{dir: cfg.Paths.WorkDir} }),
		daemon.WithUploader(okUploader{}),
		daemon.WithPreflight(func(context.Context, *config.Config) []preflight.Result {
			return []preflight.Result{{Name: "Work directory", Passed: true, Detail: "ok"}}
		}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return cfg, client
}

func waitSettled(t *testing.T, client *ipc.Client, id string) *ipc.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := client.Show(id)
		if err != nil {
			t.Fatalf("Show: %v", err)
		}
		if task.Settled() {
			return task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not settle", id)
	return nil
}

func TestIPCServerClient(t *testing.T) {
	cfg, client := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() || status.Language != "en" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Checks) != 1 || !status.Checks[0].Passed {
		t.Fatalf("unexpected checks %+v", status.Checks)
	}

	task, err := client.Add("https://example.com/watch?v=1", "720")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(task.ID) != 10 {
		t.Fatalf("unexpected task id %q", task.ID)
	}
	done := waitSettled(t, client, task.ID)
	if done.Status != string(registry.StatusCompleted) {
		t.Fatalf("expected completed, got %+v", done)
	}
	if want := filepath.Join(cfg.Paths.ArchiveDir, "demo-720.mp4"); done.ArtifactPath != want {
		t.Fatalf("artifact path = %q, want %q", done.ArtifactPath, want)
	}
	if len(done.Actions) != 1 || done.Actions[0] != "delete" {
		t.Fatalf("unexpected actions %v", done.Actions)
	}

	tasks, err := client.List(ipc.ListRequest{Statuses: []string{"completed"}})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("List = %v, %v", tasks, err)
	}
	if _, err := client.List(ipc.ListRequest{Statuses: []string{"bogus"}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	removed, err := client.CleanArchive()
	if err != nil || removed != 1 {
		t.Fatalf("CleanArchive = %d, %v", removed, err)
	}
	cleared, err := client.Clear()
	if err != nil || cleared != 1 {
		t.Fatalf("Clear = %d, %v", cleared, err)
	}
}

func TestIPCAnalyzeThenStart(t *testing.T) {
	_, client := startServer(t)

	analysis, err := client.Analyze("https://example.com/watch?v=2")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Task.Title != "Demo" || analysis.Duration != "0:42" || analysis.Task.Status != "starting" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if _, err := client.Start(analysis.Task.ID, "audio"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := waitSettled(t, client, analysis.Task.ID); got.Status != "completed" || got.Quality != "audio" {
		t.Fatalf("unexpected task %+v", got)
	}

	if _, err := client.Analyze("https://example.com/bad"); !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestIPCErrorsKeepTheirKind(t *testing.T) {
	_, client := startServer(t)

	if _, err := client.Show("0000000000"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var remote *ipc.RemoteError
	if _, err := client.Cancel("0000000000"); !errors.As(err, &remote) || remote.Code != "not_found" {
		t.Fatalf("expected remote not_found error, got %v", err)
	}
	if _, err := client.SetQuality("8k"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.FileDelete("../etc/passwd"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for path traversal, got %v", err)
	}

	analysis, err := client.Analyze("https://example.com/watch?v=3")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := client.Retry(analysis.Task.ID); !errors.Is(err, registry.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	cancelled, err := client.Cancel(analysis.Task.ID)
	if err != nil || cancelled.Status != "cancelled" {
		t.Fatalf("Cancel = %+v, %v", cancelled, err)
	}
}

func TestIPCSettingsAndFiles(t *testing.T) {
	cfg, client := startServer(t)

	if _, err := client.SetLanguage("es-MX", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected exact match to reject es-MX, got %v", err)
	}
	settings, err := client.SetLanguage("es_MX.UTF-8", true)
	if err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if settings.Language != "es" || len(settings.Languages) != 2 {
		t.Fatalf("unexpected settings %+v", settings)
	}
	settings, err = client.SetQuality("1080")
	if err != nil || settings.DefaultQuality != "1080" {
		t.Fatalf("SetQuality = %+v, %v", settings, err)
	}

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WorkDir, "local.mp4"), 3)
	files, err := client.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Index != 1 || files[0].Name != "local.mp4" || files[0].Size != 3 {
		t.Fatalf("unexpected files %+v", files)
	}
	task, err := client.FileUpload("1")
	if err != nil {
		t.Fatalf("FileUpload: %v", err)
	}
	if got := waitSettled(t, client, task.ID); got.Status != "completed" || got.Source != registry.LocalSource {
		t.Fatalf("unexpected local upload %+v", got)
	}
}

func TestIPCStopShutsDaemonDown(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.Stop()
	if err != nil || !resp.Stopped {
		t.Fatalf("Stop = %+v, %v", resp, err)
	}
	if _, err := client.List(ipc.ListRequest{}); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
}
