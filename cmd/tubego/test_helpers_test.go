package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tubego/internal/config"
	"tubego/internal/daemon"
	"tubego/internal/ipc"
	"tubego/internal/logging"
	"tubego/internal/preflight"
	"tubego/internal/retrieval"
	"tubego/internal/testsupport"
)

type demoRetriever struct {
	dir string
}

func (demoRetriever) FetchInfo(_ context.Context, source string) (retrieval.Info, error) {
	if strings.Contains(source, "bad") {
		return retrieval.Info{}, errors.New("unsupported URL")
	}
	return retrieval.Info{Title: "Demo", Duration: "1:30", Uploader: "someone"}, nil
}

func (r demoRetriever) Retrieve(_ context.Context, req retrieval.Request, onProgress func(retrieval.Progress), _ retrieval.Token) (string, error) {
	onProgress(retrieval.Progress{Phase: retrieval.PhaseDownload, Percent: 40})
	name := "demo-" + req.Quality + ".mp4"
	if req.Mode == retrieval.ModeAudio {
		name = "demo-audio.mp3"
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type acceptUploader struct{}

func (acceptUploader) Send(context.Context, string, string) (string, error) { return "primary", nil }

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger,
		daemon.WithRetrieverFactory(func() retrieval.Retriever { return demoRetriever{dir: cfg.Paths.WorkDir} }),
		daemon.WithUploader(acceptUploader{}),
		daemon.WithPreflight(func(context.Context, *config.Config) []preflight.Result {
			return []preflight.Result{
				{Name: "yt-dlp", Passed: true, Detail: "/usr/bin/yt-dlp"},
				{Name: "Primary bot", Passed: false, Detail: "auth failed (invalid bot token)"},
			}
		}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runCLI(t, args, e.socketPath, e.configPath)
	return stdout, err
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// taskIDFrom pulls the id out of "Task <id> ..." output.
func taskIDFrom(t *testing.T, output string) string {
	t.Helper()
	fields := strings.Fields(output)
	for i, f := range fields {
		if f == "Task" && i+1 < len(fields) {
			return strings.TrimSuffix(fields[i+1], ":")
		}
	}
	t.Fatalf("no task id in %q", output)
	return ""
}
