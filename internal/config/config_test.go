package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tubego/internal/config"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("ALLOWED_USER_ID", "4242")
	t.Setenv("TELEGRAM_SECONDARY_TOKEN", "")
	t.Setenv("TELEGRAM_SECONDARY_URL", "")
}

func TestLoadDefaultConfigUsesEnvCredentialsAndExpandsPaths(t *testing.T) {
	setCredentials(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "tubego", "downloads")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.ArchiveDir != filepath.Join(wantWork, "uploaded") {
		t.Fatalf("unexpected archive dir: %q", cfg.Paths.ArchiveDir)
	}
	if cfg.Paths.SocketPath != filepath.Join(cfg.Paths.LogDir, "tubego.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.ChatID != "4242" {
		t.Fatalf("expected credentials from env, got %q/%q", cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	if cfg.Workflow.WorkerPoolSize != 4 {
		t.Fatalf("expected worker pool size 4, got %d", cfg.Workflow.WorkerPoolSize)
	}
	if cfg.UploadThresholdBytes() != 50<<20 {
		t.Fatalf("unexpected threshold: %d", cfg.UploadThresholdBytes())
	}
	if cfg.SecondaryConfigured() {
		t.Fatal("expected secondary transport to be unconfigured by default")
	}
	if cfg.Session.DefaultQuality != "ask" || cfg.Session.Language != "en" {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
}

func TestLoadMissingCredentialsFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("ALLOWED_USER_ID", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when credentials are missing")
	}
	if !strings.Contains(err.Error(), "TELEGRAM_TOKEN") {
		t.Fatalf("expected hint about TELEGRAM_TOKEN, got %v", err)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	setCredentials(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := struct {
		Paths struct {
			WorkDir    string `toml:"work_dir"`
			ArchiveDir string `toml:"archive_dir"`
		} `toml:"paths"`
		Telegram struct {
			Secondary struct {
				BotToken string `toml:"bot_token"`
				BaseURL  string `toml:"base_url"`
			} `toml:"secondary"`
		} `toml:"telegram"`
		Workflow struct {
			WorkerPoolSize int `toml:"worker_pool_size"`
		} `toml:"workflow"`
		Session struct {
			DefaultQuality string `toml:"default_quality"`
			Language       string `toml:"language"`
		} `toml:"session"`
	}{}
	payload.Paths.WorkDir = "~/media/in"
	payload.Paths.ArchiveDir = "/srv/archive"
	payload.Telegram.Secondary.BotToken = "999:big"
	payload.Telegram.Secondary.BaseURL = "http://localhost:8081/"
	payload.Workflow.WorkerPoolSize = 2
	payload.Session.DefaultQuality = "720"
	payload.Session.Language = "ES"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "media", "in") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Paths.ArchiveDir != "/srv/archive" {
		t.Fatalf("unexpected archive dir: %q", cfg.Paths.ArchiveDir)
	}
	if !cfg.SecondaryConfigured() {
		t.Fatal("expected secondary transport to be configured")
	}
	if cfg.Telegram.Secondary.BaseURL != "http://localhost:8081" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Telegram.Secondary.BaseURL)
	}
	if cfg.Workflow.WorkerPoolSize != 2 {
		t.Fatalf("unexpected pool size: %d", cfg.Workflow.WorkerPoolSize)
	}
	if cfg.Session.DefaultQuality != "720" || cfg.Session.Language != "es" {
		t.Fatalf("unexpected session: %+v", cfg.Session)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Telegram.BotToken = "t"
		cfg.Telegram.ChatID = "1"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"non numeric chat", func(c *config.Config) { c.Telegram.ChatID = "@me" }, "chat_id"},
		{"half secondary", func(c *config.Config) { c.Telegram.Secondary.BotToken = "x" }, "secondary"},
		{"threshold above primary", func(c *config.Config) { c.Workflow.UploadThresholdMiB = 80 }, "upload_threshold_mib"},
		{"quality", func(c *config.Config) { c.Session.DefaultQuality = "4k" }, "default_quality"},
		{"language", func(c *config.Config) { c.Session.Language = "fr" }, "language"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	setCredentials(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Retrieval.Binary != "yt-dlp" {
		t.Fatalf("unexpected retrieval binary: %q", cfg.Retrieval.Binary)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.ArchiveDir = filepath.Join(base, "work", "uploaded")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "run", "tubego.sock")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.ArchiveDir, cfg.Paths.LogDir, filepath.Join(base, "run")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
