package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddFollowDeliversTask(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "add", "https://example.com/watch?v=1", "--quality", "720", "--follow")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "queued (720)")
	requireContains(t, out, "delivered: demo-720.mp4")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ArchiveDir, "demo-720.mp4")); err != nil {
		t.Fatalf("expected archived file: %v", err)
	}

	id := taskIDFrom(t, out)
	out, err = env.run(t, "show", id)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "== Task "+id+" ==")
	requireContains(t, out, "[OK] completed")
	requireContains(t, out, "[INFO] delete")

	out, err = env.run(t, "list", "--status", "completed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "example.com/watch?v=1")

	out, err = env.run(t, "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 task(s)")

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	requireContains(t, out, "No tasks")
}

func TestAddWithoutQualityWaitsForChoice(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "add", "https://example.com/watch?v=2")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "analyzed: Demo")
	requireContains(t, out, "tubego download")
	id := taskIDFrom(t, out)

	out, err = env.run(t, "download", id, "--quality", "audio", "--follow")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, "started (audio)")
	requireContains(t, out, "delivered: demo-audio.mp3")
}

func TestAnalyzeAndCancel(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "analyze", "https://example.com/watch?v=3")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Uploader:  someone")
	requireContains(t, out, "Duration:  1:30")
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "Task:" {
		t.Fatalf("unexpected analyze output %q", out)
	}
	id := fields[1]

	out, err = env.run(t, "cancel", id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Task "+id+" cancelled")

	if _, err := env.run(t, "show", id); err == nil {
		t.Fatal("expected cancelled idle task to be gone")
	}

	if _, err := env.run(t, "analyze", "https://bad.example.com"); err == nil {
		t.Fatal("expected analyze of unsupported link to fail")
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestRetryRejectsCompletedTask(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "add", "https://example.com/watch?v=4", "-q", "480", "-f")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id := taskIDFrom(t, out)
	_, err = env.run(t, "retry", id)
	if err == nil || !strings.Contains(err.Error(), "invalid status transition") {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	out, err = env.run(t, "delete", id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "Deleted task "+id)
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ArchiveDir, "demo-480.mp4")); !os.IsNotExist(err) {
		t.Fatalf("expected archived file removed, stat err = %v", err)
	}
}

func TestFilesCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.WorkDir, "local.mp4"), []byte("abc"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	out, err := env.run(t, "files")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	requireContains(t, out, "local.mp4")
	requireContains(t, out, "3 B")

	out, err = env.run(t, "files", "delete", "1")
	if err != nil {
		t.Fatalf("files delete: %v", err)
	}
	requireContains(t, out, "Deleted local.mp4")

	out, err = env.run(t, "files", "list")
	if err != nil {
		t.Fatalf("files list: %v", err)
	}
	requireContains(t, out, "No local files")

	if _, err := env.run(t, "files", "clean-uploaded"); err == nil {
		t.Fatal("expected clean-uploaded without --yes to fail")
	}
	out, err = env.run(t, "files", "clean-uploaded", "--yes")
	if err != nil {
		t.Fatalf("clean-uploaded: %v", err)
	}
	requireContains(t, out, "Removed 0 archived file(s)")
}

func TestSettingsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "settings", "quality", "1080p")
	if err != nil {
		t.Fatalf("settings quality: %v", err)
	}
	requireContains(t, out, "Default quality set to 1080")

	if _, err := env.run(t, "settings", "quality", "8k"); err == nil {
		t.Fatal("expected unsupported quality to fail")
	}

	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "es_ES.UTF-8")
	out, err = env.run(t, "settings", "language", "--detect")
	if err != nil {
		t.Fatalf("settings language: %v", err)
	}
	requireContains(t, out, "Language set to es")

	out, err = env.run(t, "settings")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	requireContains(t, out, "Language:        es")
	requireContains(t, out, "Default quality: 1080")

	if _, err := env.run(t, "settings", "language"); err == nil {
		t.Fatal("expected missing language to fail")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "running (pid")
	requireContains(t, out, "[ERROR] auth failed (invalid bot token)")
	requireContains(t, out, "[OK] /usr/bin/yt-dlp")
	requireContains(t, out, "50 MiB")
	requireContains(t, out, "No tasks")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.sock")

	_, _, err := runCLI(t, []string{"list"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "tubego start") {
		t.Fatalf("expected start hint, got %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR] not running")

	out, _, err = runCLI(t, []string{"stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
