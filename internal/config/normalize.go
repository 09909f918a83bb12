package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeRetrieval()
	c.normalizeWorkflow()
	c.normalizeSession()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		c.Paths.ArchiveDir = filepath.Join(c.Paths.WorkDir, defaultArchiveSubdir)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.LogDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	t := &c.Telegram
	t.BotToken = envFallback(t.BotToken, "TELEGRAM_TOKEN")
	t.ChatID = envFallback(t.ChatID, "ALLOWED_USER_ID")
	t.BaseURL = strings.TrimRight(strings.TrimSpace(t.BaseURL), "/")
	if t.BaseURL == "" {
		t.BaseURL = defaultTelegramBaseURL
	}
	if t.MaxUploadMiB <= 0 {
		t.MaxUploadMiB = defaultPrimaryMaxUploadMiB
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = defaultTelegramTimeout
	}

	s := &t.Secondary
	s.BotToken = envFallback(s.BotToken, "TELEGRAM_SECONDARY_TOKEN")
	s.BaseURL = strings.TrimRight(envFallback(s.BaseURL, "TELEGRAM_SECONDARY_URL"), "/")
	s.APIID = envFallback(s.APIID, "API_ID")
	s.APIHash = envFallback(s.APIHash, "API_HASH")
	if s.MaxUploadMiB <= 0 {
		s.MaxUploadMiB = defaultSecondaryMaxUploadMiB
	}
}

func (c *Config) normalizeRetrieval() {
	c.Retrieval.Binary = strings.TrimSpace(c.Retrieval.Binary)
	if c.Retrieval.Binary == "" {
		c.Retrieval.Binary = defaultRetrievalBinary
	}
	c.Retrieval.FFmpegBinary = strings.TrimSpace(c.Retrieval.FFmpegBinary)
	if c.Retrieval.FFmpegBinary == "" {
		c.Retrieval.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Retrieval.TitleMaxLength <= 0 {
		c.Retrieval.TitleMaxLength = defaultTitleMaxLength
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WorkerPoolSize <= 0 {
		c.Workflow.WorkerPoolSize = defaultWorkerPoolSize
	}
	if c.Workflow.UploadThresholdMiB <= 0 {
		c.Workflow.UploadThresholdMiB = defaultUploadThresholdMiB
	}
}

func (c *Config) normalizeSession() {
	c.Session.Language = strings.ToLower(strings.TrimSpace(c.Session.Language))
	if c.Session.Language == "" {
		c.Session.Language = defaultLanguage
	}
	c.Session.DefaultQuality = strings.ToLower(strings.TrimSpace(c.Session.DefaultQuality))
	if c.Session.DefaultQuality == "" {
		c.Session.DefaultQuality = defaultQuality
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}
