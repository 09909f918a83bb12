package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var validQualities = map[string]struct{}{
	"ask":   {},
	"best":  {},
	"max":   {},
	"1080":  {},
	"720":   {},
	"480":   {},
	"audio": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required. Set TELEGRAM_TOKEN and ALLOWED_USER_ID or edit %s (create with 'tubego config init')", defaultPath)
	}
	if _, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64); err != nil {
		return fmt.Errorf("telegram.chat_id must be numeric, got %q", c.Telegram.ChatID)
	}
	s := c.Telegram.Secondary
	if (s.BotToken == "") != (s.BaseURL == "") {
		return errors.New("telegram.secondary requires both bot_token and base_url")
	}
	if s.MaxUploadMiB < c.Telegram.MaxUploadMiB {
		return errors.New("telegram.secondary.max_upload_mib must not be smaller than telegram.max_upload_mib")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.WorkerPoolSize > 64 {
		return errors.New("workflow.worker_pool_size must be 64 or less")
	}
	if c.Workflow.UploadThresholdMiB > c.Telegram.MaxUploadMiB {
		return fmt.Errorf("workflow.upload_threshold_mib (%d) exceeds telegram.max_upload_mib (%d)",
			c.Workflow.UploadThresholdMiB, c.Telegram.MaxUploadMiB)
	}
	return nil
}

func (c *Config) validateSession() error {
	if _, ok := validQualities[c.Session.DefaultQuality]; !ok {
		return fmt.Errorf("session.default_quality: unsupported value %q", c.Session.DefaultQuality)
	}
	switch c.Session.Language {
	case "en", "es":
	default:
		return fmt.Errorf("session.language: unsupported value %q (expected en or es)", c.Session.Language)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
