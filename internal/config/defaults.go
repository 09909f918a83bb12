package config

const (
	mebibyte = 1 << 20

	defaultConfigPath            = "~/.config/tubego/config.toml"
	defaultWorkDir               = "~/.local/share/tubego/downloads"
	defaultArchiveSubdir         = "uploaded"
	defaultLogDir                = "~/.local/share/tubego/logs"
	defaultSocketName            = "tubego.sock"
	defaultTelegramBaseURL       = "https://api.telegram.org"
	defaultPrimaryMaxUploadMiB   = 50
	defaultSecondaryMaxUploadMiB = 2000
	defaultTelegramTimeout       = 3600
	defaultRetrievalBinary       = "yt-dlp"
	defaultFFmpegBinary          = "ffmpeg"
	defaultTitleMaxLength        = 100
	defaultWorkerPoolSize        = 4
	defaultUploadThresholdMiB    = 50
	defaultLanguage              = "en"
	defaultQuality               = "ask"
	defaultNotifyTimeout         = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Telegram: Telegram{
			BaseURL:        defaultTelegramBaseURL,
			MaxUploadMiB:   defaultPrimaryMaxUploadMiB,
			TimeoutSeconds: defaultTelegramTimeout,
			Secondary: SecondaryTelegram{
				MaxUploadMiB: defaultSecondaryMaxUploadMiB,
			},
		},
		Retrieval: Retrieval{
			Binary:         defaultRetrievalBinary,
			FFmpegBinary:   defaultFFmpegBinary,
			TitleMaxLength: defaultTitleMaxLength,
		},
		Workflow: Workflow{
			WorkerPoolSize:     defaultWorkerPoolSize,
			UploadThresholdMiB: defaultUploadThresholdMiB,
		},
		Session: Session{
			Language:       defaultLanguage,
			DefaultQuality: defaultQuality,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
