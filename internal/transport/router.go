package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"tubego/internal/config"
	"tubego/internal/logging"
	"tubego/internal/services"
)

// Router selects the sender for an artifact by size. Files at or above the
// threshold go to the secondary sender.
type Router struct {
	primary   Sender
	secondary Sender
	threshold int64
	logger    *slog.Logger
}

// NewRouter builds a router. secondary may be nil, in which case files at or
// above the threshold fail with a transport error.
func NewRouter(primary, secondary Sender, threshold int64, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		primary:   primary,
		secondary: secondary,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "transport"),
	}
}

// NewRouterFromConfig wires the primary and, when configured, secondary bot
// identities from cfg.
func NewRouterFromConfig(cfg *config.Config, logger *slog.Logger) (*Router, error) {
	timeout := time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second
	primary, err := NewBotSender("primary", cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		int64(cfg.Telegram.MaxUploadMiB)<<20, timeout, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	var secondary Sender
	if cfg.SecondaryConfigured() {
		s, err := NewBotSender("secondary", cfg.Telegram.Secondary.BaseURL, cfg.Telegram.Secondary.BotToken, cfg.Telegram.ChatID,
			int64(cfg.Telegram.Secondary.MaxUploadMiB)<<20, timeout, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		secondary = s
	}
	return NewRouter(primary, secondary, cfg.UploadThresholdBytes(), logger), nil
}

// Threshold returns the routing boundary in bytes.
func (r *Router) Threshold() int64 { return r.threshold }

// HasSecondary reports whether large files can be delivered.
func (r *Router) HasSecondary() bool { return r.secondary != nil }

// Select returns the sender for a file of the given size.
func (r *Router) Select(size int64) (Sender, error) {
	if size < r.threshold {
		if r.primary == nil {
			return nil, services.Wrap(services.ErrTransport, "upload", "route", "primary sender not configured", nil)
		}
		return r.primary, nil
	}
	if r.secondary == nil {
		return nil, services.Wrap(services.ErrTransport, "upload", "route",
			fmt.Sprintf("%s requires the secondary sender, which is not configured", humanize.IBytes(uint64(size))), nil)
	}
	return r.secondary, nil
}

// Send stats the file, routes it and delivers it. It returns the name of the
// sender used.
func (r *Router) Send(ctx context.Context, path, displayName string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrArtifactMissing, "upload", "route", path, err)
		}
		return "", services.Wrap(services.ErrTransport, "upload", "route", "stat artifact", err)
	}
	sender, err := r.Select(info.Size())
	if err != nil {
		return "", err
	}
	r.logger.Debug("artifact routed",
		logging.String("sender", sender.Name()),
		logging.Size("size", info.Size()),
		logging.Size("threshold", r.threshold),
	)
	return sender.Name(), sender.Send(ctx, path, displayName)
}
