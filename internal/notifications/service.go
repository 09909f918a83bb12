package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tubego/internal/config"
)

const userAgent = "tubego/0.1.0"

// Event names a notification-worthy task milestone.
type Event string

const (
	EventTaskCompleted  Event = "task_completed"
	EventDownloadFailed Event = "download_failed"
	EventUploadFailed   Event = "upload_failed"
	EventTest           Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, data Payload) (payload, bool) {
	title := str(data, "title")
	if title == "" {
		title = str(data, "id")
	}
	switch event {
	case EventTaskCompleted:
		if !n.completed {
			return payload{}, false
		}
		message := fmt.Sprintf("✅ Delivered: %s", title)
		if via := str(data, "sender"); via != "" {
			message = fmt.Sprintf("%s (via %s)", message, via)
		}
		return payload{
			title:   "tubego - Delivered",
			message: message,
			tags:    []string{"tubego", "upload", "completed"},
		}, true
	case EventDownloadFailed:
		if !n.errors {
			return payload{}, false
		}
		return payload{
			title:    "tubego - Download Failed",
			message:  fmt.Sprintf("❌ Download failed: %s\n%s", title, str(data, "error")),
			tags:     []string{"tubego", "download", "failed"},
			priority: "high",
		}, true
	case EventUploadFailed:
		if !n.errors {
			return payload{}, false
		}
		return payload{
			title:    "tubego - Upload Failed",
			message:  fmt.Sprintf("❌ Upload failed: %s\n%s", title, str(data, "error")),
			tags:     []string{"tubego", "upload", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:   "tubego - Test",
			message: "🔔 Test notification from tubego",
			tags:    []string{"tubego", "test"},
		}, true
	default:
		return payload{}, false
	}
}

func str(data Payload, key string) string {
	if data == nil {
		return ""
	}
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
