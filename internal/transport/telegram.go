package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tubego/internal/logging"
	"tubego/internal/services"
	"tubego/internal/textutil"
)

const (
	userAgent     = "tubego/0.1.0"
	captionLimit  = 1024
	errorBodySize = 4096
)

// BotOption configures a BotSender.
type BotOption func(*BotSender)

// WithHTTPClient replaces the HTTP client (tests).
func WithHTTPClient(client *http.Client) BotOption {
	return func(b *BotSender) {
		if client != nil {
			b.client = client
		}
	}
}

// WithLogger sets the sender logger.
func WithLogger(logger *slog.Logger) BotOption {
	return func(b *BotSender) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// BotSender uploads documents through the Telegram Bot API sendDocument method.
type BotSender struct {
	name    string
	baseURL string
	token   string
	chatID  string
	maxSize int64
	client  *http.Client
	logger  *slog.Logger
}

// NewBotSender builds a sender for one bot identity.
func NewBotSender(name, baseURL, token, chatID string, maxSize int64, timeout time.Duration, opts ...BotOption) (*BotSender, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)
	chatID = strings.TrimSpace(chatID)
	switch {
	case baseURL == "":
		return nil, services.Wrap(services.ErrConfiguration, "upload", "build sender", name+": base url required", nil)
	case token == "":
		return nil, services.Wrap(services.ErrConfiguration, "upload", "build sender", name+": bot token required", nil)
	case chatID == "":
		return nil, services.Wrap(services.ErrConfiguration, "upload", "build sender", name+": chat id required", nil)
	}
	b := &BotSender{
		name:    name,
		baseURL: baseURL,
		token:   token,
		chatID:  chatID,
		maxSize: maxSize,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logging.String(logging.FieldComponent, "transport"), logging.String("sender", name))
	return b, nil
}

// Name identifies the sender in logs.
func (b *BotSender) Name() string { return b.name }

// MaxSize implements Sender.
func (b *BotSender) MaxSize() int64 { return b.maxSize }

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// Send streams the file as a multipart sendDocument request.
func (b *BotSender) Send(ctx context.Context, path, displayName string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrArtifactMissing, "upload", b.name, path, err)
		}
		return services.Wrap(services.ErrTransport, "upload", b.name, "stat artifact", err)
	}
	if b.maxSize > 0 && info.Size() > b.maxSize {
		return services.Wrap(services.ErrTransport, "upload", b.name,
			fmt.Sprintf("%s exceeds the %s limit", humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(b.maxSize))), nil)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = filepath.Base(path)
	}

	body, contentType := b.multipartBody(path, displayName)
	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		_ = body.Close()
		return services.Wrap(services.ErrTransport, "upload", b.name, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	b.logger.Info("uploading artifact",
		logging.String("file", displayName),
		logging.Size("size", info.Size()),
	)
	resp, err := b.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, "upload", b.name, "send document", b.redact(err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySize))
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return services.Wrap(services.ErrTransport, "upload", b.name,
			fmt.Sprintf("unexpected response %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}
	if resp.StatusCode >= 300 || !parsed.OK {
		desc := strings.TrimSpace(parsed.Description)
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return services.Wrap(services.ErrTransport, "upload", b.name, fmt.Sprintf("telegram %d: %s", resp.StatusCode, desc), nil)
	}
	b.logger.Info("artifact uploaded",
		logging.String("file", displayName),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// multipartBody streams the document from disk instead of buffering it.
func (b *BotSender) multipartBody(path, displayName string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := b.writeMultipart(mw, path, displayName)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func (b *BotSender) writeMultipart(mw *multipart.Writer, path, displayName string) error {
	if err := mw.WriteField("chat_id", b.chatID); err != nil {
		return err
	}
	if caption := textutil.Truncate(textutil.Caption(displayName), captionLimit); caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("document", displayName)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(part, f)
	return err
}

// redact strips the bot token from transport errors, which embed the URL.
func (b *BotSender) redact(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, b.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, b.token, "<token>"))
}
