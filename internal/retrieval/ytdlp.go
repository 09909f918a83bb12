package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tubego/internal/fileutil"
	"tubego/internal/services"
	"tubego/internal/staging"
)

const defaultTitleLength = 100

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithFFmpeg overrides ffmpeg detection.
func WithFFmpeg(available bool) Option {
	return func(c *Client) {
		c.hasFFmpeg = available
	}
}

// WithTimeout bounds a single Retrieve call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithTitleLength bounds the title portion of output file names.
func WithTitleLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.titleLength = n
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary      string
	workDir     string
	hasFFmpeg   bool
	timeout     time.Duration
	titleLength int
	exec        Executor
}

// New constructs a yt-dlp client writing artifacts into workDir. ffmpeg
// availability is detected on PATH unless overridden with WithFFmpeg.
func New(binary, ffmpegBinary, workDir string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, errors.New("work directory required")
	}
	client := &Client{
		binary:      binary,
		workDir:     workDir,
		hasFFmpeg:   DetectFFmpeg(ffmpegBinary),
		titleLength: defaultTitleLength,
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// DetectFFmpeg reports whether the ffmpeg binary can be found.
func DetectFFmpeg(binary string) bool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return false
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

// HasFFmpeg reports whether merges and audio extraction are available.
func (c *Client) HasFFmpeg() bool {
	return c.hasFFmpeg
}

type infoPayload struct {
	Title          string `json:"title"`
	DurationString string `json:"duration_string"`
	Uploader       string `json:"uploader"`
	Thumbnail      string `json:"thumbnail"`
}

// FetchInfo extracts metadata without downloading.
func (c *Client) FetchInfo(ctx context.Context, source string) (Info, error) {
	args := []string{"--dump-single-json", "--skip-download", "--no-warnings", "--no-playlist", source}

	var out strings.Builder
	var lastErr string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		if errorLine(line) {
			lastErr = strings.TrimSpace(line)
			return
		}
		if strings.HasPrefix(strings.TrimSpace(line), "{") || out.Len() > 0 {
			out.WriteString(line)
		}
	})
	if err != nil {
		return Info{}, services.Wrap(services.ErrRetrieval, PhaseDownload, "fetch info", lastErr, err)
	}

	var payload infoPayload
	if err := json.Unmarshal([]byte(out.String()), &payload); err != nil {
		return Info{}, services.Wrap(services.ErrRetrieval, PhaseDownload, "fetch info", "decode metadata", err)
	}
	info := Info{
		Title:     strings.TrimSpace(payload.Title),
		Duration:  strings.TrimSpace(payload.DurationString),
		Uploader:  strings.TrimSpace(payload.Uploader),
		Thumbnail: strings.TrimSpace(payload.Thumbnail),
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	if info.Duration == "" {
		info.Duration = "N/A"
	}
	if info.Uploader == "" {
		info.Uploader = "Unknown"
	}
	return info, nil
}

// Retrieve downloads the media described by req into the work directory and
// returns the final file path. The token is consulted on every progress line;
// once it reports cancellation the process is killed and an error matching
// services.ErrCancelled is returned.
func (c *Client) Retrieve(ctx context.Context, req Request, onProgress func(Progress), token Token) (string, error) {
	if token == nil {
		token = Never
	}
	if token.Cancelled() {
		return "", services.Wrap(services.ErrCancelled, PhaseDownload, "retrieve", "cancelled before start", nil)
	}
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrRetrieval, PhaseDownload, "prepare work dir", "", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, c.timeout)
		defer cancel()
	}

	var (
		finalPath    string
		lastErr      string
		cancelled    bool
		destinations []string
	)
	err := c.exec.Run(runCtx, c.binary, c.retrieveArgs(req), func(line string) {
		if path, ok := parseFilePath(line); ok {
			finalPath = path
			return
		}
		if path, ok := parseDestination(line); ok {
			destinations = append(destinations, path)
		}
		if errorLine(line) {
			lastErr = strings.TrimSpace(line)
			return
		}
		update, ok := parseProgress(line)
		if !ok {
			return
		}
		if cancelled {
			return
		}
		if token.Cancelled() {
			cancelled = true
			cancel()
			return
		}
		if onProgress != nil {
			onProgress(update)
		}
	})

	if cancelled {
		c.discardPartials(destinations)
		return "", services.Wrap(services.ErrCancelled, PhaseDownload, "retrieve", "cancelled during progress", nil)
	}
	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			return "", services.Wrap(services.ErrRetrieval, PhaseDownload, "retrieve", "timed out", ctxErr)
		}
		return "", services.Wrap(services.ErrRetrieval, PhaseDownload, "retrieve", lastErr, err)
	}
	if finalPath == "" {
		return "", services.Wrap(services.ErrRetrieval, PhaseDownload, "retrieve", "yt-dlp reported no output file", nil)
	}
	if !filepath.IsAbs(finalPath) {
		finalPath = filepath.Join(c.workDir, finalPath)
	}
	if _, statErr := os.Stat(finalPath); statErr != nil {
		return "", services.Wrap(services.ErrRetrieval, PhaseDownload, "retrieve", "output file missing", statErr)
	}
	return finalPath, nil
}

// discardPartials removes the files a cancelled run was writing: each
// announced destination in the work dir and the partial files named after it.
func (c *Client) discardPartials(destinations []string) {
	if len(destinations) == 0 {
		return
	}
	workDir := filepath.Clean(c.workDir)
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return
	}
	for _, dest := range destinations {
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(workDir, dest)
		}
		if filepath.Dir(filepath.Clean(dest)) != workDir {
			continue
		}
		base := filepath.Base(dest)
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				continue
			}
			if name == base || (strings.HasPrefix(name, base+".") && staging.IsPartial(name)) {
				_ = fileutil.RemoveIfExists(filepath.Join(workDir, name))
			}
		}
	}
}

func (c *Client) retrieveArgs(req Request) []string {
	template := filepath.Join(c.workDir, "%(title)."+strconv.Itoa(c.titleLength)+"s.%(ext)s")
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
		"--no-simulate",
		"--restrict-filenames",
		"--progress-template", "download:" + downloadMarker + "%(progress._percent_str)s",
		"--progress-template", "postprocess:" + postprocessMarker + "%(progress.status)s",
		"--print", "after_move:" + fileMarker + "%(filepath)s",
		"-f", FormatSelector(req.Mode, req.Quality, c.hasFFmpeg),
		"-o", template,
	}
	if c.hasFFmpeg {
		if req.Mode == ModeAudio {
			args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", req.Quality+"K")
		} else {
			args = append(args, "--merge-output-format", "mp4")
		}
	}
	return append(args, req.Source)
}

// String is used in log fields.
func (c *Client) String() string {
	return fmt.Sprintf("yt-dlp(%s, ffmpeg=%t)", c.binary, c.hasFFmpeg)
}
