package retrieval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"tubego/internal/retrieval"
	"tubego/internal/services"
)

type stubExecutor struct {
	lines []string
	err   error
	calls int
	args  [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	s.calls++
	s.args = append(s.args, append([]string(nil), args...))
	for _, line := range s.lines {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onLine(line)
	}
	return s.err
}

func newClient(t *testing.T, exec *stubExecutor, ffmpeg bool) (*retrieval.Client, string) {
	t.Helper()
	dir := t.TempDir()
	client, err := retrieval.New("yt-dlp", "ffmpeg", dir, retrieval.WithExecutor(exec), retrieval.WithFFmpeg(ffmpeg))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, dir
}

func TestRetrieveReportsProgressAndFinalPath(t *testing.T) {
	exec := &stubExecutor{}
	client, dir := newClient(t, exec, true)
	artifact := filepath.Join(dir, "Clip_Title.mp4")
	if err := os.WriteFile(artifact, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	exec.lines = []string{
		"[youtube] abc: Downloading webpage",
		"tubego:download:  12.5%",
		"tubego:download: 100.0%",
		"tubego:postprocess:started",
		"tubego:file:" + artifact,
	}

	var updates []retrieval.Progress
	path, err := client.Retrieve(context.Background(), retrieval.Request{Source: "https://example/v", Mode: retrieval.ModeVideo, Quality: "720"},
		func(p retrieval.Progress) { updates = append(updates, p) }, retrieval.Never)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if path != artifact {
		t.Fatalf("unexpected path %q", path)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %+v", updates)
	}
	if updates[0].Percent != 12.5 || updates[2].Phase != retrieval.PhasePostprocess {
		t.Fatalf("unexpected updates: %+v", updates)
	}

	args := exec.args[0]
	if !slices.Contains(args, "--restrict-filenames") || !slices.Contains(args, "--merge-output-format") {
		t.Fatalf("expected restrict/merge flags, got %v", args)
	}
	idx := slices.Index(args, "-f")
	if idx < 0 || args[idx+1] != retrieval.FormatSelector(retrieval.ModeVideo, "720", true) {
		t.Fatalf("unexpected format args: %v", args)
	}
	if !strings.Contains(args[slices.Index(args, "-o")+1], "%(title).100s.%(ext)s") {
		t.Fatalf("expected bounded title template, got %v", args)
	}
	if args[len(args)-1] != "https://example/v" {
		t.Fatalf("expected source last, got %v", args)
	}
}

func TestRetrieveAudioExtractsMP3(t *testing.T) {
	exec := &stubExecutor{}
	client, dir := newClient(t, exec, true)
	artifact := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(artifact, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	exec.lines = []string{"tubego:file:" + artifact}

	req, err := retrieval.RequestFor("https://example/a", "audio")
	if err != nil {
		t.Fatalf("RequestFor: %v", err)
	}
	if _, err := client.Retrieve(context.Background(), req, nil, nil); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	args := exec.args[0]
	if !slices.Contains(args, "-x") || !slices.Contains(args, "192K") {
		t.Fatalf("expected audio extraction flags, got %v", args)
	}
}

func TestRetrieveCancelsOnProgressTick(t *testing.T) {
	exec := &stubExecutor{lines: []string{
		"tubego:download: 5.0%",
		"tubego:download: 10.0%",
		"tubego:download: 15.0%",
	}}
	client, _ := newClient(t, exec, false)

	calls := 0
	var cancelled bool
	token := retrieval.TokenFunc(func() bool { return cancelled })
	_, err := client.Retrieve(context.Background(), retrieval.Request{Source: "s", Mode: retrieval.ModeVideo, Quality: "480"},
		func(retrieval.Progress) {
			calls++
			cancelled = true
		}, token)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one progress callback before cancellation, got %d", calls)
	}
}

func TestRetrieveCancelRemovesPartialFiles(t *testing.T) {
	exec := &stubExecutor{}
	client, dir := newClient(t, exec, true)
	dest := filepath.Join(dir, "Clip_Title.f137.mp4")
	partials := []string{dest + ".part", dest + ".ytdl", dest + ".part-Frag3.part"}
	kept := []string{filepath.Join(dir, "Other.mp4.part"), filepath.Join(dir, "Done.mp4")}
	for _, path := range append(slices.Clone(partials), kept...) {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	exec.lines = []string{
		"[download] Destination: " + dest,
		"tubego:download:  5.0%",
		"tubego:download: 10.0%",
	}

	cancelled := false
	_, err := client.Retrieve(context.Background(), retrieval.Request{Source: "s", Mode: retrieval.ModeVideo, Quality: "1080"},
		func(retrieval.Progress) { cancelled = true },
		retrieval.TokenFunc(func() bool { return cancelled }))
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	for _, path := range partials {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed after cancellation", filepath.Base(path))
		}
	}
	for _, path := range kept {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("unrelated file %s removed: %v", filepath.Base(path), err)
		}
	}
}

func TestRetrieveCancelledBeforeStartSkipsExecution(t *testing.T) {
	exec := &stubExecutor{}
	client, _ := newClient(t, exec, false)
	_, err := client.Retrieve(context.Background(), retrieval.Request{Source: "s", Mode: retrieval.ModeVideo, Quality: "480"}, nil,
		retrieval.TokenFunc(func() bool { return true }))
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("expected no execution, got %d", exec.calls)
	}
}

func TestRetrieveSurfacesToolError(t *testing.T) {
	exec := &stubExecutor{
		lines: []string{"ERROR: [generic] Unable to download webpage: HTTP Error 404"},
		err:   errors.New("exit status 1"),
	}
	client, _ := newClient(t, exec, true)
	_, err := client.Retrieve(context.Background(), retrieval.Request{Source: "s", Mode: retrieval.ModeVideo, Quality: "best"}, nil, nil)
	if !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP Error 404") {
		t.Fatalf("expected tool message in error, got %v", err)
	}
}

func TestRetrieveWithoutOutputFails(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{lines: []string{"tubego:download: 100%"}}, true)
	_, err := client.Retrieve(context.Background(), retrieval.Request{Source: "s", Mode: retrieval.ModeVideo, Quality: "720"}, nil, nil)
	if !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestFetchInfoParsesMetadata(t *testing.T) {
	exec := &stubExecutor{lines: []string{
		`{"title": "A Clip", "duration_string": "3:21", "uploader": "Someone", "thumbnail": "https://i/x.jpg"}`,
	}}
	client, _ := newClient(t, exec, true)
	info, err := client.FetchInfo(context.Background(), "https://example/v")
	if err != nil {
		t.Fatalf("FetchInfo returned error: %v", err)
	}
	if info.Title != "A Clip" || info.Duration != "3:21" || info.Uploader != "Someone" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !slices.Contains(exec.args[0], "--skip-download") {
		t.Fatalf("expected skip-download, got %v", exec.args[0])
	}
}

func TestFetchInfoDefaultsMissingFields(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{lines: []string{`{}`}}, true)
	info, err := client.FetchInfo(context.Background(), "u")
	if err != nil {
		t.Fatalf("FetchInfo returned error: %v", err)
	}
	if info.Title != "Unknown" || info.Duration != "N/A" {
		t.Fatalf("expected defaults, got %+v", info)
	}
}

func TestFetchInfoError(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{lines: []string{"ERROR: Unsupported URL: u"}, err: errors.New("exit status 1")}, true)
	if _, err := client.FetchInfo(context.Background(), "u"); !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := retrieval.New("", "ffmpeg", t.TempDir()); err == nil {
		t.Fatal("expected error for empty binary")
	}
	if _, err := retrieval.New("yt-dlp", "ffmpeg", ""); err == nil {
		t.Fatal("expected error for empty work dir")
	}
}
