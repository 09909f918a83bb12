package retrieval

import (
	"context"
)

// Info is the metadata returned by FetchInfo.
type Info struct {
	Title     string
	Duration  string
	Uploader  string
	Thumbnail string
}

// Mode selects between full video and audio-only retrieval.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// Request describes a single retrieval.
type Request struct {
	Source  string
	Mode    Mode
	Quality string
}

// Progress phases reported by retrievers.
const (
	PhaseDownload    = "download"
	PhasePostprocess = "postprocess"
)

// Progress is a periodic update emitted while retrieving. Percent is negative
// when unknown.
type Progress struct {
	Phase   string
	Percent float64
}

// Token is the cooperative cancellation signal passed to Retrieve.
type Token interface {
	Cancelled() bool
}

// TokenFunc adapts a predicate to Token.
type TokenFunc func() bool

// Cancelled implements Token.
func (f TokenFunc) Cancelled() bool {
	if f == nil {
		return false
	}
	return f()
}

// Never is a Token that is never cancelled.
var Never Token = TokenFunc(func() bool { return false })

// Retriever fetches metadata and media for one task.
type Retriever interface {
	FetchInfo(ctx context.Context, source string) (Info, error)
	Retrieve(ctx context.Context, req Request, onProgress func(Progress), token Token) (string, error)
}

// Factory creates a fresh Retriever for a new task.
type Factory func() Retriever
