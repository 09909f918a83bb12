package transport

import "context"

// Sender delivers one local file.
type Sender interface {
	Send(ctx context.Context, path, displayName string) error
	Name() string
	// MaxSize is the largest file, in bytes, the sender accepts.
	MaxSize() int64
}
