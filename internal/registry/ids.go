package registry

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const (
	idLength      = 10
	maxIDAttempts = 16
)

// newID returns a short random token drawn from a v4 UUID. The first five
// bytes are fully random, giving a 40-bit id space.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:idLength]
}
