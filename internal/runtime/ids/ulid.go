// Package ids generates the identifiers used across the isolation
// boundary: envelope IDs, correlation IDs and link topic suffixes.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID encoded as a 26-character string.
// IDs minted by one process are strictly increasing, so envelope IDs
// double as a coarse send-order tiebreaker in logs.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewTopicSuffix returns a lowercase ULID suitable for embedding in
// link topic names, keeping each proxy/worker pair on its own pair of
// topics.
func NewTopicSuffix() string {
	return strings.ToLower(New())
}
