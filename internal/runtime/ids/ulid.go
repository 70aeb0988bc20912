package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-sortable ULID encoded as a 26-character string.
// Identifiers minted within one process are strictly increasing, so none is
// ever reused.
func NewULID() string {
	return newULIDAt(time.Now())
}

// NewTraceID mints the identity of a new trace.
func NewTraceID() string { return NewULID() }

// NewMessageID mints the transport identifier of a bus message.
func NewMessageID() string { return NewULID() }

func newULIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// TraceTime extracts the mint time embedded in a ULID trace id.
func TraceTime(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
