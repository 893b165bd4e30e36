package shared

import (
	"time"

	"github.com/google/uuid"
)

// TokenSource issues opaque, globally unique, time-ordered tokens. They are
// used for record versions and for the pending phase of transaction sequences.
// Injecting the source keeps the commit path deterministic under test.
type TokenSource interface {
	Next() uuid.UUID
}

// UUIDv7Source issues UUIDv7 tokens, which embed a millisecond timestamp and
// therefore sort chronologically as strings.
type UUIDv7Source struct{}

// Next returns a freshly generated UUIDv7
func (UUIDv7Source) Next() uuid.UUID {
	token, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source is exhausted; a random
		// UUIDv4 keeps the token unique at the cost of time ordering.
		return uuid.New()
	}
	return token
}

// NewUUIDv7Source creates the default token source
func NewUUIDv7Source() TokenSource {
	return UUIDv7Source{}
}

// Clock supplies the current time. The committer takes a Clock so that
// date-scoped sequence behavior (day rollover) is testable.
type Clock func() time.Time

// SystemClock returns the real time in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
