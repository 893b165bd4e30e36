// Package ledger holds the account and transaction records of the sequencer
// core together with the date-scoped sequence generator that orders them.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Sequence key prefixes. A transaction starts life in the pending phase and is
// moved to the stamped phase exactly once; the transition is irreversible.
const (
	// PendingSequencePrefix precedes the time-ordered token assigned at creation
	PendingSequencePrefix = "pending-"

	// StampedSequencePrefix precedes the date and counter of a stamped sequence
	StampedSequencePrefix = "transaction-"

	// AccountSequencePrefix precedes the time-ordered token of an account record
	AccountSequencePrefix = "account-"
)

// sequenceDateLayout renders an 8-digit UTC date (yyyymmdd)
const sequenceDateLayout = "20060102"

// PendingSequence builds the pending-phase sequence key for a new transaction
func PendingSequence(token uuid.UUID) string {
	return PendingSequencePrefix + token.String()
}

// AccountSequence builds the sequence key for a new account record
func AccountSequence(token uuid.UUID) string {
	return AccountSequencePrefix + token.String()
}

// StampedSequence builds a stamped sequence key for the given UTC date and
// counter. The counter is zero-padded to six digits so stamped keys compare
// lexicographically in chronological order within a date.
func StampedSequence(date time.Time, counter int) string {
	return fmt.Sprintf("%s%s-%06d", StampedSequencePrefix, date.UTC().Format(sequenceDateLayout), counter)
}

// NextSequence computes the next stamped sequence for an account given its
// most recently stamped sequence (empty string if none exists yet) and the
// current time. The counter is scoped to the account and the UTC date: the
// first transaction of a day (or ever) gets counter 1, and each subsequent
// same-day transaction increments it by one.
//
// A latest sequence that matches today's prefix but carries an unparsable
// counter returns ErrMalformedSequence; that state is corrupted and must be
// surfaced rather than guessed around.
func NextSequence(latest string, now time.Time) (string, error) {
	today := now.UTC()
	dayPrefix := StampedSequencePrefix + today.Format(sequenceDateLayout)

	// First transaction ever, or latest is from a prior day: reset to 1.
	if latest == "" || !strings.HasPrefix(latest, dayPrefix) {
		return StampedSequence(today, 1), nil
	}

	parts := strings.Split(latest, "-")
	if len(parts) < 3 {
		return "", fmt.Errorf("latest sequence %q has no counter segment: %w", latest, shared.ErrMalformedSequence)
	}

	counter, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("latest sequence %q has unparsable counter %q: %w", latest, parts[2], shared.ErrMalformedSequence)
	}

	return StampedSequence(today, counter+1), nil
}
