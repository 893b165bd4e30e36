package ledger

import (
	"context"

	"github.com/google/uuid"
)

// ConditionalPut pairs a record with the version it was read at. The put only
// succeeds if the stored record still carries ExpectedVersion. A zero
// ExpectedVersion means the record must not exist yet (insert-only put, used
// by the creation collaborators and by tests to seed state).
type ConditionalPut struct {
	Record          interface{ GetID() uuid.UUID }
	ExpectedVersion uuid.UUID
}

// Store is the storage abstraction the sequencer core runs against: point
// reads by ID, conditional puts, an atomic multi-record conditional write,
// and a range query over the (parent, sequence) secondary index.
//
// Implementations must return shared.ErrNotFound for missing records and
// shared.ErrConcurrencyConflict when a conditional write is rejected because
// a version no longer matches. TransactPut applies all puts or none.
type Store interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	Put(ctx context.Context, put ConditionalPut) error
	TransactPut(ctx context.Context, puts ...ConditionalPut) error

	// QueryTransactionsByAccount returns the account's transactions whose
	// sequence begins with the given prefix, in lexicographic sequence order.
	// Stamped sequences therefore come back in chronological order within a
	// date; the pending prefix selects not-yet-stamped transactions.
	QueryTransactionsByAccount(ctx context.Context, accountID uuid.UUID, sequencePrefix string) ([]Transaction, error)
}
