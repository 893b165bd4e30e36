// Package memory provides an in-memory Store implementation with the same
// conditional-write contract as the DynamoDB store. It backs tests and local
// runs without AWS infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Store keeps accounts and transactions in maps guarded by one mutex. All
// validation of a TransactPut happens before any mutation, so the multi-record
// write is atomic: both puts land or neither does.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]ledger.Account
	transactions map[uuid.UUID]ledger.Transaction
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]ledger.Account),
		transactions: make(map[uuid.UUID]ledger.Transaction),
	}
}

// GetTransaction returns a copy of the transaction, or shared.ErrNotFound
func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, shared.ErrNotFound)
	}
	return &tx, nil
}

// GetAccount returns a copy of the account, or shared.ErrNotFound
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, shared.ErrNotFound)
	}
	return &account, nil
}

// Put applies a single conditional put
func (s *Store) Put(_ context.Context, put ledger.ConditionalPut) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(put); err != nil {
		return err
	}
	s.apply(put)
	return nil
}

// TransactPut applies all puts atomically, or none of them
func (s *Store) TransactPut(_ context.Context, puts ...ledger.ConditionalPut) error {
	if len(puts) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "TransactPut requires at least one put")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, put := range puts {
		if err := s.check(put); err != nil {
			return err
		}
	}
	for _, put := range puts {
		s.apply(put)
	}
	return nil
}

// QueryTransactionsByAccount returns the account's transactions whose sequence
// begins with sequencePrefix, sorted lexicographically by sequence
func (s *Store) QueryTransactionsByAccount(_ context.Context, accountID uuid.UUID, sequencePrefix string) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := accountID.String()
	var result []ledger.Transaction
	for _, tx := range s.transactions {
		if tx.Parent == parent && strings.HasPrefix(tx.Sequence, sequencePrefix) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

// check validates one conditional put against current state. A zero expected
// version demands absence; otherwise the stored version must match exactly.
func (s *Store) check(put ledger.ConditionalPut) error {
	current, exists, err := s.currentVersion(put)
	if err != nil {
		return err
	}

	if put.ExpectedVersion == uuid.Nil {
		if exists {
			return fmt.Errorf("record %s: %w", put.Record.GetID(), shared.ErrAlreadyExists)
		}
		return nil
	}
	if !exists || current != put.ExpectedVersion {
		return fmt.Errorf("record %s: %w", put.Record.GetID(), shared.ErrConcurrencyConflict)
	}
	return nil
}

func (s *Store) currentVersion(put ledger.ConditionalPut) (uuid.UUID, bool, error) {
	switch record := put.Record.(type) {
	case *ledger.Account:
		current, ok := s.accounts[record.ID]
		return current.Version, ok, nil
	case *ledger.Transaction:
		current, ok := s.transactions[record.ID]
		return current.Version, ok, nil
	default:
		return uuid.Nil, false, shared.NewDomainError("UNSUPPORTED_RECORD",
			fmt.Sprintf("Unsupported record type %T", put.Record))
	}
}

func (s *Store) apply(put ledger.ConditionalPut) {
	switch record := put.Record.(type) {
	case *ledger.Account:
		s.accounts[record.ID] = *record
	case *ledger.Transaction:
		s.transactions[record.ID] = *record
	}
}

// Ensure Store implements ledger.Store
var _ ledger.Store = (*Store)(nil)
