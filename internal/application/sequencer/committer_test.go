package sequencer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fintechdemo/ledger/internal/application/sequencer"
	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/fintechdemo/ledger/internal/infrastructure/persistence/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedDay = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) shared.Clock {
	return func() time.Time { return at }
}

func seedAccount(t *testing.T, store ledger.Store) *ledger.Account {
	t.Helper()
	tokens := shared.NewUUIDv7Source()
	account, err := ledger.NewAccount(uuid.New(), "Main Account", "ACC123", "EUR", tokens)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), ledger.ConditionalPut{Record: account}))
	return account
}

func seedPendingTransaction(t *testing.T, store ledger.Store, accountID uuid.UUID, amount decimal.Decimal, txType ledger.TransactionType) *ledger.Transaction {
	t.Helper()
	tokens := shared.NewUUIDv7Source()
	tx, err := ledger.NewPendingTransaction(accountID, "user-1", "EUR", amount, fixedDay, txType, tokens)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), ledger.ConditionalPut{Record: tx}))
	return tx
}

func TestCommitter_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps first transaction with counter one", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)
		tx := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(1000), ledger.TransactionTypeDeposit)

		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))
		require.NoError(t, committer.Commit(ctx, tx.ID, account.ID))

		stamped, err := store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, "transaction-20260303-000001", stamped.Sequence)
		assert.True(t, stamped.IsStamped())
		assert.NotEqual(t, tx.Version, stamped.Version)

		updated, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "transaction-20260303-000001", updated.LatestTransaction)
		assert.True(t, updated.Balance.Equal(decimal.NewFromInt(1000)))
		assert.True(t, updated.Pending.IsZero())
		assert.NotEqual(t, account.Version, updated.Version)
	})

	t.Run("same-day commits produce contiguous counters", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)
		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))

		const n = 5
		for i := 0; i < n; i++ {
			tx := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)
			require.NoError(t, committer.Commit(ctx, tx.ID, account.ID))
		}

		stamped, err := store.QueryTransactionsByAccount(ctx, account.ID, ledger.StampedSequencePrefix)
		require.NoError(t, err)
		require.Len(t, stamped, n)
		for i, tx := range stamped {
			assert.Equal(t, fmt.Sprintf("transaction-20260303-%06d", i+1), tx.Sequence)
		}

		updated, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, updated.Balance.Equal(decimal.NewFromInt(100*n)))
	})

	t.Run("counter resets on day rollover", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)
		day1 := fixedDay
		day2 := fixedDay.Add(24 * time.Hour)

		tx1 := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)
		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(day1)))
		require.NoError(t, committer.Commit(ctx, tx1.ID, account.ID))

		tx2 := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)
		committer = sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(day2)))
		require.NoError(t, committer.Commit(ctx, tx2.ID, account.ID))

		first, err := store.GetTransaction(ctx, tx1.ID)
		require.NoError(t, err)
		second, err := store.GetTransaction(ctx, tx2.ID)
		require.NoError(t, err)
		assert.Equal(t, "transaction-20260303-000001", first.Sequence)
		assert.Equal(t, "transaction-20260304-000001", second.Sequence)
	})

	t.Run("withdrawal moves pending not balance", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)
		tx := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(-200), ledger.TransactionTypeWithdrawal)

		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))
		require.NoError(t, committer.Commit(ctx, tx.ID, account.ID))

		updated, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, updated.Balance.IsZero())
		assert.True(t, updated.Pending.Equal(decimal.NewFromInt(200)), "pending %s", updated.Pending)
	})

	t.Run("redelivery of a stamped transaction is a no-op", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)
		tx := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(1000), ledger.TransactionTypeDeposit)

		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))
		require.NoError(t, committer.Commit(ctx, tx.ID, account.ID))

		afterFirst, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		stampedFirst, err := store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)

		// Second delivery of the same change event.
		require.NoError(t, committer.Commit(ctx, tx.ID, account.ID))

		afterSecond, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		stampedSecond, err := store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)

		assert.Equal(t, stampedFirst.Sequence, stampedSecond.Sequence)
		assert.Equal(t, stampedFirst.Version, stampedSecond.Version)
		assert.True(t, afterFirst.Balance.Equal(afterSecond.Balance))
		assert.Equal(t, afterFirst.Version, afterSecond.Version)
	})

	t.Run("missing transaction is a no-op", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)

		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t))
		assert.NoError(t, committer.Commit(ctx, uuid.New(), account.ID))
	})

	t.Run("missing account is fatal and leaves transaction pending", func(t *testing.T) {
		store := memory.NewStore()
		orphanAccountID := uuid.New()
		tx := seedPendingTransaction(t, store, orphanAccountID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)

		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t))
		err := committer.Commit(ctx, tx.ID, orphanAccountID)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrMissingDependency)

		unchanged, getErr := store.GetTransaction(ctx, tx.ID)
		require.NoError(t, getErr)
		assert.True(t, unchanged.IsPending())
	})

	t.Run("malformed latest sequence is surfaced", func(t *testing.T) {
		store := memory.NewStore()
		account := seedAccount(t, store)

		// Corrupt the stored pointer so it matches today's prefix but carries
		// garbage where the counter should be.
		current, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		version := current.Version
		current.LatestTransaction = "transaction-20260303-oops"
		current.Version = uuid.New()
		require.NoError(t, store.Put(ctx, ledger.ConditionalPut{Record: current, ExpectedVersion: version}))

		tx := seedPendingTransaction(t, store, account.ID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)
		committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))

		err = committer.Commit(ctx, tx.ID, account.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrMalformedSequence)
	})
}

// racingStore lets a test interleave a competing write between the commit's
// read phase and its transactional write.
type racingStore struct {
	*memory.Store
	beforeTransact func()
}

func (s *racingStore) TransactPut(ctx context.Context, puts ...ledger.ConditionalPut) error {
	if s.beforeTransact != nil {
		hook := s.beforeTransact
		s.beforeTransact = nil
		hook()
	}
	return s.Store.TransactPut(ctx, puts...)
}

func TestCommitter_Commit_VersionRace(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	account := seedAccount(t, inner)
	loser := seedPendingTransaction(t, inner, account.ID, decimal.NewFromInt(100), ledger.TransactionTypeDeposit)
	winner := seedPendingTransaction(t, inner, account.ID, decimal.NewFromInt(50), ledger.TransactionTypeDeposit)

	// The winner commits directly against the inner store after the loser has
	// read its versions but before it writes.
	store := &racingStore{Store: inner}
	store.beforeTransact = func() {
		direct := sequencer.NewCommitter(inner, zaptest.NewLogger(t),
			sequencer.WithClock(fixedClock(fixedDay)))
		require.NoError(t, direct.Commit(ctx, winner.ID, account.ID))
	}

	committer := sequencer.NewCommitter(store, zaptest.NewLogger(t),
		sequencer.WithClock(fixedClock(fixedDay)))

	err := committer.Commit(ctx, loser.ID, account.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	// The losing transaction must be untouched.
	pending, err := inner.GetTransaction(ctx, loser.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsPending())

	// Redelivery recomputes against fresh versions and succeeds.
	require.NoError(t, committer.Commit(ctx, loser.ID, account.ID))

	stampedWinner, err := inner.GetTransaction(ctx, winner.ID)
	require.NoError(t, err)
	stampedLoser, err := inner.GetTransaction(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, "transaction-20260303-000001", stampedWinner.Sequence)
	assert.Equal(t, "transaction-20260303-000002", stampedLoser.Sequence)

	// Each amount applied exactly once.
	final, err := inner.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(150)), "balance %s", final.Balance)
	assert.Equal(t, "transaction-20260303-000002", final.LatestTransaction)
}
