package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingTransaction(t *testing.T) {
	tokens := shared.NewUUIDv7Source()
	accountID := uuid.New()
	now := time.Now().UTC()

	t.Run("creates pending deposit", func(t *testing.T) {
		tx, err := NewPendingTransaction(accountID, "user-1", "EUR",
			decimal.NewFromFloat(150.25), now, TransactionTypeDeposit, tokens)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, tx.ID)
		assert.NotEqual(t, uuid.Nil, tx.Version)
		assert.Equal(t, EntityTypeTransaction, tx.Type)
		assert.Equal(t, accountID, tx.AccountID)
		assert.Equal(t, accountID.String(), tx.Parent)
		assert.Equal(t, "EUR", tx.Currency)
		assert.True(t, tx.Amount.Equal(decimal.NewFromFloat(150.25)))
		assert.True(t, tx.IsPending())
		assert.False(t, tx.IsStamped())
	})

	t.Run("pending sequence embeds a parseable token", func(t *testing.T) {
		tx, err := NewPendingTransaction(accountID, "user-1", "EUR",
			decimal.NewFromInt(10), now, TransactionTypeDeposit, tokens)
		require.NoError(t, err)

		token := strings.TrimPrefix(tx.Sequence, PendingSequencePrefix)
		_, parseErr := uuid.Parse(token)
		assert.NoError(t, parseErr)
	})

	t.Run("rejects non-positive deposit", func(t *testing.T) {
		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
			_, err := NewPendingTransaction(accountID, "user-1", "EUR",
				amount, now, TransactionTypeDeposit, tokens)
			require.Error(t, err, "amount %s", amount)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "INVALID_AMOUNT", domainErr.Code)
		}
	})

	t.Run("rejects non-negative withdrawal", func(t *testing.T) {
		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(5)} {
			_, err := NewPendingTransaction(accountID, "user-1", "EUR",
				amount, now, TransactionTypeWithdrawal, tokens)
			require.Error(t, err, "amount %s", amount)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "INVALID_AMOUNT", domainErr.Code)
		}
	})

	t.Run("rejects nil account", func(t *testing.T) {
		_, err := NewPendingTransaction(uuid.Nil, "user-1", "EUR",
			decimal.NewFromInt(10), now, TransactionTypeDeposit, tokens)
		require.Error(t, err)
	})

	t.Run("rejects blank user", func(t *testing.T) {
		_, err := NewPendingTransaction(accountID, "  ", "EUR",
			decimal.NewFromInt(10), now, TransactionTypeDeposit, tokens)
		require.Error(t, err)
	})

	t.Run("rejects unknown transaction type", func(t *testing.T) {
		_, err := NewPendingTransaction(accountID, "user-1", "EUR",
			decimal.NewFromInt(10), now, TransactionType("TRANSFER"), tokens)
		require.Error(t, err)
	})

	t.Run("rejects zero transaction date", func(t *testing.T) {
		_, err := NewPendingTransaction(accountID, "user-1", "EUR",
			decimal.NewFromInt(10), time.Time{}, TransactionTypeDeposit, tokens)
		require.Error(t, err)
	})
}

func TestTransaction_Lifecycle(t *testing.T) {
	tokens := shared.NewUUIDv7Source()
	tx, err := NewPendingTransaction(uuid.New(), "user-1", "EUR",
		decimal.NewFromInt(10), time.Now().UTC(), TransactionTypeDeposit, tokens)
	require.NoError(t, err)

	require.True(t, tx.IsPending())

	tx.Sequence = StampedSequence(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), 1)
	assert.False(t, tx.IsPending())
	assert.True(t, tx.IsStamped())
}
