package sequencer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fintechdemo/ledger/internal/application/sequencer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockCommitter struct {
	mock.Mock
}

func (m *mockCommitter) Commit(ctx context.Context, transactionID, accountID uuid.UUID) error {
	args := m.Called(ctx, transactionID, accountID)
	return args.Error(0)
}

func pendingInsert(transactionID, accountID uuid.UUID) sequencer.ChangeRecord {
	return sequencer.ChangeRecord{
		Kind: sequencer.ChangeKindInsert,
		NewImage: map[string]string{
			"id":        transactionID.String(),
			"accountId": accountID.String(),
			"type":      "TRANSACTION",
			"sequence":  "pending-" + uuid.NewString(),
		},
	}
}

func TestDispatcher_HandleBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches insert of pending transaction", func(t *testing.T) {
		transactionID := uuid.New()
		accountID := uuid.New()

		committer := new(mockCommitter)
		committer.On("Commit", mock.Anything, transactionID, accountID).Return(nil).Once()

		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))
		err := d.HandleBatch(ctx, []sequencer.ChangeRecord{pendingInsert(transactionID, accountID)})

		require.NoError(t, err)
		committer.AssertExpectations(t)
	})

	t.Run("skips records that do not qualify", func(t *testing.T) {
		stamped := pendingInsert(uuid.New(), uuid.New())
		stamped.NewImage["sequence"] = "transaction-20260303-000001"

		noSequence := pendingInsert(uuid.New(), uuid.New())
		delete(noSequence.NewImage, "sequence")

		noType := pendingInsert(uuid.New(), uuid.New())
		delete(noType.NewImage, "type")

		records := []sequencer.ChangeRecord{
			{Kind: sequencer.ChangeKindModify, NewImage: map[string]string{"type": "TRANSACTION"}},
			{Kind: sequencer.ChangeKindRemove, NewImage: map[string]string{"type": "TRANSACTION"}},
			{Kind: sequencer.ChangeKindInsert},
			{Kind: sequencer.ChangeKindInsert, NewImage: map[string]string{"type": "ACCOUNT", "sequence": "account-x"}},
			noType,
			noSequence,
			stamped,
		}

		committer := new(mockCommitter)
		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))

		require.NoError(t, d.HandleBatch(ctx, records))
		committer.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("processes every qualifying record in a batch", func(t *testing.T) {
		first := pendingInsert(uuid.New(), uuid.New())
		second := pendingInsert(uuid.New(), uuid.New())

		committer := new(mockCommitter)
		committer.On("Commit", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))
		require.NoError(t, d.HandleBatch(ctx, []sequencer.ChangeRecord{
			first,
			{Kind: sequencer.ChangeKindModify, NewImage: map[string]string{"type": "TRANSACTION"}},
			second,
		}))
		committer.AssertExpectations(t)
	})

	t.Run("first failing record fails the whole batch", func(t *testing.T) {
		boom := errors.New("store unavailable")
		first := pendingInsert(uuid.New(), uuid.New())
		second := pendingInsert(uuid.New(), uuid.New())

		committer := new(mockCommitter)
		committer.On("Commit", mock.Anything, mock.Anything, mock.Anything).Return(boom).Once()

		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))
		err := d.HandleBatch(ctx, []sequencer.ChangeRecord{first, second})

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		// The second record must not be attempted after the first failure.
		committer.AssertNumberOfCalls(t, "Commit", 1)
	})

	t.Run("unparsable transaction id fails the batch", func(t *testing.T) {
		record := pendingInsert(uuid.New(), uuid.New())
		record.NewImage["id"] = "not-a-uuid"

		committer := new(mockCommitter)
		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))

		err := d.HandleBatch(ctx, []sequencer.ChangeRecord{record})
		require.Error(t, err)
		committer.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unparsable account id fails the batch", func(t *testing.T) {
		record := pendingInsert(uuid.New(), uuid.New())
		record.NewImage["accountId"] = ""

		committer := new(mockCommitter)
		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))

		err := d.HandleBatch(ctx, []sequencer.ChangeRecord{record})
		require.Error(t, err)
		committer.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty batch succeeds", func(t *testing.T) {
		committer := new(mockCommitter)
		d := sequencer.NewDispatcher(committer, zaptest.NewLogger(t))
		assert.NoError(t, d.HandleBatch(ctx, nil))
	})
}
