package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fintechdemo/ledger/internal/application/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeHandler fails the first failures deliveries and succeeds afterwards
type fakeHandler struct {
	failures int
	calls    int
	batches  [][]sequencer.ChangeRecord
}

func (h *fakeHandler) HandleBatch(_ context.Context, records []sequencer.ChangeRecord) error {
	h.calls++
	h.batches = append(h.batches, records)
	if h.calls <= h.failures {
		return errors.New("handler rejected batch")
	}
	return nil
}

func newTestPoller(t *testing.T, handler Handler, opts ...PollerOption) *Poller {
	t.Helper()
	base := []PollerOption{WithRetryDelay(time.Millisecond)}
	return NewPoller(nil, "arn:aws:dynamodb:eu-west-1:000000000000:table/t/stream/s",
		handler, NewMemoryCheckpointStore(), zaptest.NewLogger(t), append(base, opts...)...)
}

func TestPoller_Deliver(t *testing.T) {
	ctx := context.Background()
	batch := []sequencer.ChangeRecord{
		{Kind: sequencer.ChangeKindInsert, NewImage: map[string]string{"id": "tx-1"}},
	}

	t.Run("delivers once on success", func(t *testing.T) {
		handler := &fakeHandler{}
		p := newTestPoller(t, handler)

		require.NoError(t, p.deliver(ctx, "shard-0001", batch))
		assert.Equal(t, 1, handler.calls)
	})

	t.Run("redelivers the whole batch until it succeeds", func(t *testing.T) {
		handler := &fakeHandler{failures: 2}
		p := newTestPoller(t, handler, WithMaxDeliveries(5))

		require.NoError(t, p.deliver(ctx, "shard-0001", batch))
		assert.Equal(t, 3, handler.calls)
		for _, delivered := range handler.batches {
			assert.Equal(t, batch, delivered)
		}
	})

	t.Run("dead-letters after exhausting deliveries", func(t *testing.T) {
		handler := &fakeHandler{failures: 100}
		p := newTestPoller(t, handler, WithMaxDeliveries(3))

		// Dead-lettering swallows the error so the shard can move on.
		require.NoError(t, p.deliver(ctx, "shard-0001", batch))
		assert.Equal(t, 3, handler.calls)
	})

	t.Run("stops redelivering on context cancellation", func(t *testing.T) {
		handler := &fakeHandler{failures: 100}
		p := newTestPoller(t, handler, WithMaxDeliveries(100))

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := p.deliver(cancelCtx, "shard-0001", batch)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, handler.calls)
	})
}

func TestRecordIDs(t *testing.T) {
	batch := []sequencer.ChangeRecord{
		{Kind: sequencer.ChangeKindInsert, NewImage: map[string]string{"id": "tx-1"}},
		{Kind: sequencer.ChangeKindInsert},
		{Kind: sequencer.ChangeKindInsert, NewImage: map[string]string{"type": "TRANSACTION"}},
	}

	assert.Equal(t, []string{"tx-1", "", ""}, recordIDs(batch))
}

func TestPollerOptions(t *testing.T) {
	// Feed settings arrive as plain ints from configuration; the batch size is
	// narrowed to the int32 the streams API takes. The configured bound of
	// 1..1000 keeps the conversion lossless.
	configured := struct {
		pollInterval  time.Duration
		batchSize     int
		maxDeliveries int
		retryDelay    time.Duration
	}{
		pollInterval:  250 * time.Millisecond,
		batchSize:     1000,
		maxDeliveries: 7,
		retryDelay:    50 * time.Millisecond,
	}

	p := NewPoller(nil, "arn:aws:dynamodb:eu-west-1:000000000000:table/t/stream/s",
		&fakeHandler{}, NewMemoryCheckpointStore(), zaptest.NewLogger(t),
		WithPollInterval(configured.pollInterval),
		WithBatchSize(int32(configured.batchSize)),
		WithMaxDeliveries(configured.maxDeliveries),
		WithRetryDelay(configured.retryDelay),
	)

	assert.Equal(t, configured.pollInterval, p.pollInterval)
	assert.Equal(t, int32(1000), p.batchSize)
	assert.Equal(t, 7, p.maxDeliveries)
	assert.Equal(t, configured.retryDelay, p.retryDelay)
}

func TestPoller_Run_StopsOnCancel(t *testing.T) {
	handler := &fakeHandler{}
	p := newTestPoller(t, handler, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
