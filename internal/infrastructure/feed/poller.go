// Package feed delivers DynamoDB Streams change records to the sequencer
// dispatcher with at-least-once semantics. Redelivery, bounded retries, and
// dead-lettering live here, outside the commit path, so the committer itself
// stays free of retry logic.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/fintechdemo/ledger/internal/application/sequencer"
	"go.uber.org/zap"
)

// Handler receives one delivered batch of change records. It is satisfied by
// *sequencer.Dispatcher.
type Handler interface {
	HandleBatch(ctx context.Context, records []sequencer.ChangeRecord) error
}

// Poller tails every shard of one DynamoDB stream and feeds the records to a
// Handler. A batch that keeps failing after the configured number of
// deliveries is dead-lettered: logged loudly with its record keys and skipped,
// so one poison record cannot wedge the shard forever.
type Poller struct {
	streams       *dynamodbstreams.Client
	streamARN     string
	handler       Handler
	checkpoints   CheckpointStore
	logger        *zap.Logger
	pollInterval  time.Duration
	batchSize     int32
	maxDeliveries int
	retryDelay    time.Duration
}

// PollerOption is a functional option for configuring the Poller
type PollerOption func(*Poller)

// WithPollInterval sets the delay between polling rounds
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.pollInterval = d
	}
}

// WithBatchSize caps how many records one GetRecords call may return
func WithBatchSize(n int32) PollerOption {
	return func(p *Poller) {
		p.batchSize = n
	}
}

// WithMaxDeliveries sets how often a failing batch is redelivered before it
// is dead-lettered
func WithMaxDeliveries(n int) PollerOption {
	return func(p *Poller) {
		p.maxDeliveries = n
	}
}

// WithRetryDelay sets the pause between redeliveries of a failing batch
func WithRetryDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.retryDelay = d
	}
}

// NewPoller creates a poller for the given stream
func NewPoller(
	streams *dynamodbstreams.Client,
	streamARN string,
	handler Handler,
	checkpoints CheckpointStore,
	logger *zap.Logger,
	opts ...PollerOption,
) *Poller {
	p := &Poller{
		streams:       streams,
		streamARN:     streamARN,
		handler:       handler,
		checkpoints:   checkpoints,
		logger:        logger,
		pollInterval:  5 * time.Second,
		batchSize:     100,
		maxDeliveries: 5,
		retryDelay:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls the stream until the context is cancelled
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("change-feed poller started",
		zap.String("stream_arn", p.streamARN),
		zap.Duration("poll_interval", p.pollInterval),
	)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			p.logger.Info("change-feed poller stopped")
			return nil
		}

		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("change-feed poller stopped")
				return nil
			}
			// Transient AWS errors surface here; the next tick retries.
			p.logger.Error("polling round failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("change-feed poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce reads and processes every shard of the stream one time
func (p *Poller) pollOnce(ctx context.Context) error {
	shards, err := p.listShards(ctx)
	if err != nil {
		return err
	}

	for _, shard := range shards {
		if shard.ShardId == nil {
			continue
		}
		if err := p.pollShard(ctx, *shard.ShardId); err != nil {
			return fmt.Errorf("shard %s: %w", *shard.ShardId, err)
		}
	}
	return nil
}

// listShards enumerates the stream's shards, following pagination
func (p *Poller) listShards(ctx context.Context) ([]types.Shard, error) {
	var shards []types.Shard
	var lastShardID *string
	for {
		out, err := p.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(p.streamARN),
			ExclusiveStartShardId: lastShardID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe stream: %w", err)
		}
		shards = append(shards, out.StreamDescription.Shards...)
		lastShardID = out.StreamDescription.LastEvaluatedShardId
		if lastShardID == nil {
			return shards, nil
		}
	}
}

// pollShard reads one page of records from a shard and delivers it. The
// checkpoint advances only after the handler accepted the batch.
func (p *Poller) pollShard(ctx context.Context, shardID string) error {
	iterator, err := p.shardIterator(ctx, shardID)
	if err != nil {
		return err
	}

	out, err := p.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
		ShardIterator: aws.String(iterator),
		Limit:         aws.Int32(p.batchSize),
	})
	if err != nil {
		return fmt.Errorf("failed to get records: %w", err)
	}
	if len(out.Records) == 0 {
		return nil
	}

	batch := translateBatch(out.Records)
	if err := p.deliver(ctx, shardID, batch); err != nil {
		return err
	}

	last := out.Records[len(out.Records)-1]
	if last.Dynamodb != nil && last.Dynamodb.SequenceNumber != nil {
		if err := p.checkpoints.Set(ctx, shardID, *last.Dynamodb.SequenceNumber); err != nil {
			return err
		}
	}
	return nil
}

// shardIterator resumes after the shard's checkpoint, or starts at the trim
// horizon for a shard seen for the first time
func (p *Poller) shardIterator(ctx context.Context, shardID string) (string, error) {
	checkpoint, err := p.checkpoints.Get(ctx, shardID)
	if err != nil {
		return "", err
	}

	input := &dynamodbstreams.GetShardIteratorInput{
		StreamArn: aws.String(p.streamARN),
		ShardId:   aws.String(shardID),
	}
	if checkpoint == "" {
		input.ShardIteratorType = types.ShardIteratorTypeTrimHorizon
	} else {
		input.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		input.SequenceNumber = aws.String(checkpoint)
	}

	out, err := p.streams.GetShardIterator(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to get shard iterator: %w", err)
	}
	if out.ShardIterator == nil {
		return "", fmt.Errorf("shard %s returned no iterator", shardID)
	}
	return *out.ShardIterator, nil
}

// deliver hands the batch to the handler, redelivering the whole batch on any
// error up to maxDeliveries times. A batch that exhausts its deliveries is
// dead-lettered and skipped.
func (p *Poller) deliver(ctx context.Context, shardID string, batch []sequencer.ChangeRecord) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxDeliveries; attempt++ {
		lastErr = p.handler.HandleBatch(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Warn("batch delivery failed, will redeliver",
			zap.String("shard_id", shardID),
			zap.Int("attempt", attempt),
			zap.Int("max_deliveries", p.maxDeliveries),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}

	p.logger.Error("batch dead-lettered after exhausting deliveries",
		zap.String("shard_id", shardID),
		zap.Int("records", len(batch)),
		zap.Strings("record_ids", recordIDs(batch)),
		zap.Error(lastErr),
	)
	return nil
}

// recordIDs extracts the id attribute of each record for dead-letter logging
func recordIDs(batch []sequencer.ChangeRecord) []string {
	ids := make([]string, 0, len(batch))
	for _, record := range batch {
		if record.NewImage == nil {
			ids = append(ids, "")
			continue
		}
		ids = append(ids, record.NewImage["id"])
	}
	return ids
}
