package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore persists, per shard, the sequence number of the last change
// record whose batch was fully processed. A checkpoint only advances after the
// dispatcher accepted the whole batch, which is what makes delivery
// at-least-once rather than at-most-once.
type CheckpointStore interface {
	// Get returns the checkpointed sequence number for the shard, or "" if
	// the shard has never been checkpointed
	Get(ctx context.Context, shardID string) (string, error)
	Set(ctx context.Context, shardID, sequenceNumber string) error
}

// RedisCheckpointStore stores checkpoints in Redis under a per-stream prefix
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCheckpointStore creates a checkpoint store namespaced by streamLabel
func NewRedisCheckpointStore(client *redis.Client, streamLabel string) *RedisCheckpointStore {
	return &RedisCheckpointStore{
		client: client,
		prefix: fmt.Sprintf("feed:checkpoint:%s:", streamLabel),
	}
}

// Get returns the shard's checkpoint, or "" when none exists
func (s *RedisCheckpointStore) Get(ctx context.Context, shardID string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+shardID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint for shard %s: %w", shardID, err)
	}
	return value, nil
}

// Set records the shard's checkpoint
func (s *RedisCheckpointStore) Set(ctx context.Context, shardID, sequenceNumber string) error {
	if err := s.client.Set(ctx, s.prefix+shardID, sequenceNumber, 0).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint for shard %s: %w", shardID, err)
	}
	return nil
}

// MemoryCheckpointStore keeps checkpoints in process memory. Useful for tests
// and local runs; a restart re-reads each shard from its trim horizon.
type MemoryCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]string
}

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[string]string)}
}

// Get returns the shard's checkpoint, or "" when none exists
func (s *MemoryCheckpointStore) Get(_ context.Context, shardID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[shardID], nil
}

// Set records the shard's checkpoint
func (s *MemoryCheckpointStore) Set(_ context.Context, shardID, sequenceNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[shardID] = sequenceNumber
	return nil
}

// Ensure both implementations satisfy CheckpointStore
var (
	_ CheckpointStore = (*RedisCheckpointStore)(nil)
	_ CheckpointStore = (*MemoryCheckpointStore)(nil)
)
