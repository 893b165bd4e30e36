package shared

import (
	"time"

	"github.com/google/uuid"
)

// Record is the base interface for all persisted ledger records
type Record interface {
	GetID() uuid.UUID
	GetEntityType() string
	GetParent() string
	GetSequence() string
	GetVersion() uuid.UUID
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// BaseRecord provides the common fields shared by every record in the store.
// Parent and Sequence form the composite key of the parent-sequence secondary
// index. Version is an opaque UUIDv7 token that is replaced on every write and
// is the sole basis for optimistic concurrency.
type BaseRecord struct {
	ID        uuid.UUID
	Type      string
	Parent    string
	Sequence  string
	Version   uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetID returns the record ID
func (r *BaseRecord) GetID() uuid.UUID {
	return r.ID
}

// GetEntityType returns the entity type discriminator
func (r *BaseRecord) GetEntityType() string {
	return r.Type
}

// GetParent returns the secondary-index partition key
func (r *BaseRecord) GetParent() string {
	return r.Parent
}

// GetSequence returns the secondary-index sort key
func (r *BaseRecord) GetSequence() string {
	return r.Sequence
}

// GetVersion returns the optimistic-concurrency token
func (r *BaseRecord) GetVersion() uuid.UUID {
	return r.Version
}

// GetCreatedAt returns the creation timestamp
func (r *BaseRecord) GetCreatedAt() time.Time {
	return r.CreatedAt
}

// GetUpdatedAt returns the last write timestamp
func (r *BaseRecord) GetUpdatedAt() time.Time {
	return r.UpdatedAt
}

// NewBaseRecord creates a new base record with a generated ID and version
func NewBaseRecord(entityType string, tokens TokenSource) BaseRecord {
	now := time.Now().UTC()
	return BaseRecord{
		ID:        uuid.New(),
		Type:      entityType,
		Version:   tokens.Next(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
