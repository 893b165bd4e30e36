package sequencer

import (
	"context"
	"fmt"
	"strings"

	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ChangeKind is the write operation a change record describes
type ChangeKind string

const (
	ChangeKindInsert ChangeKind = "INSERT"
	ChangeKindModify ChangeKind = "MODIFY"
	ChangeKindRemove ChangeKind = "REMOVE"
)

// Change-record attribute names, matching the stored record shape
const (
	attrType      = "type"
	attrSequence  = "sequence"
	attrID        = "id"
	attrAccountID = "accountId"
)

// ChangeRecord is one record-level write notification from the change feed:
// the operation kind plus the full post-write attribute set of the record.
type ChangeRecord struct {
	Kind     ChangeKind
	NewImage map[string]string
}

// Dispatcher consumes change-feed batches, filters them down to inserts of
// pending transactions, and invokes the committer once per qualifying record.
//
// Failure policy: the first commit error fails the whole batch so the feed
// delivery mechanism redelivers it in full. That trades throughput for
// simplicity and leans on the committer being safely re-runnable.
type Dispatcher struct {
	committer TransactionCommitter
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewDispatcher creates a dispatcher that routes qualifying records to committer
func NewDispatcher(committer TransactionCommitter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		committer: committer,
		logger:    logger,
		tracer:    otel.Tracer("sequencer/dispatcher"),
	}
}

// HandleBatch processes one delivered batch of change records
func (d *Dispatcher) HandleBatch(ctx context.Context, records []ChangeRecord) error {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.HandleBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(records))))
	defer span.End()

	d.logger.Debug("processing change-feed batch", zap.Int("records", len(records)))

	for i, record := range records {
		if err := d.handleRecord(ctx, record); err != nil {
			return fmt.Errorf("change record %d: %w", i, err)
		}
	}
	return nil
}

// handleRecord filters a single change record and commits it if it is an
// insert of a pending transaction. Every skip is deliberate and logged at
// debug level; only records that reach the committer can fail the batch.
func (d *Dispatcher) handleRecord(ctx context.Context, record ChangeRecord) error {
	if record.Kind != ChangeKindInsert {
		d.logger.Debug("skipping non-insert change record", zap.String("kind", string(record.Kind)))
		return nil
	}
	if record.NewImage == nil {
		d.logger.Warn("insert change record has no new image, skipping")
		return nil
	}

	entityType, ok := record.NewImage[attrType]
	if !ok {
		d.logger.Debug("change record has no type attribute, skipping")
		return nil
	}
	if entityType != ledger.EntityTypeTransaction {
		d.logger.Debug("change record is not a transaction, skipping",
			zap.String("type", entityType))
		return nil
	}

	sequence, ok := record.NewImage[attrSequence]
	if !ok {
		d.logger.Warn("transaction change record has no sequence attribute, skipping")
		return nil
	}
	if !strings.HasPrefix(sequence, ledger.PendingSequencePrefix) {
		d.logger.Debug("transaction sequence is not pending, skipping",
			zap.String("sequence", sequence))
		return nil
	}

	transactionID, err := uuid.Parse(record.NewImage[attrID])
	if err != nil {
		return fmt.Errorf("change record carries unparsable transaction id %q: %w",
			record.NewImage[attrID], err)
	}
	accountID, err := uuid.Parse(record.NewImage[attrAccountID])
	if err != nil {
		return fmt.Errorf("change record carries unparsable account id %q: %w",
			record.NewImage[attrAccountID], err)
	}

	d.logger.Info("dispatching pending transaction",
		zap.String("transaction_id", transactionID.String()),
		zap.String("account_id", accountID.String()),
	)

	if err := d.committer.Commit(ctx, transactionID, accountID); err != nil {
		return fmt.Errorf("commit of transaction %s failed: %w", transactionID, err)
	}
	return nil
}
