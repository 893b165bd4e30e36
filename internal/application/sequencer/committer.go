// Package sequencer converts newly created pending transactions into strictly
// ordered, per-account, per-day stamped sequences while atomically applying
// each transaction's effect to its account.
package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TransactionCommitter stamps a single pending transaction. Implementations
// must be safely re-runnable: the change feed delivers at least once.
type TransactionCommitter interface {
	Commit(ctx context.Context, transactionID, accountID uuid.UUID) error
}

// Committer implements the atomic ledger commit: it re-reads the transaction
// and account, computes the next date-scoped sequence and the new balances,
// and writes both records in a single conditional transactional put.
//
// The committer never retries internally. On a concurrency conflict the whole
// operation is aborted and shared.ErrConcurrencyConflict surfaces to the
// caller, whose redelivery re-runs the commit against fresh versions.
type Committer struct {
	store  ledger.Store
	tokens shared.TokenSource
	clock  shared.Clock
	logger *zap.Logger
	tracer trace.Tracer
}

// CommitterOption is a functional option for configuring a Committer
type CommitterOption func(*Committer)

// WithTokenSource overrides the version-token source
func WithTokenSource(tokens shared.TokenSource) CommitterOption {
	return func(c *Committer) {
		c.tokens = tokens
	}
}

// WithClock overrides the clock used for sequence dates and updatedAt stamps
func WithClock(clock shared.Clock) CommitterOption {
	return func(c *Committer) {
		c.clock = clock
	}
}

// NewCommitter creates a committer backed by the given store
func NewCommitter(store ledger.Store, logger *zap.Logger, opts ...CommitterOption) *Committer {
	c := &Committer{
		store:  store,
		tokens: shared.NewUUIDv7Source(),
		clock:  shared.SystemClock,
		logger: logger,
		tracer: otel.Tracer("sequencer/committer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit stamps the identified transaction and applies its amount to the
// owning account.
//
// Benign no-ops: a transaction that no longer exists, and a transaction whose
// sequence already left the pending phase (idempotency guard). A missing
// account is fatal for the invocation and surfaces shared.ErrMissingDependency.
func (c *Committer) Commit(ctx context.Context, transactionID, accountID uuid.UUID) error {
	ctx, span := c.tracer.Start(ctx, "Committer.Commit",
		trace.WithAttributes(
			attribute.String("transaction.id", transactionID.String()),
			attribute.String("account.id", accountID.String()),
		))
	defer span.End()

	tx, err := c.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, shared.ErrNotFound) {
		c.logger.Warn("transaction not found, skipping",
			zap.String("transaction_id", transactionID.String()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch transaction %s: %w", transactionID, err)
	}

	if !tx.IsPending() {
		c.logger.Info("transaction already has final sequence, skipping",
			zap.String("transaction_id", transactionID.String()),
			zap.String("sequence", tx.Sequence),
		)
		return nil
	}

	account, err := c.store.GetAccount(ctx, accountID)
	if errors.Is(err, shared.ErrNotFound) {
		c.logger.Error("account not found for transaction",
			zap.String("account_id", accountID.String()),
			zap.String("transaction_id", transactionID.String()),
		)
		return fmt.Errorf("account %s not found for transaction %s: %w",
			accountID, transactionID, shared.ErrMissingDependency)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch account %s: %w", accountID, err)
	}

	// Versions as read; the transactional write below is conditioned on both.
	originalTransactionVersion := tx.Version
	originalAccountVersion := account.Version

	newSequence, err := ledger.NextSequence(account.LatestTransaction, c.clock())
	if err != nil {
		c.logger.Error("failed to generate next sequence",
			zap.String("account_id", accountID.String()),
			zap.String("latest_transaction", account.LatestTransaction),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate sequence for account %s: %w", accountID, err)
	}

	if err := account.ApplyTransactionAmount(tx); err != nil {
		return fmt.Errorf("failed to apply transaction %s to account %s: %w", transactionID, accountID, err)
	}

	now := c.clock()
	tx.Sequence = newSequence
	tx.Version = c.tokens.Next()
	tx.UpdatedAt = now

	account.LatestTransaction = newSequence
	account.Version = c.tokens.Next()
	account.UpdatedAt = now

	err = c.store.TransactPut(ctx,
		ledger.ConditionalPut{Record: tx, ExpectedVersion: originalTransactionVersion},
		ledger.ConditionalPut{Record: account, ExpectedVersion: originalAccountVersion},
	)
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// The losing side of a same-account race lands here; redelivery
			// re-reads fresh versions and recomputes everything from scratch.
			c.logger.Warn("optimistic lock failed, commit will be redelivered",
				zap.String("transaction_id", transactionID.String()),
				zap.String("account_id", accountID.String()),
				zap.String("expected_transaction_version", originalTransactionVersion.String()),
				zap.String("expected_account_version", originalAccountVersion.String()),
			)
			return fmt.Errorf("commit of transaction %s lost version race: %w", transactionID, err)
		}
		return fmt.Errorf("transactional write failed for transaction %s: %w", transactionID, err)
	}

	c.logger.Info("transaction stamped",
		zap.String("transaction_id", transactionID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("sequence", newSequence),
		zap.String("transaction_type", tx.TransactionType.String()),
		zap.String("amount", tx.Amount.String()),
		zap.String("balance", account.Balance.String()),
		zap.String("pending", account.Pending.String()),
	)
	return nil
}

// Ensure Committer implements TransactionCommitter
var _ TransactionCommitter = (*Committer)(nil)
