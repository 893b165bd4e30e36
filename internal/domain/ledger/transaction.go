package ledger

import (
	"strings"
	"time"

	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityTypeTransaction is the entity type discriminator for transaction records
const EntityTypeTransaction = "TRANSACTION"

// TransactionType distinguishes deposits from withdrawals
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// IsValid checks if the type is a valid TransactionType
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// Transaction is a money movement against exactly one account. Amount is
// signed: positive for deposits, negative for withdrawals. The Sequence field
// of the embedded record carries the two-phase lifecycle: `pending-<token>`
// at creation, then `transaction-<date>-<counter>` once stamped. Apart from
// that single transition a transaction is immutable.
type Transaction struct {
	shared.BaseRecord
	AccountID          uuid.UUID
	UserID             string
	Currency           string
	Amount             decimal.Decimal
	TransactedAt       time.Time
	BeneficiaryIBAN    string
	PayorIBAN          string
	OriginatingCountry string
	PaymentRef         string
	PurposeRef         string
	TransactionType    TransactionType
}

// IsPending reports whether the transaction has not been stamped yet
func (t *Transaction) IsPending() bool {
	return strings.HasPrefix(t.Sequence, PendingSequencePrefix)
}

// IsStamped reports whether the transaction carries a final sequence
func (t *Transaction) IsStamped() bool {
	return strings.HasPrefix(t.Sequence, StampedSequencePrefix)
}

// NewPendingTransaction creates a transaction in the pending phase, shaped the
// way the transaction-creation collaborator produces it: `pending-` sequence
// with a time-ordered token, version set, parent pointing at the account for
// the secondary index.
func NewPendingTransaction(
	accountID uuid.UUID,
	userID string,
	currency string,
	amount decimal.Decimal,
	transactedAt time.Time,
	transactionType TransactionType,
	tokens shared.TokenSource,
) (*Transaction, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account ID cannot be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if !transactionType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", "Transaction type must be DEPOSIT or WITHDRAWAL")
	}
	if transactionType == TransactionTypeDeposit && amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Deposit amount must be positive")
	}
	if transactionType == TransactionTypeWithdrawal && amount.GreaterThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Withdrawal amount must be negative")
	}
	if transactedAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_TRANSACTED_AT", "Transaction date cannot be empty")
	}

	tx := &Transaction{
		BaseRecord:      shared.NewBaseRecord(EntityTypeTransaction, tokens),
		AccountID:       accountID,
		UserID:          userID,
		Currency:        currency,
		Amount:          amount,
		TransactedAt:    transactedAt,
		TransactionType: transactionType,
	}
	tx.Parent = accountID.String()
	tx.Sequence = PendingSequence(tokens.Next())
	return tx, nil
}
