package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityTypeAccount is the entity type discriminator for account records
const EntityTypeAccount = "ACCOUNT"

// AccountStatus represents the lifecycle status of an account
type AccountStatus string

const (
	AccountStatusPending AccountStatus = "PENDING"
	AccountStatusActive  AccountStatus = "ACTIVE"
	AccountStatusFrozen  AccountStatus = "FROZEN"
	AccountStatusClosed  AccountStatus = "CLOSED"
)

// IsValid checks if the status is a valid AccountStatus
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusFrozen, AccountStatusClosed:
		return true
	}
	return false
}

// String returns the string representation of AccountStatus
func (s AccountStatus) String() string {
	return string(s)
}

// Account is the owning side of every transaction. Balance carries the
// confirmed, settled amount (only deposits move it); Pending carries the
// magnitude of unsettled outgoing amounts (only withdrawals move it).
// LatestTransaction holds the sequence of the most recently stamped
// transaction for this account and is empty until the first stamping.
//
// After creation an account is mutated exclusively by the committer, and only
// through the conditional transactional write: the account row is the single
// point of serialization for its transactions.
type Account struct {
	shared.BaseRecord
	CustomerID        uuid.UUID
	Name              string
	AccountNumber     string
	Currency          string
	Balance           decimal.Decimal
	Pending           decimal.Decimal
	Status            AccountStatus
	LatestTransaction string
}

// NewAccount creates a new account with zero balances. This mirrors the shape
// the account-creation collaborator produces; the sequencer core itself never
// creates accounts.
func NewAccount(customerID uuid.UUID, name, accountNumber, currency string, tokens shared.TokenSource) (*Account, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NAME", "Account name cannot be empty")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if accountNumber == "" {
		accountNumber = fmt.Sprintf("ACC%d", time.Now().UnixMilli())
	}

	account := &Account{
		BaseRecord:    shared.NewBaseRecord(EntityTypeAccount, tokens),
		CustomerID:    customerID,
		Name:          name,
		AccountNumber: accountNumber,
		Currency:      currency,
		Balance:       decimal.Zero,
		Pending:       decimal.Zero,
		Status:        AccountStatusActive,
	}
	account.Parent = customerID.String()
	account.Sequence = AccountSequence(tokens.Next())
	return account, nil
}

// ApplyTransactionAmount applies the balance effect of stamping a transaction.
// Deposits move Balance only; withdrawals move Pending only (by the absolute
// amount). Settlement of pending amounts into the balance happens elsewhere.
func (a *Account) ApplyTransactionAmount(t *Transaction) error {
	switch t.TransactionType {
	case TransactionTypeDeposit:
		a.Balance = a.Balance.Add(t.Amount)
	case TransactionTypeWithdrawal:
		a.Pending = a.Pending.Add(t.Amount.Abs())
	default:
		return shared.NewDomainError("INVALID_TRANSACTION_TYPE",
			fmt.Sprintf("Unknown transaction type %q", t.TransactionType))
	}
	return nil
}
