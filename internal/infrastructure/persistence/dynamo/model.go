package dynamo

import (
	"fmt"
	"time"

	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// timestampLayout is the wire format for createdAt/updatedAt attributes
const timestampLayout = time.RFC3339Nano

// baseItem carries the attributes every record shares. Attribute names match
// the single-table layout: `id` is the partition key, `parent` and `sequence`
// form the parent-sequence-index GSI key.
type baseItem struct {
	ID        string `dynamodbav:"id"`
	Type      string `dynamodbav:"type"`
	Parent    string `dynamodbav:"parent,omitempty"`
	Sequence  string `dynamodbav:"sequence"`
	Version   string `dynamodbav:"version"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func newBaseItem(r shared.BaseRecord) baseItem {
	return baseItem{
		ID:        r.ID.String(),
		Type:      r.Type,
		Parent:    r.Parent,
		Sequence:  r.Sequence,
		Version:   r.Version.String(),
		CreatedAt: r.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt: r.UpdatedAt.UTC().Format(timestampLayout),
	}
}

func (it baseItem) toRecord() (shared.BaseRecord, error) {
	id, err := uuid.Parse(it.ID)
	if err != nil {
		return shared.BaseRecord{}, fmt.Errorf("item has unparsable id %q: %w", it.ID, err)
	}
	version, err := uuid.Parse(it.Version)
	if err != nil {
		return shared.BaseRecord{}, fmt.Errorf("item %s has unparsable version %q: %w", it.ID, it.Version, err)
	}
	createdAt, err := time.Parse(timestampLayout, it.CreatedAt)
	if err != nil {
		return shared.BaseRecord{}, fmt.Errorf("item %s has unparsable createdAt %q: %w", it.ID, it.CreatedAt, err)
	}
	updatedAt, err := time.Parse(timestampLayout, it.UpdatedAt)
	if err != nil {
		return shared.BaseRecord{}, fmt.Errorf("item %s has unparsable updatedAt %q: %w", it.ID, it.UpdatedAt, err)
	}
	return shared.BaseRecord{
		ID:        id,
		Type:      it.Type,
		Parent:    it.Parent,
		Sequence:  it.Sequence,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// accountItem is the storage shape of a ledger.Account
type accountItem struct {
	baseItem
	CustomerID        string `dynamodbav:"customerId"`
	Name              string `dynamodbav:"name"`
	AccountNumber     string `dynamodbav:"accountNumber,omitempty"`
	Currency          string `dynamodbav:"currency"`
	Balance           string `dynamodbav:"balance"`
	Pending           string `dynamodbav:"pending"`
	Status            string `dynamodbav:"status"`
	LatestTransaction string `dynamodbav:"latestTransaction,omitempty"`
}

func newAccountItem(a *ledger.Account) accountItem {
	return accountItem{
		baseItem:          newBaseItem(a.BaseRecord),
		CustomerID:        a.CustomerID.String(),
		Name:              a.Name,
		AccountNumber:     a.AccountNumber,
		Currency:          a.Currency,
		Balance:           a.Balance.String(),
		Pending:           a.Pending.String(),
		Status:            string(a.Status),
		LatestTransaction: a.LatestTransaction,
	}
}

func (it accountItem) toDomain() (*ledger.Account, error) {
	base, err := it.toRecord()
	if err != nil {
		return nil, err
	}
	customerID, err := uuid.Parse(it.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("account %s has unparsable customerId %q: %w", it.ID, it.CustomerID, err)
	}
	balance, err := decimal.NewFromString(it.Balance)
	if err != nil {
		return nil, fmt.Errorf("account %s has unparsable balance %q: %w", it.ID, it.Balance, err)
	}
	pending, err := decimal.NewFromString(it.Pending)
	if err != nil {
		return nil, fmt.Errorf("account %s has unparsable pending %q: %w", it.ID, it.Pending, err)
	}
	return &ledger.Account{
		BaseRecord:        base,
		CustomerID:        customerID,
		Name:              it.Name,
		AccountNumber:     it.AccountNumber,
		Currency:          it.Currency,
		Balance:           balance,
		Pending:           pending,
		Status:            ledger.AccountStatus(it.Status),
		LatestTransaction: it.LatestTransaction,
	}, nil
}

// transactionItem is the storage shape of a ledger.Transaction
type transactionItem struct {
	baseItem
	AccountID          string `dynamodbav:"accountId"`
	UserID             string `dynamodbav:"userId"`
	Currency           string `dynamodbav:"currency"`
	Amount             string `dynamodbav:"amount"`
	TransactedAt       string `dynamodbav:"transactedAt"`
	BeneficiaryIBAN    string `dynamodbav:"beneficiaryIBAN,omitempty"`
	PayorIBAN          string `dynamodbav:"payorIBAN,omitempty"`
	OriginatingCountry string `dynamodbav:"originatingCountry,omitempty"`
	PaymentRef         string `dynamodbav:"paymentRef,omitempty"`
	PurposeRef         string `dynamodbav:"purposeRef,omitempty"`
	TransactionType    string `dynamodbav:"transactionType"`
}

func newTransactionItem(t *ledger.Transaction) transactionItem {
	return transactionItem{
		baseItem:           newBaseItem(t.BaseRecord),
		AccountID:          t.AccountID.String(),
		UserID:             t.UserID,
		Currency:           t.Currency,
		Amount:             t.Amount.String(),
		TransactedAt:       t.TransactedAt.UTC().Format(timestampLayout),
		BeneficiaryIBAN:    t.BeneficiaryIBAN,
		PayorIBAN:          t.PayorIBAN,
		OriginatingCountry: t.OriginatingCountry,
		PaymentRef:         t.PaymentRef,
		PurposeRef:         t.PurposeRef,
		TransactionType:    t.TransactionType.String(),
	}
}

func (it transactionItem) toDomain() (*ledger.Transaction, error) {
	base, err := it.toRecord()
	if err != nil {
		return nil, err
	}
	accountID, err := uuid.Parse(it.AccountID)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has unparsable accountId %q: %w", it.ID, it.AccountID, err)
	}
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has unparsable amount %q: %w", it.ID, it.Amount, err)
	}
	transactedAt, err := time.Parse(timestampLayout, it.TransactedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has unparsable transactedAt %q: %w", it.ID, it.TransactedAt, err)
	}
	return &ledger.Transaction{
		BaseRecord:         base,
		AccountID:          accountID,
		UserID:             it.UserID,
		Currency:           it.Currency,
		Amount:             amount,
		TransactedAt:       transactedAt,
		BeneficiaryIBAN:    it.BeneficiaryIBAN,
		PayorIBAN:          it.PayorIBAN,
		OriginatingCountry: it.OriginatingCountry,
		PaymentRef:         it.PaymentRef,
		PurposeRef:         it.PurposeRef,
		TransactionType:    ledger.TransactionType(it.TransactionType),
	}, nil
}
