package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction direction: credit increases the pair balance,
// payment decreases it.
type Kind string

const (
	KindCredit  Kind = "credit"
	KindPayment Kind = "payment"
)

// Valid reports whether k is one of the two transaction kinds.
func (k Kind) Valid() bool {
	return k == KindCredit || k == KindPayment
}

// CreditPair is the (business, customer) relationship row carrying the
// running balance. Positive balance means the customer owes the business.
type CreditPair struct {
	ID           string
	BusinessID   string
	CustomerID   string
	Balance      decimal.Decimal
	LastReminder *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is an immutable ledger entry. Amount is strictly positive; the
// direction lives in Kind.
type Transaction struct {
	ID         string
	BusinessID string
	CustomerID string
	Amount     decimal.Decimal
	Kind       Kind
	Note       string
	ReceiptURL string
	CreatedBy  string
	CreatedAt  time.Time
}

// PairBalance is the authoritative stored balance plus the two display
// aggregates derived from the log.
type PairBalance struct {
	Current      decimal.Decimal
	TotalCredit  decimal.Decimal
	TotalPayment decimal.Decimal
}

// BusinessSummary aggregates a business's book: linked customers, total
// credit extended, and outstanding balance summed over pairs owing money.
type BusinessSummary struct {
	Customers   int
	TotalCredit decimal.Decimal
	Outstanding decimal.Decimal
}

// Reminder records that a business nudged a customer about their balance.
// Delivery happens outside the ledger; this is the persisted trace.
type Reminder struct {
	ID         string
	BusinessID string
	CustomerID string
	SentAt     time.Time
	SentBy     string
	Channel    string
	Message    string
}

// Store is the persistence contract for pairs, transactions and reminders.
// Append relies on the store to apply the transaction to the pair balance
// atomically; callers must not adjust the balance themselves.
type Store interface {
	EnsurePair(ctx context.Context, businessID, customerID string) (CreditPair, error)
	PairFor(ctx context.Context, businessID, customerID string) (CreditPair, error)
	PairsForBusiness(ctx context.Context, businessID string) ([]CreditPair, error)
	PairsForCustomer(ctx context.Context, customerID string) ([]CreditPair, error)

	Append(ctx context.Context, t Transaction) (Transaction, error)
	History(ctx context.Context, businessID, customerID string) ([]Transaction, error)
	RecentForBusiness(ctx context.Context, businessID string, limit int) ([]Transaction, error)
	Aggregates(ctx context.Context, businessID, customerID string) (credit, payment decimal.Decimal, err error)
	Summary(ctx context.Context, businessID string) (BusinessSummary, error)

	Recompute(ctx context.Context, businessID, customerID string) (decimal.Decimal, error)
	RecomputeAll(ctx context.Context) (int, error)

	RecordReminder(ctx context.Context, rem Reminder) error
}
