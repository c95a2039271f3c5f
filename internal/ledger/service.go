package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
)

// Service wraps the store with the validation and actor-recovery rules of the
// append path, and exposes the read/reconciliation operations.
type Service struct {
	store  Store
	users  identity.Repository
	logger *slog.Logger
}

// NewService constructs a ledger service.
func NewService(store Store, users identity.Repository, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, logger: logger}
}

// PostInput captures a transaction append request. Actor is the session
// principal; it carries enough data to restore a lost user row.
type PostInput struct {
	BusinessID string
	CustomerID string
	Kind       Kind
	Amount     decimal.Decimal
	Note       string
	ReceiptURL string
	Actor      identity.User
}

// Post validates and appends a transaction. The store applies the amount to
// the pair balance in the same commit.
func (s *Service) Post(ctx context.Context, in PostInput) (Transaction, error) {
	if !in.Kind.Valid() {
		return Transaction{}, fmt.Errorf("%w: unknown transaction kind %q", fault.ErrInvalid, in.Kind)
	}
	if in.Amount.Sign() <= 0 {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", fault.ErrInvalid)
	}
	if _, err := s.store.PairFor(ctx, in.BusinessID, in.CustomerID); err != nil {
		return Transaction{}, err
	}
	if err := s.ensureActor(ctx, in.Actor); err != nil {
		return Transaction{}, err
	}

	t := Transaction{
		ID:         uuid.New().String(),
		BusinessID: in.BusinessID,
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
		Kind:       in.Kind,
		Note:       in.Note,
		ReceiptURL: in.ReceiptURL,
		CreatedBy:  in.Actor.ID,
	}
	return s.store.Append(ctx, t)
}

// EnsurePair returns the pair for (business, customer), creating it when
// absent. Exposed for the linker.
func (s *Service) EnsurePair(ctx context.Context, businessID, customerID string) (CreditPair, error) {
	return s.store.EnsurePair(ctx, businessID, customerID)
}

// PairFor fetches an existing pair.
func (s *Service) PairFor(ctx context.Context, businessID, customerID string) (CreditPair, error) {
	return s.store.PairFor(ctx, businessID, customerID)
}

// PairsForBusiness lists a business's pairs.
func (s *Service) PairsForBusiness(ctx context.Context, businessID string) ([]CreditPair, error) {
	return s.store.PairsForBusiness(ctx, businessID)
}

// PairsForCustomer lists a customer's pairs.
func (s *Service) PairsForCustomer(ctx context.Context, customerID string) ([]CreditPair, error) {
	return s.store.PairsForCustomer(ctx, customerID)
}

// History returns the pair's transactions, newest first.
func (s *Service) History(ctx context.Context, businessID, customerID string) ([]Transaction, error) {
	if _, err := s.store.PairFor(ctx, businessID, customerID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, businessID, customerID)
}

// RecentForBusiness returns the latest transactions across a business's pairs.
func (s *Service) RecentForBusiness(ctx context.Context, businessID string, limit int) ([]Transaction, error) {
	return s.store.RecentForBusiness(ctx, businessID, limit)
}

// PairBalance returns the stored balance plus the display aggregates. Drift
// between the two is the callers' signal to run Recompute.
func (s *Service) PairBalance(ctx context.Context, businessID, customerID string) (PairBalance, error) {
	pair, err := s.store.PairFor(ctx, businessID, customerID)
	if err != nil {
		return PairBalance{}, err
	}
	credit, payment, err := s.store.Aggregates(ctx, businessID, customerID)
	if err != nil {
		return PairBalance{}, err
	}
	return PairBalance{Current: pair.Balance, TotalCredit: credit, TotalPayment: payment}, nil
}

// BusinessSummary returns the business-wide aggregates.
func (s *Service) BusinessSummary(ctx context.Context, businessID string) (BusinessSummary, error) {
	return s.store.Summary(ctx, businessID)
}

// Recompute overwrites the pair balance from the transaction log.
func (s *Service) Recompute(ctx context.Context, businessID, customerID string) (decimal.Decimal, error) {
	return s.store.Recompute(ctx, businessID, customerID)
}

// RecomputeAll repairs every pair. Returns the number of pairs touched.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	return s.store.RecomputeAll(ctx)
}

// RemindInput captures a reminder request.
type RemindInput struct {
	BusinessID string
	CustomerID string
	Channel    string
	Message    string
	ActorID    string
}

// Remind records the reminder and stamps the pair's last reminder date. The
// caller delivers the message itself, e.g. via a WhatsApp deep link.
func (s *Service) Remind(ctx context.Context, in RemindInput) (Reminder, error) {
	if _, err := s.store.PairFor(ctx, in.BusinessID, in.CustomerID); err != nil {
		return Reminder{}, err
	}
	rem := Reminder{
		ID:         uuid.New().String(),
		BusinessID: in.BusinessID,
		CustomerID: in.CustomerID,
		SentAt:     time.Now().UTC(),
		SentBy:     in.ActorID,
		Channel:    in.Channel,
		Message:    in.Message,
	}
	if err := s.store.RecordReminder(ctx, rem); err != nil {
		return Reminder{}, err
	}
	return rem, nil
}

// ensureActor verifies the acting user row exists, restoring it from session
// data when it has been lost. This is the only place the ledger touches the
// user table.
func (s *Service) ensureActor(ctx context.Context, actor identity.User) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: missing actor", fault.ErrInvalid)
	}
	_, err := s.users.FindByID(ctx, actor.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return err
	}

	s.logger.Warn("restoring lost user row for transaction actor", slog.String("user_id", actor.ID))
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	if actor.Password == "" {
		actor.Password = identity.PlaceholderCredential()
	}
	return s.users.Restore(ctx, actor)
}
