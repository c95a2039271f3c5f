package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khata-app/khata_backend/internal/fault"
)

type memoryStore struct {
	mu        sync.RWMutex
	pairs     map[string]CreditPair // keyed by businessID|customerID
	txs       []Transaction         // append order
	reminders []Reminder
}

// NewMemoryStore creates a concurrency-safe in-memory ledger store. It mirrors
// the Postgres trigger: every append adjusts the matching pair balance.
func NewMemoryStore() Store {
	return &memoryStore{pairs: make(map[string]CreditPair)}
}

func pairKey(businessID, customerID string) string {
	return businessID + "|" + customerID
}

func (s *memoryStore) EnsurePair(_ context.Context, businessID, customerID string) (CreditPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(businessID, customerID)
	if p, exists := s.pairs[key]; exists {
		return p, nil
	}
	now := time.Now().UTC()
	p := CreditPair{
		ID:         uuid.New().String(),
		BusinessID: businessID,
		CustomerID: customerID,
		Balance:    decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.pairs[key] = p
	return p, nil
}

func (s *memoryStore) PairFor(_ context.Context, businessID, customerID string) (CreditPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.pairs[pairKey(businessID, customerID)]
	if !exists {
		return CreditPair{}, fmt.Errorf("%w: no such credit pair", fault.ErrNotFound)
	}
	return p, nil
}

func (s *memoryStore) PairsForBusiness(_ context.Context, businessID string) ([]CreditPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CreditPair
	for _, p := range s.pairs {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) PairsForCustomer(_ context.Context, customerID string) ([]CreditPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CreditPair
	for _, p := range s.pairs {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) Append(_ context.Context, t Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(t.BusinessID, t.CustomerID)
	p, exists := s.pairs[key]
	if !exists {
		return Transaction{}, fmt.Errorf("%w: transaction references no credit pair", fault.ErrInvalid)
	}
	if !t.Kind.Valid() {
		return Transaction{}, fmt.Errorf("%w: unknown transaction kind %q", fault.ErrInvalid, t.Kind)
	}
	if t.Amount.Sign() <= 0 {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", fault.ErrInvalid)
	}

	t.CreatedAt = time.Now().UTC()
	s.txs = append(s.txs, t)

	if t.Kind == KindCredit {
		p.Balance = p.Balance.Add(t.Amount)
	} else {
		p.Balance = p.Balance.Sub(t.Amount)
	}
	p.UpdatedAt = t.CreatedAt
	s.pairs[key] = p

	return t, nil
}

func (s *memoryStore) History(_ context.Context, businessID, customerID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		t := s.txs[i]
		if t.BusinessID == businessID && t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryStore) RecentForBusiness(_ context.Context, businessID string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txs[i].BusinessID == businessID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func (s *memoryStore) Aggregates(_ context.Context, businessID, customerID string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credit, payment := decimal.Zero, decimal.Zero
	for _, t := range s.txs {
		if t.BusinessID != businessID || t.CustomerID != customerID {
			continue
		}
		if t.Kind == KindCredit {
			credit = credit.Add(t.Amount)
		} else {
			payment = payment.Add(t.Amount)
		}
	}
	return credit, payment, nil
}

func (s *memoryStore) Summary(_ context.Context, businessID string) (BusinessSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := BusinessSummary{TotalCredit: decimal.Zero, Outstanding: decimal.Zero}
	for _, p := range s.pairs {
		if p.BusinessID != businessID {
			continue
		}
		out.Customers++
		if p.Balance.Sign() > 0 {
			out.Outstanding = out.Outstanding.Add(p.Balance)
		}
	}
	for _, t := range s.txs {
		if t.BusinessID == businessID && t.Kind == KindCredit {
			out.TotalCredit = out.TotalCredit.Add(t.Amount)
		}
	}
	return out, nil
}

func (s *memoryStore) Recompute(_ context.Context, businessID, customerID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(businessID, customerID)
	p, exists := s.pairs[key]
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: no such credit pair", fault.ErrNotFound)
	}
	p.Balance = s.sumLocked(businessID, customerID)
	p.UpdatedAt = time.Now().UTC()
	s.pairs[key] = p
	return p.Balance, nil
}

func (s *memoryStore) RecomputeAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pairs {
		p.Balance = s.sumLocked(p.BusinessID, p.CustomerID)
		p.UpdatedAt = time.Now().UTC()
		s.pairs[key] = p
	}
	return len(s.pairs), nil
}

func (s *memoryStore) RecordReminder(_ context.Context, rem Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(rem.BusinessID, rem.CustomerID)
	p, exists := s.pairs[key]
	if !exists {
		return fmt.Errorf("%w: no such credit pair", fault.ErrNotFound)
	}
	s.reminders = append(s.reminders, rem)
	sentAt := rem.SentAt
	p.LastReminder = &sentAt
	s.pairs[key] = p
	return nil
}

func (s *memoryStore) sumLocked(businessID, customerID string) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.txs {
		if t.BusinessID != businessID || t.CustomerID != customerID {
			continue
		}
		if t.Kind == KindCredit {
			sum = sum.Add(t.Amount)
		} else {
			sum = sum.Sub(t.Amount)
		}
	}
	return sum
}
