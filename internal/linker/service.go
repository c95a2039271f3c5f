// Package linker connects customers to businesses so the ledger can operate
// on their credit pair: by access PIN (typed or scanned from a QR code), or
// by a business adding a customer by phone.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/ledger"
)

const initialCreditNote = "Initial credit"

// Service establishes (business, customer) credit pairs.
type Service struct {
	businesses *business.Service
	customers  *customer.Service
	users      identity.Repository
	ledger     *ledger.Service
	logger     *slog.Logger
}

// NewService constructs a linker service.
func NewService(businesses *business.Service, customers *customer.Service, users identity.Repository, led *ledger.Service, logger *slog.Logger) *Service {
	return &Service{businesses: businesses, customers: customers, users: users, ledger: led, logger: logger}
}

// LinkResult is the outcome of a link attempt.
type LinkResult struct {
	Business business.Business
	Pair     ledger.CreditPair
}

// Link resolves a business by PIN and ensures the credit pair exists.
// Idempotent: repeating with the same (customer, pin) returns the same pair.
func (s *Service) Link(ctx context.Context, customerID, pin string) (LinkResult, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return LinkResult{}, fmt.Errorf("%w: pin is required", fault.ErrInvalid)
	}

	b, err := s.businesses.ByPIN(ctx, pin)
	if err != nil {
		return LinkResult{}, err
	}

	pair, err := s.ledger.EnsurePair(ctx, b.ID, customerID)
	if err != nil {
		return LinkResult{}, err
	}

	return LinkResult{Business: b, Pair: pair}, nil
}

// AddCustomerInput captures a business-initiated add.
type AddCustomerInput struct {
	BusinessID    string
	Phone         string
	Name          string
	InitialCredit decimal.Decimal
	Actor         identity.User
}

// AddCustomerResult is the outcome of a business-initiated add.
type AddCustomerResult struct {
	Customer      customer.Customer
	Pair          ledger.CreditPair
	InitialCredit *ledger.Transaction
}

// AddCustomer links a customer to the business by phone, creating a stub user
// and customer profile when the phone is unknown. Idempotent on repeat for
// the same phone, except that the initial credit is appended whenever the
// caller supplies one; callers must not retry blindly.
func (s *Service) AddCustomer(ctx context.Context, in AddCustomerInput) (AddCustomerResult, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return AddCustomerResult{}, fmt.Errorf("%w: phone is required", fault.ErrInvalid)
	}
	if in.InitialCredit.Sign() < 0 {
		return AddCustomerResult{}, fmt.Errorf("%w: initial credit cannot be negative", fault.ErrInvalid)
	}

	cust, err := s.resolveCustomer(ctx, phone, in.Name)
	if err != nil {
		return AddCustomerResult{}, err
	}

	pair, err := s.ledger.EnsurePair(ctx, in.BusinessID, cust.ID)
	if err != nil {
		return AddCustomerResult{}, err
	}

	out := AddCustomerResult{Customer: cust, Pair: pair}
	if in.InitialCredit.Sign() > 0 {
		tx, err := s.ledger.Post(ctx, ledger.PostInput{
			BusinessID: in.BusinessID,
			CustomerID: cust.ID,
			Kind:       ledger.KindCredit,
			Amount:     in.InitialCredit,
			Note:       initialCreditNote,
			Actor:      in.Actor,
		})
		if err != nil {
			return AddCustomerResult{}, err
		}
		out.InitialCredit = &tx
		out.Pair, err = s.ledger.PairFor(ctx, in.BusinessID, cust.ID)
		if err != nil {
			return AddCustomerResult{}, err
		}
	}

	return out, nil
}

// resolveCustomer finds or creates the customer profile for a phone. A stub
// user is created first so the same phone resolves to the same customer if
// it self-registers later.
func (s *Service) resolveCustomer(ctx context.Context, phone, name string) (customer.Customer, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		if user.Kind != identity.KindCustomer {
			return customer.Customer{}, fmt.Errorf("%w: phone belongs to a business account", fault.ErrConflict)
		}
		return s.customers.EnsureFor(ctx, user.ID, pickName(name, user.Name), phone)

	case errors.Is(err, fault.ErrNotFound):
		stub := identity.User{
			ID:        uuid.New().String(),
			Name:      name,
			Phone:     phone,
			Password:  identity.PlaceholderCredential(),
			Kind:      identity.KindCustomer,
			CreatedAt: time.Now().UTC(),
		}
		profile := customer.NewProfile(stub.ID, name, phone)
		if err := s.users.CreateCustomerUser(ctx, stub, profile); err != nil {
			if errors.Is(err, fault.ErrConflict) {
				// lost a race with a concurrent add or registration
				return s.resolveExisting(ctx, phone, name)
			}
			return customer.Customer{}, err
		}
		s.logger.Info("created stub customer", slog.String("customer_id", profile.ID))
		return profile, nil

	default:
		return customer.Customer{}, err
	}
}

func (s *Service) resolveExisting(ctx context.Context, phone, name string) (customer.Customer, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return customer.Customer{}, err
	}
	if user.Kind != identity.KindCustomer {
		return customer.Customer{}, fmt.Errorf("%w: phone belongs to a business account", fault.ErrConflict)
	}
	return s.customers.EnsureFor(ctx, user.ID, pickName(name, user.Name), phone)
}

func pickName(preferred, fallback string) string {
	if strings.TrimSpace(preferred) != "" {
		return preferred
	}
	return fallback
}
