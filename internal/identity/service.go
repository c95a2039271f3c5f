package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
)

const (
	minPasswordLen = 4
	pinAttempts    = 5
)

// Service manages registration, login and principal-to-profile resolution.
type Service struct {
	repo       Repository
	businesses *business.Service
	customers  *customer.Service
	logger     *slog.Logger
}

// NewService creates an identity service.
func NewService(repo Repository, businesses *business.Service, customers *customer.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, businesses: businesses, customers: customers, logger: logger}
}

// Register creates a user and its kind-specific profile in one logical unit.
// A business profile gets a freshly issued access PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	phone := strings.TrimSpace(creds.Phone)
	if phone == "" {
		return User{}, fmt.Errorf("%w: phone is required", fault.ErrInvalid)
	}
	if len(creds.Password) < minPasswordLen {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", fault.ErrInvalid, minPasswordLen)
	}
	if !creds.Kind.Valid() {
		return User{}, fmt.Errorf("%w: unknown principal kind %q", fault.ErrInvalid, creds.Kind)
	}

	if _, err := s.repo.FindByPhone(ctx, phone); err == nil {
		return User{}, fmt.Errorf("%w: phone already registered", fault.ErrConflict)
	} else if !errors.Is(err, fault.ErrNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", fault.ErrUnavailable, err)
	}

	user := User{
		ID:        uuid.New().String(),
		Name:      creds.Name,
		Phone:     phone,
		Password:  string(hash),
		Kind:      creds.Kind,
		CreatedAt: time.Now().UTC(),
	}

	switch creds.Kind {
	case KindBusiness:
		if err := s.createBusinessUser(ctx, user); err != nil {
			return User{}, err
		}
	case KindCustomer:
		if err := s.repo.CreateCustomerUser(ctx, user, customer.NewProfile(user.ID, user.Name, user.Phone)); err != nil {
			return User{}, err
		}
	}

	return user, nil
}

// Login verifies credentials for the given principal kind.
func (s *Service) Login(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return User{}, fmt.Errorf("%w: invalid phone or password", fault.ErrUnauthorized)
		}
		return User{}, err
	}
	if user.Kind != creds.Kind {
		return User{}, fmt.Errorf("%w: invalid phone or password", fault.ErrUnauthorized)
	}
	if !s.checkPassword(user, creds.Password) {
		return User{}, fmt.Errorf("%w: invalid phone or password", fault.ErrUnauthorized)
	}
	return user, nil
}

// Profile is the kind-specific profile a session resolves to. Exactly one of
// Business or Customer is set, matching Kind.
type Profile struct {
	Kind     Kind
	Business *business.Business
	Customer *customer.Customer
}

// CurrentProfile resolves a user to its profile, creating the profile on
// first access if the user row exists without one.
func (s *Service) CurrentProfile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return Profile{}, fmt.Errorf("%w: session user no longer exists", fault.ErrUnauthorized)
		}
		return Profile{}, err
	}

	switch user.Kind {
	case KindBusiness:
		b, err := s.businesses.EnsureFor(ctx, user.ID, user.Name)
		if err != nil {
			return Profile{}, err
		}
		return Profile{Kind: KindBusiness, Business: &b}, nil
	case KindCustomer:
		c, err := s.customers.EnsureFor(ctx, user.ID, user.Name, user.Phone)
		if err != nil {
			return Profile{}, err
		}
		return Profile{Kind: KindCustomer, Customer: &c}, nil
	default:
		return Profile{}, fmt.Errorf("%w: unknown principal kind %q", fault.ErrInvalid, user.Kind)
	}
}

// FindByID fetches a user row.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) createBusinessUser(ctx context.Context, user User) error {
	for attempt := 0; attempt < pinAttempts; attempt++ {
		profile, err := business.NewProfile(user.ID, user.Name)
		if err != nil {
			return err
		}
		err = s.repo.CreateBusinessUser(ctx, user, profile)
		if err == nil {
			return nil
		}
		if fault.IsConstraint(err, "access_pin") {
			continue
		}
		if errors.Is(err, fault.ErrConflict) {
			return fmt.Errorf("%w: phone already registered", fault.ErrConflict)
		}
		return err
	}
	return fmt.Errorf("%w: could not issue a unique access pin", fault.ErrUnavailable)
}

// checkPassword verifies the supplied password against the stored credential.
// Bcrypt hashes are the norm; plaintext rows migrated from the old system are
// compared in constant time and reported so they can be rehashed.
func (s *Service) checkPassword(user User, password string) bool {
	if strings.HasPrefix(user.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
	}

	ok := subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
	if ok && s.logger != nil {
		s.logger.Warn("legacy plaintext credential accepted", slog.String("user_id", user.ID))
	}
	return ok
}
