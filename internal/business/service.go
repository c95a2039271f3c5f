package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/khata-app/khata_backend/internal/fault"
)

const pinIssueAttempts = 5

// Service manages business profiles and their access PINs.
type Service struct {
	repo Repository
}

// NewService creates a business service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewProfile assembles a business profile with a freshly issued PIN. The
// caller persists it, retrying via ReissuePIN when the PIN collides.
func NewProfile(userID, name string) (Business, error) {
	pin, err := NewPIN()
	if err != nil {
		return Business{}, fmt.Errorf("%w: %v", fault.ErrUnavailable, err)
	}
	return Business{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		AccessPIN: pin,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EnsureFor returns the business owned by userID, creating it on first
// access. This is the recovery path for user rows inserted without a profile.
func (s *Service) EnsureFor(ctx context.Context, userID, name string) (Business, error) {
	b, err := s.repo.ByUserID(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !isNotFound(err) {
		return Business{}, err
	}

	for attempt := 0; attempt < pinIssueAttempts; attempt++ {
		b, err = NewProfile(userID, name)
		if err != nil {
			return Business{}, err
		}
		err = s.repo.Create(ctx, b)
		if err == nil {
			return b, nil
		}
		if !fault.IsConstraint(err, "access_pin") {
			return Business{}, err
		}
	}
	return Business{}, fmt.Errorf("%w: could not issue a unique access pin", fault.ErrUnavailable)
}

// ByID fetches a business profile.
func (s *Service) ByID(ctx context.Context, id string) (Business, error) {
	return s.repo.ByID(ctx, id)
}

// ByUserID fetches the business owned by a user.
func (s *Service) ByUserID(ctx context.Context, userID string) (Business, error) {
	return s.repo.ByUserID(ctx, userID)
}

// ByPIN resolves a business by its access PIN.
func (s *Service) ByPIN(ctx context.Context, pin string) (Business, error) {
	b, err := s.repo.ByPIN(ctx, pin)
	if err != nil {
		if isNotFound(err) {
			return Business{}, fmt.Errorf("%w: no business with that pin", fault.ErrNotFound)
		}
		return Business{}, err
	}
	return b, nil
}

// RegeneratePIN replaces the access PIN. Existing credit pairs are unaffected;
// only future link attempts need the new PIN.
func (s *Service) RegeneratePIN(ctx context.Context, id string) (string, error) {
	for attempt := 0; attempt < pinIssueAttempts; attempt++ {
		pin, err := NewPIN()
		if err != nil {
			return "", fmt.Errorf("%w: %v", fault.ErrUnavailable, err)
		}
		err = s.repo.UpdatePIN(ctx, id, pin)
		if err == nil {
			return pin, nil
		}
		if !fault.IsConstraint(err, "access_pin") {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not issue a unique access pin", fault.ErrUnavailable)
}

func isNotFound(err error) bool {
	return errors.Is(err, fault.ErrNotFound)
}
