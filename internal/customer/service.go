package customer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/khata-app/khata_backend/internal/fault"
)

// Service manages customer profiles.
type Service struct {
	repo Repository
}

// NewService creates a customer service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewProfile assembles a customer profile for the given owner.
func NewProfile(userID, name, phone string) Customer {
	return Customer{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
}

// EnsureFor returns the customer owned by userID, creating it on first access.
func (s *Service) EnsureFor(ctx context.Context, userID, name, phone string) (Customer, error) {
	c, err := s.repo.ByUserID(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return Customer{}, err
	}

	c = NewProfile(userID, name, phone)
	if err := s.repo.Create(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// ByID fetches a customer profile.
func (s *Service) ByID(ctx context.Context, id string) (Customer, error) {
	return s.repo.ByID(ctx, id)
}

// ByUserID fetches the customer owned by a user.
func (s *Service) ByUserID(ctx context.Context, userID string) (Customer, error) {
	return s.repo.ByUserID(ctx, userID)
}
