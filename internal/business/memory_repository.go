package business

import (
	"context"
	"fmt"
	"sync"

	"github.com/khata-app/khata_backend/internal/fault"
)

type memoryRepository struct {
	mu         sync.RWMutex
	businesses map[string]Business
}

// NewMemoryRepository builds an in-memory business store for dev mode and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{businesses: make(map[string]Business)}
}

func (r *memoryRepository) Create(_ context.Context, b Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.businesses {
		if existing.AccessPIN == b.AccessPIN {
			return fmt.Errorf("%w: businesses_access_pin_key", fault.ErrConflict)
		}
		if existing.UserID == b.UserID {
			return fmt.Errorf("%w: business exists for user", fault.ErrConflict)
		}
	}
	r.businesses[b.ID] = b
	return nil
}

func (r *memoryRepository) ByID(_ context.Context, id string) (Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[id]
	if !ok {
		return Business{}, fault.ErrNotFound
	}
	return b, nil
}

func (r *memoryRepository) ByUserID(_ context.Context, userID string) (Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.businesses {
		if b.UserID == userID {
			return b, nil
		}
	}
	return Business{}, fault.ErrNotFound
}

func (r *memoryRepository) ByPIN(_ context.Context, pin string) (Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.businesses {
		if b.AccessPIN == pin {
			return b, nil
		}
	}
	return Business{}, fault.ErrNotFound
}

func (r *memoryRepository) UpdatePIN(_ context.Context, id, pin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return fault.ErrNotFound
	}
	for _, existing := range r.businesses {
		if existing.ID != id && existing.AccessPIN == pin {
			return fmt.Errorf("%w: businesses_access_pin_key", fault.ErrConflict)
		}
	}
	b.AccessPIN = pin
	r.businesses[id] = b
	return nil
}
