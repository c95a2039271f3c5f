package customer

import (
	"context"
	"fmt"
	"sync"

	"github.com/khata-app/khata_backend/internal/fault"
)

type memoryRepository struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

// NewMemoryRepository builds an in-memory customer store for dev mode and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{customers: make(map[string]Customer)}
}

func (r *memoryRepository) Create(_ context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.customers {
		if existing.UserID == c.UserID {
			return fmt.Errorf("%w: customer exists for user", fault.ErrConflict)
		}
	}
	r.customers[c.ID] = c
	return nil
}

func (r *memoryRepository) ByID(_ context.Context, id string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, fault.ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) ByUserID(_ context.Context, userID string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if c.UserID == userID {
			return c, nil
		}
	}
	return Customer{}, fault.ErrNotFound
}
