package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
)

type memoryRepository struct {
	mu         sync.RWMutex
	users      map[string]User // keyed by id
	businesses business.Repository
	customers  customer.Repository
}

// NewMemoryRepository builds an in-memory user store for dev mode and tests.
// Profile writes go through the supplied repositories so registration stays a
// single logical unit.
func NewMemoryRepository(businesses business.Repository, customers customer.Repository) Repository {
	return &memoryRepository{
		users:      make(map[string]User),
		businesses: businesses,
		customers:  customers,
	}
}

func (r *memoryRepository) CreateBusinessUser(ctx context.Context, user User, profile business.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked(user); err != nil {
		return err
	}
	if err := r.businesses.Create(ctx, profile); err != nil {
		delete(r.users, user.ID)
		return err
	}
	return nil
}

func (r *memoryRepository) CreateCustomerUser(ctx context.Context, user User, profile customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked(user); err != nil {
		return err
	}
	if err := r.customers.Create(ctx, profile); err != nil {
		delete(r.users, user.ID)
		return err
	}
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return User{}, fault.ErrNotFound
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, fault.ErrNotFound
	}
	return u, nil
}

func (r *memoryRepository) Restore(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; exists {
		return nil
	}
	r.users[user.ID] = user
	return nil
}

// Forget removes a user row, simulating the lost-actor condition the ledger
// recovers from. Test helper.
func Forget(repo Repository, id string) {
	if mem, ok := repo.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		delete(mem.users, id)
	}
}

func (r *memoryRepository) insertLocked(user User) error {
	for _, existing := range r.users {
		if existing.Phone == user.Phone {
			return fmt.Errorf("%w: users_phone_key", fault.ErrConflict)
		}
	}
	r.users[user.ID] = user
	return nil
}
