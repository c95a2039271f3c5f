// Package session issues and resolves opaque session tokens backed by Redis.
// The cookie holds only the token; the principal lives server-side and
// expires with the key's TTL.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
)

const (
	keyPrefix = "session:v1:"

	// CookieName is the session cookie the boundary sets and reads.
	CookieName = "khata_session"
)

// Principal is the session-bound identity. It carries enough user data for
// the ledger's actor-recovery path.
type Principal struct {
	UserID string        `json:"user_id"`
	Kind   identity.Kind `json:"kind"`
	Name   string        `json:"name"`
	Phone  string        `json:"phone"`
}

// User converts the principal back to the user row it was minted from.
func (p Principal) User() identity.User {
	return identity.User{ID: p.UserID, Name: p.Name, Phone: p.Phone, Kind: p.Kind}
}

// Store persists sessions in Redis.
type Store struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewStore builds a session store with the given token lifetime.
func NewStore(cache *redis.Client, ttl time.Duration) *Store {
	return &Store{cache: cache, ttl: ttl}
}

// TTL returns the session lifetime, used for the cookie expiry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue mints an opaque token bound to the principal.
func (s *Store) Issue(ctx context.Context, p Principal) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: encode session: %v", fault.ErrUnavailable, err)
	}
	token := uuid.NewString()
	if err := s.cache.Set(ctx, keyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: persist session: %v", fault.ErrUnavailable, err)
	}
	return token, nil
}

// Resolve returns the principal bound to a token. Expired or unknown tokens
// surface as unauthorized.
func (s *Store) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing session", fault.ErrUnauthorized)
	}
	payload, err := s.cache.Get(ctx, keyPrefix+token).Result()
	if err == redis.Nil {
		return Principal{}, fmt.Errorf("%w: session expired", fault.ErrUnauthorized)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("%w: session lookup: %v", fault.ErrUnavailable, err)
	}
	var p Principal
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Principal{}, fmt.Errorf("%w: corrupt session", fault.ErrUnauthorized)
	}
	return p, nil
}

// Clear revokes a token. Clearing an unknown token is a no-op.
func (s *Store) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.cache.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("%w: clear session: %v", fault.ErrUnavailable, err)
	}
	return nil
}
