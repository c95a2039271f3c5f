package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewStore(cache, 30*24*time.Hour), mr
}

func TestIssueResolveClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := Principal{UserID: "u1", Kind: identity.KindBusiness, Name: "Owner", Phone: "9000000001"}
	token, err := store.Issue(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, store.Clear(ctx, token))
	_, err = store.Resolve(ctx, token)
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestResolveUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	_, err = store.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestSessionExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Principal{UserID: "u1", Kind: identity.KindCustomer})
	require.NoError(t, err)

	mr.FastForward(31 * 24 * time.Hour)

	_, err = store.Resolve(ctx, token)
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestPrincipalUser(t *testing.T) {
	p := Principal{UserID: "u1", Kind: identity.KindCustomer, Name: "Priya", Phone: "9000000002"}
	u := p.User()
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, identity.KindCustomer, u.Kind)
	assert.Equal(t, "Priya", u.Name)
	assert.Equal(t, "9000000002", u.Phone)
}
