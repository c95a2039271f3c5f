package business

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/fault"
)

var pinPattern = regexp.MustCompile(`^\d{6}$`)

func TestNewPINFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		pin, err := NewPIN()
		require.NoError(t, err)
		assert.Regexp(t, pinPattern, pin)
	}
}

func TestEnsureForCreatesOnce(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	b, err := svc.EnsureFor(ctx, "user-1", "Sharma General Store")
	require.NoError(t, err)
	assert.Regexp(t, pinPattern, b.AccessPIN)
	assert.Equal(t, "user-1", b.UserID)

	again, err := svc.EnsureFor(ctx, "user-1", "Sharma General Store")
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.ID)
	assert.Equal(t, b.AccessPIN, again.AccessPIN, "PIN is stable across accesses")
}

func TestByPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	b, err := svc.EnsureFor(ctx, "user-1", "Tea Stall")
	require.NoError(t, err)

	found, err := svc.ByPIN(ctx, b.AccessPIN)
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)

	_, err = svc.ByPIN(ctx, "000000")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestRegeneratePIN(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	b, err := svc.EnsureFor(ctx, "user-1", "Tea Stall")
	require.NoError(t, err)

	pin, err := svc.RegeneratePIN(ctx, b.ID)
	require.NoError(t, err)
	assert.Regexp(t, pinPattern, pin)

	_, err = svc.ByPIN(ctx, b.AccessPIN)
	assert.ErrorIs(t, err, fault.ErrNotFound, "old PIN no longer resolves")

	found, err := svc.ByPIN(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)
}

func TestRegeneratePINUnknownBusiness(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	_, err := svc.RegeneratePIN(context.Background(), "missing")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}
