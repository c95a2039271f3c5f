package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/logging"
)

func newTestService() (*Service, Repository) {
	businesses := business.NewMemoryRepository()
	customers := customer.NewMemoryRepository()
	repo := NewMemoryRepository(businesses, customers)
	svc := NewService(repo, business.NewService(businesses), customer.NewService(customers), logging.Discard())
	return svc, repo
}

func TestRegisterBusinessAndLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "9000000001", Password: "p1secret", Name: "Sharma Store", Kind: KindBusiness})
	require.NoError(t, err)
	assert.Equal(t, KindBusiness, user.Kind)
	assert.NotEqual(t, "p1secret", user.Password, "password must be hashed")

	profile, err := svc.CurrentProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Business)
	assert.Regexp(t, `^\d{6}$`, profile.Business.AccessPIN, "business registration issues a PIN")

	logged, err := svc.Login(ctx, Credentials{Phone: "9000000001", Password: "p1secret", Kind: KindBusiness})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
}

func TestRegisterCustomerCreatesProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "9000000002", Password: "c1secret", Name: "Priya", Kind: KindCustomer})
	require.NoError(t, err)

	profile, err := svc.CurrentProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Customer)
	assert.Equal(t, "9000000002", profile.Customer.Phone)
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "9000000001", Password: "p1secret", Name: "A", Kind: KindBusiness})
	require.NoError(t, err)

	_, err = svc.Register(ctx, Credentials{Phone: "9000000001", Password: "other", Name: "B", Kind: KindCustomer})
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "", Password: "secret", Kind: KindBusiness})
	assert.ErrorIs(t, err, fault.ErrInvalid)

	_, err = svc.Register(ctx, Credentials{Phone: "9000000001", Password: "abc", Kind: KindBusiness})
	assert.ErrorIs(t, err, fault.ErrInvalid)

	_, err = svc.Register(ctx, Credentials{Phone: "9000000001", Password: "secret", Kind: Kind("admin")})
	assert.ErrorIs(t, err, fault.ErrInvalid)
}

func TestLoginFailures(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "9000000001", Password: "p1secret", Name: "A", Kind: KindBusiness})
	require.NoError(t, err)

	_, err = svc.Login(ctx, Credentials{Phone: "9000000001", Password: "wrong", Kind: KindBusiness})
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	// right credentials, wrong dashboard
	_, err = svc.Login(ctx, Credentials{Phone: "9000000001", Password: "p1secret", Kind: KindCustomer})
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	_, err = svc.Login(ctx, Credentials{Phone: "9999999999", Password: "p1secret", Kind: KindBusiness})
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestLoginLegacyPlaintextRow(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	legacy := User{ID: "11111111-1111-1111-1111-111111111111", Name: "Old", Phone: "9000000009", Password: "plaintext", Kind: KindCustomer}
	require.NoError(t, repo.Restore(ctx, legacy))

	logged, err := svc.Login(ctx, Credentials{Phone: "9000000009", Password: "plaintext", Kind: KindCustomer})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, logged.ID)

	_, err = svc.Login(ctx, Credentials{Phone: "9000000009", Password: "plaintexT", Kind: KindCustomer})
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestCheckPasswordBcrypt(t *testing.T) {
	svc, _ := newTestService()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	user := User{ID: "u1", Password: string(hash)}
	assert.True(t, svc.checkPassword(user, "s3cret"))
	assert.False(t, svc.checkPassword(user, "s3creT"))
}
