package identity

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Kind distinguishes the two principals.
type Kind string

const (
	KindBusiness Kind = "business"
	KindCustomer Kind = "customer"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindBusiness || k == KindCustomer
}

// User is the authentication principal. Password holds the stored credential:
// a bcrypt hash on every write path, possibly plaintext on rows migrated from
// the old system.
type User struct {
	ID        string
	Name      string
	Phone     string
	Password  string
	Kind      Kind
	CreatedAt time.Time
}

// PlaceholderCredential returns an unusable stored credential for stub users
// created on someone else's behalf. The owner sets a real password by
// registering with the same phone later.
func PlaceholderCredential() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	if err != nil {
		// bcrypt only fails on oversized input, which a uuid never is.
		return "$2a$04$" + uuid.NewString()
	}
	return string(hash)
}

// Credentials is a login/registration request.
type Credentials struct {
	Phone    string
	Password string
	Name     string
	Kind     Kind
}
