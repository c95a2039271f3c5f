package business

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	pinDigits = 6
	pinSpace  = 900000 // 100000..999999
	pinFloor  = 100000
)

// NewPIN issues a random 6-digit access PIN. Uniqueness is enforced by the
// store; callers retry on conflict.
func NewPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpace))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", pinDigits, pinFloor+n.Int64()), nil
}
