package fault

import (
	"errors"
	"net/http"
	"strings"
)

// Sentinel errors for the failure classes components are allowed to surface.
// Services wrap these with fmt.Errorf("%w: ...") to add detail; handlers map
// them to HTTP statuses via HTTPStatus.
var (
	// ErrInvalid indicates input that violates a documented constraint.
	ErrInvalid = errors.New("invalid input")

	// ErrUnauthorized indicates a missing/expired session or bad credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the wrong principal kind for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates no such business, PIN, customer or credit pair.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. a phone already registered.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable indicates a store or pool failure; nothing was committed.
	ErrUnavailable = errors.New("service unavailable")
)

// IsConstraint reports whether err is a conflict or invalid fault raised by
// the named database constraint. Used to tell a PIN collision apart from a
// duplicate phone during registration.
func IsConstraint(err error, name string) bool {
	if err == nil {
		return false
	}
	return (errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalid)) && strings.Contains(err.Error(), name)
}

// HTTPStatus maps a fault sentinel to its HTTP status code. Unknown errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
