package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/session"
)

const principalKey = "principal"

// RequireSession resolves the session cookie into a principal and stores it in
// the request locals. Requests without a valid session are rejected.
func RequireSession(sessions *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(session.CookieName)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "login required")
		}
		principal, err := sessions.Resolve(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "session expired, log in again")
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// RequireBusiness rejects requests whose principal is not a business account.
// It must run after RequireSession.
func RequireBusiness() fiber.Handler {
	return requireKind(identity.KindBusiness)
}

// RequireCustomer rejects requests whose principal is not a customer account.
func RequireCustomer() fiber.Handler {
	return requireKind(identity.KindCustomer)
}

func requireKind(kind identity.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "login required")
		}
		if principal.Kind != kind {
			return fiber.NewError(http.StatusForbidden, "not allowed for this account type")
		}
		return c.Next()
	}
}

// PrincipalFrom returns the authenticated principal stored by RequireSession.
func PrincipalFrom(c *fiber.Ctx) (session.Principal, bool) {
	principal, ok := c.Locals(principalKey).(session.Principal)
	return principal, ok
}
