package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/session"
)

type authHandler struct {
	identities *identity.Service
	sessions   *session.Store
}

// RegisterAuthRoutes wires registration, login and logout.
func RegisterAuthRoutes(r fiber.Router, h *authHandler, rateLimiter fiber.Handler) {
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Get("/login", h.LoginForm)
	r.Post("/login", rateLimiter, h.Login)
	r.Get("/logout", h.Logout)
	r.Post("/logout", h.Logout)
}

type credentialsRequest struct {
	Name     string `json:"name" form:"name"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
	Kind     string `json:"kind" form:"kind"`
}

// RegisterForm describes the registration form for clients that render it.
func (h *authHandler) RegisterForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"fields": []string{"name", "phone", "password", "kind"},
		"kinds":  []identity.Kind{identity.KindBusiness, identity.KindCustomer},
	})
}

// Register creates the user plus its profile and opens a session.
func (h *authHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.identities.Register(c.UserContext(), identity.Credentials{
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
		Kind:     identity.Kind(req.Kind),
	})
	if err != nil {
		return httpError(err)
	}

	if err := h.openSession(c, user); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id": user.ID,
		"name":    user.Name,
		"phone":   user.Phone,
		"kind":    user.Kind,
	})
}

// LoginForm describes the login form.
func (h *authHandler) LoginForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"fields": []string{"phone", "password", "kind"},
		"kinds":  []identity.Kind{identity.KindBusiness, identity.KindCustomer},
	})
}

// Login verifies credentials and opens a session.
func (h *authHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.identities.Login(c.UserContext(), identity.Credentials{
		Phone:    req.Phone,
		Password: req.Password,
		Kind:     identity.Kind(req.Kind),
	})
	if err != nil {
		return httpError(err)
	}

	if err := h.openSession(c, user); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"user_id": user.ID,
		"name":    user.Name,
		"kind":    user.Kind,
	})
}

// Logout revokes the session and expires the cookie. Logging out without a
// session is a no-op.
func (h *authHandler) Logout(c *fiber.Ctx) error {
	token := c.Cookies(session.CookieName)
	if token != "" {
		if err := h.sessions.Clear(c.UserContext(), token); err != nil {
			return httpError(err)
		}
	}
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	return c.JSON(fiber.Map{"status": "logged out"})
}

func (h *authHandler) openSession(c *fiber.Ctx, user identity.User) error {
	token, err := h.sessions.Issue(c.UserContext(), session.Principal{
		UserID: user.ID,
		Kind:   user.Kind,
		Name:   user.Name,
		Phone:  user.Phone,
	})
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Expires:  time.Now().Add(h.sessions.TTL()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	return nil
}
