package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/logging"
	"github.com/khata-app/khata_backend/internal/session"
)

func newCache(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRequireSession(t *testing.T) {
	cache := newCache(t)
	sessions := session.NewStore(cache, time.Hour)

	token, err := sessions.Issue(context.Background(), session.Principal{
		UserID: "u1", Kind: identity.KindBusiness, Name: "Asha", Phone: "111",
	})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", RequireSession(sessions), func(c *fiber.Ctx) error {
		principal, ok := PrincipalFrom(c)
		require.True(t, ok)
		return c.SendString(principal.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "u1", string(body))

	// no cookie
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// bogus token
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "nope"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireKind(t *testing.T) {
	cache := newCache(t)
	sessions := session.NewStore(cache, time.Hour)

	token, err := sessions.Issue(context.Background(), session.Principal{UserID: "c1", Kind: identity.KindCustomer})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/business-only", RequireSession(sessions), RequireBusiness(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	app.Get("/customer-only", RequireSession(sessions), RequireCustomer(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/business-only", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/customer-only", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	cache := newCache(t)

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 3), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send())
	}
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	cache := newCache(t)

	calls := 0
	app := fiber.New()
	app.Post("/tx", Idempotency(cache, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		calls++
		return c.Status(http.StatusCreated).SendString("created once")
	})

	send := func(key string) (int, string) {
		req := httptest.NewRequest(http.MethodPost, "/tx", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	status, body := send("abc")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "created once", body)

	status, body = send("abc")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "created once", body)
	assert.Equal(t, 1, calls, "handler must run once per key")

	// no header means no dedup
	send("")
	send("")
	assert.Equal(t, 3, calls)
}
