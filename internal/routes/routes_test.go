package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/config"
	"github.com/khata-app/khata_backend/internal/logging"
	"github.com/khata-app/khata_backend/internal/session"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	err = Setup(app, Deps{
		Cfg: config.Config{
			AppName:        "khata-test",
			AppEnv:         "dev",
			UploadDir:      t.TempDir(),
			MaxUploadBytes: 1 << 20,
			SessionTTL:     time.Hour,
		},
		Cache:  cache,
		Logger: logging.Discard(),
	})
	require.NoError(t, err)
	return app
}

// client drives the app as a single logged-in browser would.
type client struct {
	t      *testing.T
	app    *fiber.App
	cookie string
}

func (cl *client) do(method, path string, body any) (int, map[string]any) {
	cl.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(cl.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if cl.cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cl.cookie})
	}

	resp, err := cl.app.Test(req, -1)
	require.NoError(cl.t, err)
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			cl.cookie = c.Value
		}
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(cl.t, err)
	var decoded map[string]any
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(cl.t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func register(t *testing.T, app *fiber.App, kind, name, phone string) *client {
	t.Helper()
	cl := &client{t: t, app: app}
	status, _ := cl.do(http.MethodPost, "/register", fiber.Map{
		"name": name, "phone": phone, "password": "secret", "kind": kind,
	})
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, cl.cookie)
	return cl
}

func nested(t *testing.T, m map[string]any, key string) map[string]any {
	t.Helper()
	sub, ok := m[key].(map[string]any)
	require.True(t, ok, "missing object %q in %v", key, m)
	return sub
}

func TestRegisterLoginAndQR(t *testing.T) {
	app := newTestApp(t)

	biz := register(t, app, "business", "Sharma Kirana", "9000000001")

	status, body := biz.do(http.MethodGet, "/business/dashboard", nil)
	require.Equal(t, http.StatusOK, status)
	bizInfo := nested(t, body, "business")
	pin, _ := bizInfo["access_pin"].(string)
	require.Regexp(t, `^\d{6}$`, pin)
	assert.Equal(t, "business:"+pin, bizInfo["qr_payload"])

	// fresh login with the same credentials
	fresh := &client{t: t, app: app}
	status, _ = fresh.do(http.MethodPost, "/login", fiber.Map{
		"phone": "9000000001", "password": "secret", "kind": "business",
	})
	require.Equal(t, http.StatusOK, status)

	// QR endpoint returns a PNG
	req := httptest.NewRequest(http.MethodGet, "/business/qr_image/"+bizInfo["id"].(string), nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: biz.cookie})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	png, _ := io.ReadAll(resp.Body)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}

func TestLinkAndLedgerRoundTrip(t *testing.T) {
	app := newTestApp(t)

	biz := register(t, app, "business", "Sharma Kirana", "9000000001")
	cust := register(t, app, "customer", "Asha", "9000000002")

	_, body := biz.do(http.MethodGet, "/business/dashboard", nil)
	pin := nested(t, body, "business")["access_pin"].(string)

	// link by PIN, idempotent
	status, linked := cust.do(http.MethodPost, "/customer/select_business", fiber.Map{"pin": pin})
	require.Equal(t, http.StatusOK, status)
	businessID := nested(t, linked, "business")["id"].(string)
	assert.Equal(t, "0.00", linked["balance"])

	status, again := cust.do(http.MethodPost, "/customer/select_business", fiber.Map{"pin": pin})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, businessID, nested(t, again, "business")["id"])

	// customer dashboard lists the business at zero
	status, dash := cust.do(http.MethodGet, "/customer/dashboard", nil)
	require.Equal(t, http.StatusOK, status)
	businesses := dash["businesses"].([]any)
	require.Len(t, businesses, 1)
	assert.Equal(t, "0.00", businesses[0].(map[string]any)["balance"])

	customerID := nested(t, dash, "customer")["id"].(string)

	// business credits 500
	status, posted := biz.do(http.MethodPost, "/business/transactions/"+customerID, fiber.Map{
		"kind": "credit", "amount": "500", "note": "groceries",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "500.00", posted["balance"])

	// customer pays 200
	status, paid := cust.do(http.MethodPost, "/customer/transaction", fiber.Map{
		"business_id": businessID, "kind": "payment", "amount": "200",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "300.00", paid["balance"])

	// history is newest-first on both sides
	status, detail := cust.do(http.MethodGet, "/customer/business?business_id="+businessID, nil)
	require.Equal(t, http.StatusOK, status)
	txs := detail["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, "payment", txs[0].(map[string]any)["kind"])
	assert.Equal(t, "credit", txs[1].(map[string]any)["kind"])

	status, bizDetail := biz.do(http.MethodGet, "/business/customer/"+customerID, nil)
	require.Equal(t, http.StatusOK, status)
	balance := nested(t, bizDetail, "balance")
	assert.Equal(t, "300.00", balance["current"])
	assert.Equal(t, "500.00", balance["total_credit"])
	assert.Equal(t, "200.00", balance["total_payment"])
}

func TestAddCustomerByPhone(t *testing.T) {
	app := newTestApp(t)
	biz := register(t, app, "business", "Sharma Kirana", "9000000001")

	status, added := biz.do(http.MethodPost, "/business/add_customer", fiber.Map{
		"phone": "9000000003", "name": "Ravi", "initial_credit": "1000",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "1000.00", added["balance"])
	require.Contains(t, added, "initial_credit_transaction")

	customerID := nested(t, added, "customer")["id"].(string)
	status, detail := biz.do(http.MethodGet, "/business/customer/"+customerID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, detail["transactions"].([]any), 1)

	// repeating the add without a credit does not duplicate the pair or charge
	status, repeat := biz.do(http.MethodPost, "/business/add_customer", fiber.Map{
		"phone": "9000000003", "name": "Ravi",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, customerID, nested(t, repeat, "customer")["id"])
	assert.Equal(t, "1000.00", repeat["balance"])
}

func TestSecondCustomerSamePIN(t *testing.T) {
	app := newTestApp(t)
	biz := register(t, app, "business", "Sharma Kirana", "9000000001")
	c1 := register(t, app, "customer", "Asha", "9000000002")
	c2 := register(t, app, "customer", "Ravi", "9000000003")

	_, body := biz.do(http.MethodGet, "/business/dashboard", nil)
	pin := nested(t, body, "business")["access_pin"].(string)

	status, _ := c1.do(http.MethodPost, "/customer/select_business", fiber.Map{"pin": pin})
	require.Equal(t, http.StatusOK, status)
	status, _ = c2.do(http.MethodPost, "/customer/select_business", fiber.Map{"pin": pin})
	require.Equal(t, http.StatusOK, status)

	_, dash1 := c1.do(http.MethodGet, "/customer/dashboard", nil)
	id1 := nested(t, dash1, "customer")["id"].(string)

	// credit only the first customer; the second stays at zero
	status, _ = biz.do(http.MethodPost, "/business/transactions/"+id1, fiber.Map{
		"kind": "credit", "amount": "250",
	})
	require.Equal(t, http.StatusCreated, status)

	_, summary := biz.do(http.MethodGet, "/business/customers", nil)
	rows := summary["customers"].([]any)
	require.Len(t, rows, 2)
	balances := map[string]string{}
	for _, row := range rows {
		m := row.(map[string]any)
		balances[m["customer_id"].(string)] = m["balance"].(string)
	}
	assert.Equal(t, "250.00", balances[id1])
}

func TestScanQRLinks(t *testing.T) {
	app := newTestApp(t)
	biz := register(t, app, "business", "Sharma Kirana", "9000000001")
	cust := register(t, app, "customer", "Asha", "9000000002")

	_, body := biz.do(http.MethodGet, "/business/dashboard", nil)
	payload := nested(t, body, "business")["qr_payload"].(string)

	status, linked := cust.do(http.MethodGet, "/scan_qr?payload="+payload, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Sharma Kirana", nested(t, linked, "business")["name"])

	// foreign payloads are rejected
	status, _ = cust.do(http.MethodGet, "/scan_qr?payload=http%3A%2F%2Fexample.com", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestReceiptUpload(t *testing.T) {
	app := newTestApp(t)
	biz := register(t, app, "business", "Sharma Kirana", "9000000001")

	status, added := biz.do(http.MethodPost, "/business/add_customer", fiber.Map{
		"phone": "9000000002", "name": "Asha",
	})
	require.Equal(t, http.StatusCreated, status)
	customerID := nested(t, added, "customer")["id"].(string)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("kind", "credit"))
	require.NoError(t, w.WriteField("amount", "75"))
	fw, err := w.CreateFormFile("receipt", "bill.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/business/transactions/"+customerID, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: biz.cookie})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	tx := nested(t, decoded, "transaction")
	url, _ := tx["receipt_url"].(string)
	assert.Contains(t, url, "/uploads/")
}

func TestAccessControl(t *testing.T) {
	app := newTestApp(t)
	cust := register(t, app, "customer", "Asha", "9000000002")

	// customer cannot reach the business surface
	status, _ := cust.do(http.MethodGet, "/business/dashboard", nil)
	assert.Equal(t, http.StatusForbidden, status)

	// anonymous requests are rejected
	anon := &client{t: t, app: app}
	status, _ = anon.do(http.MethodGet, "/customer/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// unknown PIN is not found
	status, _ = cust.do(http.MethodPost, "/customer/select_business", fiber.Map{"pin": "000000"})
	assert.Equal(t, http.StatusNotFound, status)

	// zero amount rejected
	_, dash := cust.do(http.MethodGet, "/customer/dashboard", nil)
	_ = dash
	status, _ = cust.do(http.MethodPost, "/customer/transaction", fiber.Map{
		"business_id": "nope", "kind": "credit", "amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// logout kills the session
	status, _ = cust.do(http.MethodGet, "/logout", nil)
	require.Equal(t, http.StatusOK, status)
	cust.cookie = ""
	status, _ = cust.do(http.MethodGet, "/customer/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
