package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/ledger"
	"github.com/khata-app/khata_backend/internal/linker"
	"github.com/khata-app/khata_backend/internal/middleware"
	"github.com/khata-app/khata_backend/internal/notification"
	"github.com/khata-app/khata_backend/internal/qr"
	"github.com/khata-app/khata_backend/internal/upload"
)

type businessHandler struct {
	identities *identity.Service
	businesses *business.Service
	customers  *customer.Service
	book       *ledger.Service
	links      *linker.Service
	receipts   *upload.Saver
	notifier   notification.Notifier
	logger     *slog.Logger
}

// RegisterBusinessRoutes wires the business-side surface. The group is
// expected to already enforce a business session.
func RegisterBusinessRoutes(r fiber.Router, h *businessHandler, dedup fiber.Handler) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/customers", h.Customers)
	r.Get("/customer/:id", h.CustomerDetail)
	r.Get("/add_customer", h.AddCustomerForm)
	r.Post("/add_customer", dedup, h.AddCustomer)
	r.Get("/transactions/:customer_id", h.Transactions)
	r.Post("/transactions/:customer_id", dedup, h.PostTransaction)
	r.Get("/remind/:customer_id", h.Remind)
	r.Get("/qr_image/:business_id", h.QRImage)
	r.Post("/regenerate_pin", h.RegeneratePIN)
}

func (h *businessHandler) current(c *fiber.Ctx) (business.Business, identity.User, error) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return business.Business{}, identity.User{}, fiber.NewError(http.StatusUnauthorized, "login required")
	}
	profile, err := h.identities.CurrentProfile(c.UserContext(), principal.UserID)
	if err != nil {
		return business.Business{}, identity.User{}, httpError(err)
	}
	if profile.Business == nil {
		return business.Business{}, identity.User{}, fiber.NewError(http.StatusForbidden, "not a business account")
	}
	return *profile.Business, principal.User(), nil
}

// Dashboard returns the book summary, recent activity and the linking PIN.
// Store outages degrade reads to empty sections with a warning instead of
// failing the whole page.
func (h *businessHandler) Dashboard(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	var warning string
	summary, err := h.book.BusinessSummary(ctx, b.ID)
	if err != nil {
		if !errors.Is(err, fault.ErrUnavailable) {
			return httpError(err)
		}
		warning = "some data is temporarily unavailable"
		h.logger.Warn("dashboard summary degraded", "business_id", b.ID, "error", err)
	}

	recent, err := h.book.RecentForBusiness(ctx, b.ID, 10)
	if err != nil {
		if !errors.Is(err, fault.ErrUnavailable) {
			return httpError(err)
		}
		warning = "some data is temporarily unavailable"
		recent = nil
	}

	pairs, err := h.book.PairsForBusiness(ctx, b.ID)
	if err != nil {
		if !errors.Is(err, fault.ErrUnavailable) {
			return httpError(err)
		}
		warning = "some data is temporarily unavailable"
		pairs = nil
	}

	resp := fiber.Map{
		"business": fiber.Map{
			"id":         b.ID,
			"name":       b.Name,
			"access_pin": b.AccessPIN,
			"qr_payload": qr.Payload(b.AccessPIN),
		},
		"summary": fiber.Map{
			"customers":    summary.Customers,
			"total_credit": summary.TotalCredit.StringFixed(2),
			"outstanding":  summary.Outstanding.StringFixed(2),
		},
		"recent_transactions": renderTransactions(recent),
		"customers":           h.renderPairs(c, pairs),
	}
	if warning != "" {
		resp["warning"] = warning
	}
	return c.JSON(resp)
}

// Customers lists every credit pair of this business.
func (h *businessHandler) Customers(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	pairs, err := h.book.PairsForBusiness(c.UserContext(), b.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"customers": h.renderPairs(c, pairs)})
}

// CustomerDetail returns one pair with its full history.
func (h *businessHandler) CustomerDetail(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	customerID := c.Params("id")
	ctx := c.UserContext()

	balance, err := h.book.PairBalance(ctx, b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	history, err := h.book.History(ctx, b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	cust, err := h.customers.ByID(ctx, customerID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(fiber.Map{
		"customer": fiber.Map{"id": cust.ID, "name": cust.Name, "phone": cust.Phone},
		"balance": fiber.Map{
			"current":       balance.Current.StringFixed(2),
			"total_credit":  balance.TotalCredit.StringFixed(2),
			"total_payment": balance.TotalPayment.StringFixed(2),
		},
		"transactions": renderTransactions(history),
	})
}

// AddCustomerForm describes the add-customer form.
func (h *businessHandler) AddCustomerForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"fields": []string{"phone", "name", "initial_credit"}})
}

type addCustomerRequest struct {
	Phone         string `json:"phone" form:"phone"`
	Name          string `json:"name" form:"name"`
	InitialCredit string `json:"initial_credit" form:"initial_credit"`
}

// AddCustomer links a customer by phone, creating a stub account when the
// phone is unknown.
func (h *businessHandler) AddCustomer(c *fiber.Ctx) error {
	b, actor, err := h.current(c)
	if err != nil {
		return err
	}
	var req addCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	initial := decimal.Zero
	if req.InitialCredit != "" {
		initial, err = decimal.NewFromString(req.InitialCredit)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "initial_credit must be a number")
		}
	}

	res, err := h.links.AddCustomer(c.UserContext(), linker.AddCustomerInput{
		BusinessID:    b.ID,
		Phone:         req.Phone,
		Name:          req.Name,
		InitialCredit: initial,
		Actor:         actor,
	})
	if err != nil {
		return httpError(err)
	}

	resp := fiber.Map{
		"customer": fiber.Map{"id": res.Customer.ID, "name": res.Customer.Name, "phone": res.Customer.Phone},
		"balance":  res.Pair.Balance.StringFixed(2),
	}
	if res.InitialCredit != nil {
		resp["initial_credit_transaction"] = renderTransaction(*res.InitialCredit)
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// Transactions returns the history for one pair.
func (h *businessHandler) Transactions(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	customerID := c.Params("customer_id")
	history, err := h.book.History(c.UserContext(), b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	balance, err := h.book.PairBalance(c.UserContext(), b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"balance":      balance.Current.StringFixed(2),
		"transactions": renderTransactions(history),
	})
}

type postTransactionRequest struct {
	Kind   string `json:"kind" form:"kind"`
	Amount string `json:"amount" form:"amount"`
	Note   string `json:"note" form:"note"`
}

// PostTransaction appends a credit or payment, with an optional receipt image
// in the multipart field "receipt".
func (h *businessHandler) PostTransaction(c *fiber.Ctx) error {
	b, actor, err := h.current(c)
	if err != nil {
		return err
	}
	customerID := c.Params("customer_id")

	var req postTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a number")
	}

	receiptURL := ""
	if file, ferr := c.FormFile("receipt"); ferr == nil && file != nil {
		receiptURL, err = h.receipts.Save(file)
		if err != nil {
			return httpError(err)
		}
	}

	tx, err := h.book.Post(c.UserContext(), ledger.PostInput{
		BusinessID: b.ID,
		CustomerID: customerID,
		Kind:       ledger.Kind(req.Kind),
		Amount:     amount,
		Note:       req.Note,
		ReceiptURL: receiptURL,
		Actor:      actor,
	})
	if err != nil {
		return httpError(err)
	}

	balance, err := h.book.PairBalance(c.UserContext(), b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": renderTransaction(tx),
		"balance":     balance.Current.StringFixed(2),
	})
}

// Remind records a reminder and redirects to a WhatsApp chat pre-filled with
// the outstanding balance.
func (h *businessHandler) Remind(c *fiber.Ctx) error {
	b, actor, err := h.current(c)
	if err != nil {
		return err
	}
	customerID := c.Params("customer_id")
	ctx := c.UserContext()

	balance, err := h.book.PairBalance(ctx, b.ID, customerID)
	if err != nil {
		return httpError(err)
	}
	cust, err := h.customers.ByID(ctx, customerID)
	if err != nil {
		return httpError(err)
	}

	body := notification.ReminderBody(b.Name, balance.Current)
	if _, err := h.book.Remind(ctx, ledger.RemindInput{
		BusinessID: b.ID,
		CustomerID: customerID,
		Channel:    "whatsapp",
		Message:    body,
		ActorID:    actor.ID,
	}); err != nil {
		return httpError(err)
	}

	phone := cust.WhatsApp
	if phone == "" {
		phone = cust.Phone
	}
	if err := h.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindReminder,
		Destination: phone,
		Body:        body,
	}); err != nil {
		h.logger.Warn("reminder notification failed", "customer_id", customerID, "error", err)
	}

	return c.Redirect(notification.WhatsAppLink(phone, body), http.StatusFound)
}

// QRImage renders the linking payload as a PNG. Only the owner may fetch it.
func (h *businessHandler) QRImage(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	if c.Params("business_id") != b.ID {
		return fiber.NewError(http.StatusForbidden, "not your business")
	}
	png, err := qr.PNG(b.AccessPIN, qr.DefaultSize)
	if err != nil {
		return httpError(err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// RegeneratePIN rotates the access PIN, invalidating previously shared codes.
func (h *businessHandler) RegeneratePIN(c *fiber.Ctx) error {
	b, _, err := h.current(c)
	if err != nil {
		return err
	}
	pin, err := h.businesses.RegeneratePIN(c.UserContext(), b.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"access_pin": pin,
		"qr_payload": qr.Payload(pin),
	})
}

func (h *businessHandler) renderPairs(c *fiber.Ctx, pairs []ledger.CreditPair) []fiber.Map {
	out := make([]fiber.Map, 0, len(pairs))
	for _, p := range pairs {
		entry := fiber.Map{
			"customer_id": p.CustomerID,
			"balance":     p.Balance.StringFixed(2),
		}
		if p.LastReminder != nil {
			entry["last_reminder"] = p.LastReminder
		}
		if cust, err := h.customers.ByID(c.UserContext(), p.CustomerID); err == nil {
			entry["name"] = cust.Name
			entry["phone"] = cust.Phone
		}
		out = append(out, entry)
	}
	return out
}

func renderTransactions(txs []ledger.Transaction) []fiber.Map {
	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, renderTransaction(tx))
	}
	return out
}

func renderTransaction(tx ledger.Transaction) fiber.Map {
	entry := fiber.Map{
		"id":          tx.ID,
		"business_id": tx.BusinessID,
		"customer_id": tx.CustomerID,
		"kind":        tx.Kind,
		"amount":      tx.Amount.StringFixed(2),
		"created_at":  tx.CreatedAt,
	}
	if tx.Note != "" {
		entry["note"] = tx.Note
	}
	if tx.ReceiptURL != "" {
		entry["receipt_url"] = tx.ReceiptURL
	}
	return entry
}
