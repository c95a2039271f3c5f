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
	"github.com/khata-app/khata_backend/internal/qr"
)

type customerHandler struct {
	identities *identity.Service
	businesses *business.Service
	book       *ledger.Service
	links      *linker.Service
	logger     *slog.Logger
}

// RegisterCustomerRoutes wires the customer-side surface. The group is
// expected to already enforce a customer session.
func RegisterCustomerRoutes(r fiber.Router, h *customerHandler, dedup fiber.Handler) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/select_business", h.SelectBusinessForm)
	r.Post("/select_business", h.SelectBusiness)
	r.Get("/business", h.BusinessDetail)
	r.Get("/transaction", h.TransactionForm)
	r.Post("/transaction", dedup, h.PostTransaction)
}

func (h *customerHandler) current(c *fiber.Ctx) (customer.Customer, identity.User, error) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return customer.Customer{}, identity.User{}, fiber.NewError(http.StatusUnauthorized, "login required")
	}
	profile, err := h.identities.CurrentProfile(c.UserContext(), principal.UserID)
	if err != nil {
		return customer.Customer{}, identity.User{}, httpError(err)
	}
	if profile.Customer == nil {
		return customer.Customer{}, identity.User{}, fiber.NewError(http.StatusForbidden, "not a customer account")
	}
	return *profile.Customer, principal.User(), nil
}

// Dashboard lists every linked business with the customer's balance there.
// Store outages degrade to an empty list with a warning.
func (h *customerHandler) Dashboard(c *fiber.Ctx) error {
	cust, _, err := h.current(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	resp := fiber.Map{
		"customer": fiber.Map{"id": cust.ID, "name": cust.Name, "phone": cust.Phone},
	}
	pairs, err := h.book.PairsForCustomer(ctx, cust.ID)
	if err != nil {
		if !errors.Is(err, fault.ErrUnavailable) {
			return httpError(err)
		}
		h.logger.Warn("customer dashboard degraded", "customer_id", cust.ID, "error", err)
		resp["warning"] = "some data is temporarily unavailable"
		pairs = nil
	}

	linked := make([]fiber.Map, 0, len(pairs))
	for _, p := range pairs {
		entry := fiber.Map{
			"business_id": p.BusinessID,
			"balance":     p.Balance.StringFixed(2),
		}
		if b, err := h.businesses.ByID(ctx, p.BusinessID); err == nil {
			entry["name"] = b.Name
			entry["address"] = b.Address
		}
		linked = append(linked, entry)
	}
	resp["businesses"] = linked
	return c.JSON(resp)
}

// SelectBusinessForm describes the PIN entry form.
func (h *customerHandler) SelectBusinessForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"fields": []string{"pin"}})
}

type selectBusinessRequest struct {
	PIN string `json:"pin" form:"pin"`
}

// SelectBusiness links the customer to a business by its access PIN.
func (h *customerHandler) SelectBusiness(c *fiber.Ctx) error {
	cust, _, err := h.current(c)
	if err != nil {
		return err
	}
	var req selectBusinessRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.links.Link(c.UserContext(), cust.ID, req.PIN)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(linkResponse(res))
}

// BusinessDetail returns the pair with the given business plus history.
func (h *customerHandler) BusinessDetail(c *fiber.Ctx) error {
	cust, _, err := h.current(c)
	if err != nil {
		return err
	}
	businessID := c.Query("business_id")
	if businessID == "" {
		return fiber.NewError(http.StatusBadRequest, "business_id is required")
	}
	ctx := c.UserContext()

	b, err := h.businesses.ByID(ctx, businessID)
	if err != nil {
		return httpError(err)
	}
	balance, err := h.book.PairBalance(ctx, businessID, cust.ID)
	if err != nil {
		return httpError(err)
	}
	history, err := h.book.History(ctx, businessID, cust.ID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(fiber.Map{
		"business": fiber.Map{"id": b.ID, "name": b.Name, "address": b.Address, "contact_phone": b.ContactPhone},
		"balance": fiber.Map{
			"current":       balance.Current.StringFixed(2),
			"total_credit":  balance.TotalCredit.StringFixed(2),
			"total_payment": balance.TotalPayment.StringFixed(2),
		},
		"transactions": renderTransactions(history),
	})
}

// TransactionForm describes the transaction form for a linked business.
func (h *customerHandler) TransactionForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"fields": []string{"business_id", "kind", "amount", "note"},
		"kinds":  []ledger.Kind{ledger.KindCredit, ledger.KindPayment},
	})
}

type customerTransactionRequest struct {
	BusinessID string `json:"business_id" form:"business_id"`
	Kind       string `json:"kind" form:"kind"`
	Amount     string `json:"amount" form:"amount"`
	Note       string `json:"note" form:"note"`
}

// PostTransaction appends a transaction on one of the customer's pairs,
// typically a payment.
func (h *customerHandler) PostTransaction(c *fiber.Ctx) error {
	cust, actor, err := h.current(c)
	if err != nil {
		return err
	}
	var req customerTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.BusinessID == "" {
		return fiber.NewError(http.StatusBadRequest, "business_id is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a number")
	}

	tx, err := h.book.Post(c.UserContext(), ledger.PostInput{
		BusinessID: req.BusinessID,
		CustomerID: cust.ID,
		Kind:       ledger.Kind(req.Kind),
		Amount:     amount,
		Note:       req.Note,
		Actor:      actor,
	})
	if err != nil {
		return httpError(err)
	}

	balance, err := h.book.PairBalance(c.UserContext(), req.BusinessID, cust.ID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": renderTransaction(tx),
		"balance":     balance.Current.StringFixed(2),
	})
}

// ScanQR links directly from a scanned payload when one is supplied, and
// otherwise describes the expected payload shape for scanner clients.
func (h *customerHandler) ScanQR(c *fiber.Ctx) error {
	cust, _, err := h.current(c)
	if err != nil {
		return err
	}
	payload := c.Query("payload")
	if payload == "" {
		return c.JSON(fiber.Map{"payload_prefix": "business:", "param": "payload"})
	}

	pin, err := qr.ParsePayload(payload)
	if err != nil {
		return httpError(err)
	}
	res, err := h.links.Link(c.UserContext(), cust.ID, pin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(linkResponse(res))
}

func linkResponse(res linker.LinkResult) fiber.Map {
	return fiber.Map{
		"business": fiber.Map{
			"id":      res.Business.ID,
			"name":    res.Business.Name,
			"address": res.Business.Address,
		},
		"balance": res.Pair.Balance.StringFixed(2),
	}
}
