package api

import (
	"bytes"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/types"
)

type scheduleRequest struct {
	Date string `json:"date"`
	Days int    `json:"days"`
}

type statusRequest struct {
	Status      delivery.Status           `json:"status"`
	Adjustments map[string]types.Quantity `json:"adjustments"`
}

type generateRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type paymentRequest struct {
	CustomerID string       `json:"customer_id"`
	InvoiceID  string       `json:"invoice_id"`
	Amount     types.Money  `json:"amount"`
	Mode       payment.Mode `json:"mode"`
	Date       string       `json:"date"`
	Notes      string       `json:"notes"`
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.engine.Store().Ping(c.UserContext()); err != nil {
		return failure(c, fiber.StatusServiceUnavailable, err.Error(), nil)
	}
	return success(c, fiber.StatusOK, "ok", nil)
}

// POST /deliveries/schedule
func (s *Server) scheduleDeliveries(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body", err.Error())
	}
	date, err := types.ParseDate(req.Date)
	if err != nil {
		return badRequest("date", "must be YYYY-MM-DD")
	}

	if req.Days <= 1 {
		res, err := s.engine.ScheduleForDate(c.UserContext(), date)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, "deliveries scheduled", res)
	}

	results, err := s.engine.ScheduleForRange(c.UserContext(), date, req.Days)
	if err != nil && len(results) == 0 {
		return err
	}
	body := fiber.Map{"results": results}
	if err != nil {
		body["error"] = err.Error()
	}
	return success(c, fiber.StatusOK, "deliveries scheduled", body)
}

// PATCH /deliveries/:id/status
func (s *Server) updateDeliveryStatus(c *fiber.Ctx) error {
	deliveryID, err := id.ParseDeliveryID(c.Params("id"))
	if err != nil {
		return badRequest("id", err.Error())
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body", err.Error())
	}

	var adjustments map[id.ProductID]types.Quantity
	if len(req.Adjustments) > 0 {
		adjustments = make(map[id.ProductID]types.Quantity, len(req.Adjustments))
		for raw, qty := range req.Adjustments {
			productID, err := id.ParseProductID(raw)
			if err != nil {
				return badRequest("adjustments", err.Error())
			}
			adjustments[productID] = qty
		}
	}

	rec, err := s.engine.UpdateDeliveryStatus(c.UserContext(), deliveryID, req.Status, adjustments)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "delivery updated", rec)
}

// POST /invoices/generate
func (s *Server) generateInvoices(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body", err.Error())
	}
	res, err := s.engine.GenerateMonthlyInvoices(c.UserContext(), req.Year, time.Month(req.Month))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "invoices generated", res)
}

// GET /invoices/:id
func (s *Server) getInvoice(c *fiber.Ctx) error {
	invID, err := id.ParseInvoiceID(c.Params("id"))
	if err != nil {
		return badRequest("id", err.Error())
	}
	inv, err := s.engine.GetInvoice(c.UserContext(), invID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "invoice", fiber.Map{
		"invoice": inv,
		"status":  inv.StatusAt(time.Now()),
	})
}

// GET /invoices/:id/document?format=txt
func (s *Server) renderInvoice(c *fiber.Ctx) error {
	invID, err := id.ParseInvoiceID(c.Params("id"))
	if err != nil {
		return badRequest("id", err.Error())
	}
	format := c.Query("format", "json")

	var buf bytes.Buffer
	if err := s.engine.RenderInvoice(c.UserContext(), invID, format, &buf); err != nil {
		return err
	}
	switch format {
	case "json":
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	default:
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	}
	return c.Send(buf.Bytes())
}

// POST /payments
func (s *Server) recordPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body", err.Error())
	}

	customerID, err := id.ParseCustomerID(req.CustomerID)
	if err != nil {
		return badRequest("customer_id", err.Error())
	}
	var invID id.InvoiceID
	if req.InvoiceID != "" {
		if invID, err = id.ParseInvoiceID(req.InvoiceID); err != nil {
			return badRequest("invoice_id", err.Error())
		}
	}
	var date time.Time
	if req.Date != "" {
		if date, err = types.ParseDate(req.Date); err != nil {
			return badRequest("date", "must be YYYY-MM-DD")
		}
	}

	p, err := s.engine.RecordPayment(c.UserContext(), billing.PaymentRequest{
		CustomerID: customerID,
		InvoiceID:  invID,
		Amount:     req.Amount,
		Mode:       req.Mode,
		Date:       date,
		Notes:      req.Notes,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "payment recorded", p)
}

// GET /customers/:id/ledger?limit=&offset=
func (s *Server) statement(c *fiber.Ctx) error {
	customerID, err := id.ParseCustomerID(c.Params("id"))
	if err != nil {
		return badRequest("id", err.Error())
	}
	opts := ledger.ListOpts{
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
	entries, err := s.engine.Statement(c.UserContext(), customerID, opts)
	if err != nil {
		return err
	}
	balance, err := s.engine.Balance(c.UserContext(), customerID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "ledger", fiber.Map{
		"entries": entries,
		"balance": balance,
	})
}

// GET /customers/:id/ledger/verify
func (s *Server) verifyLedger(c *fiber.Ctx) error {
	customerID, err := id.ParseCustomerID(c.Params("id"))
	if err != nil {
		return badRequest("id", err.Error())
	}
	report, err := s.engine.VerifyLedger(c.UserContext(), customerID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "ledger verified", fiber.Map{
		"report":     report,
		"consistent": report.Consistent(),
	})
}

func queryInt(c *fiber.Ctx, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
