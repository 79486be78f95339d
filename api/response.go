package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/doodhwala/billing"
)

// fieldError is one invalid request field.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func success(c *fiber.Ctx, code int, message string, data any) error {
	return c.Status(code).JSON(fiber.Map{
		"code":    code,
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func failure(c *fiber.Ctx, code int, message string, details []fieldError) error {
	body := fiber.Map{
		"code":    code,
		"status":  "error",
		"message": message,
	}
	if len(details) > 0 {
		body["errors"] = details
	}
	if reqID, ok := c.Locals("request_id").(string); ok {
		body["request_id"] = reqID
	}
	return c.Status(code).JSON(body)
}

// badRequest reports a malformed request field.
func badRequest(field, message string) error {
	return billing.ValidationError{Field: field, Message: message, Err: billing.ErrInvalidInput}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case billing.IsValidation(err):
		return fiber.StatusBadRequest
	case billing.IsNotFound(err), errors.Is(err, billing.ErrLedgerEmpty):
		return fiber.StatusNotFound
	case billing.IsConflict(err):
		return fiber.StatusConflict
	case billing.IsConsistency(err):
		return fiber.StatusInternalServerError
	case billing.IsRetryable(err):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// validationDetails flattens a ValidationError and any field errors it
// collected.
func validationDetails(err error) []fieldError {
	var ve billing.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	var all billing.MultiError
	if errors.As(ve.Err, &all) {
		out := make([]fieldError, 0, len(all.Errors))
		for _, e := range all.Errors {
			var fe billing.ValidationError
			if errors.As(e, &fe) {
				out = append(out, fieldError{Field: fe.Field, Message: fe.Message})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []fieldError{{Field: ve.Field, Message: ve.Message}}
}

func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	switch {
	case code == fiber.StatusBadRequest:
		return failure(c, code, err.Error(), validationDetails(err))
	case code >= fiber.StatusInternalServerError:
		s.logger.Error("http request failed",
			"request_id", c.Locals("request_id"),
			"path", c.Path(),
			"error", err,
		)
		return failure(c, code, err.Error(), nil)
	}
	return failure(c, code, err.Error(), nil)
}
