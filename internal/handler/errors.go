package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
)

// serviceErrors maps business-rule errors to HTTP statuses.
// The response message is the sentinel's own text.
var serviceErrors = []struct {
	err    error
	status int
}{
	{service.ErrInvalidRequest, fiber.StatusBadRequest},
	{service.ErrInsufficientRepairAmount, fiber.StatusBadRequest},
	{service.ErrInvalidAmount, fiber.StatusBadRequest},
	{service.ErrSignatureInvalid, fiber.StatusUnauthorized},
	{service.ErrShopInactive, fiber.StatusForbidden},
	{service.ErrCustomerNotFound, fiber.StatusNotFound},
	{service.ErrShopNotFound, fiber.StatusNotFound},
	{service.ErrSessionNotFound, fiber.StatusNotFound},
	{service.ErrInvalidSessionState, fiber.StatusConflict},
	{service.ErrSessionExpired, fiber.StatusGone},
	{service.ErrDailyLimitExceeded, fiber.StatusUnprocessableEntity},
	{service.ErrMonthlyLimitExceeded, fiber.StatusUnprocessableEntity},
	{service.ErrInsufficientBalance, fiber.StatusUnprocessableEntity},
	{service.ErrInsufficientShopBalance, fiber.StatusUnprocessableEntity},
}

// writeServiceError responds with the status for a known business error,
// or logs err and responds 500.
func writeServiceError(c *fiber.Ctx, err error, fields func(e *zerolog.Event) *zerolog.Event, msg string) error {
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			return c.Status(se.status).JSON(fiber.Map{"error": se.err.Error()})
		}
	}
	ev := log.Error().
		Err(err).
		Str("request_id", requestID(c)).
		Str("method", c.Method()).
		Str("path", c.Path())
	if fields != nil {
		ev = fields(ev)
	}
	ev.Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// requestID returns the id set by the requestid middleware, if any.
func requestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// jsonFields names request fields the way clients send them.
var jsonFields = map[string]string{
	"ShopID":          "shop_id",
	"CustomerAddress": "customer_address",
	"RepairAmountUSD": "repair_amount_usd",
	"Amount":          "amount",
	"Signature":       "signature",
}

// formatValidationError converts the first validator error to a client message.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field, ok := jsonFields[fe.Field()]
			if !ok {
				field = strings.ToLower(fe.Field())
			}

			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "max":
				return "invalid request: " + field + " exceeds maximum length of " + fe.Param()
			case "gte":
				return "invalid request: " + field + " must be at least " + fe.Param()
			case "rcnaddr":
				return "invalid request: " + field + " must be a 0x-prefixed 40 hex digit address"
			case "usdamount":
				return "invalid request: " + field + " must be a non-negative decimal"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}
