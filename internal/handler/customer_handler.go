package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/internal/validator"
)

// CustomerSummaryInterface reports a customer's balance and earning state.
type CustomerSummaryInterface interface {
	GetCustomerSummary(ctx context.Context, customerAddress string) (*model.CustomerSummaryResponse, error)
}

// CustomerRedemptionInterface answers a customer's redemption queries.
type CustomerRedemptionInterface interface {
	MaxRedeemable(ctx context.Context, customerAddress, shopID string) (int64, error)
	ListPendingSessions(ctx context.Context, customerAddress string) ([]model.RedemptionSession, error)
}

// CustomerHandler handles read-only customer requests.
type CustomerHandler struct {
	summary     CustomerSummaryInterface
	redemptions CustomerRedemptionInterface
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(summary CustomerSummaryInterface, redemptions CustomerRedemptionInterface) *CustomerHandler {
	return &CustomerHandler{summary: summary, redemptions: redemptions}
}

func customerAddress(c *fiber.Ctx) (string, bool) {
	address := c.Params("address")
	if !validator.IsAddress(address) {
		return "", false
	}
	return service.NormalizeAddress(address), true
}

var errInvalidAddress = fiber.Map{"error": "invalid request: address must be a 0x-prefixed 40 hex digit address"}

// GetCustomer handles GET /api/customers/:address requests.
func (h *CustomerHandler) GetCustomer(c *fiber.Ctx) error {
	address, ok := customerAddress(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidAddress)
	}

	summary, err := h.summary.GetCustomerSummary(c.UserContext(), address)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer", address)
		}, "failed to get customer")
	}
	return c.JSON(summary)
}

// GetRedeemable handles GET /api/customers/:address/redeemable?shop_id= requests.
func (h *CustomerHandler) GetRedeemable(c *fiber.Ctx) error {
	address, ok := customerAddress(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidAddress)
	}
	shopID := c.Query("shop_id")
	if shopID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: shop_id is required"})
	}

	maxAmount, err := h.redemptions.MaxRedeemable(c.UserContext(), address, shopID)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer", address).Str("shop_id", shopID)
		}, "failed to resolve redeemable balance")
	}
	return c.JSON(model.RedeemableResponse{Address: address, ShopID: shopID, MaxRedeemable: maxAmount})
}

// ListPendingSessions handles GET /api/customers/:address/redemptions/pending requests.
func (h *CustomerHandler) ListPendingSessions(c *fiber.Ctx) error {
	address, ok := customerAddress(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidAddress)
	}

	sessions, err := h.redemptions.ListPendingSessions(c.UserContext(), address)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer", address)
		}, "failed to list pending sessions")
	}
	return c.JSON(sessions)
}
