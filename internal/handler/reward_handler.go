package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/rcn-reward-engine/internal/events"
	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

// RewardServiceInterface defines the interface for reward issuance.
type RewardServiceInterface interface {
	IssueReward(ctx context.Context, shopID, customerAddress string, repairAmountUSD decimal.Decimal) (*model.RewardResult, error)
}

// RewardHandler handles HTTP requests for reward issuance.
type RewardHandler struct {
	service   RewardServiceInterface
	validator *validator.Validate
}

// NewRewardHandler creates a new RewardHandler with the given service and validator.
func NewRewardHandler(svc RewardServiceInterface, v *validator.Validate) *RewardHandler {
	return &RewardHandler{service: svc, validator: v}
}

// IssueReward handles POST /api/rewards requests from a shop completing a repair.
func (h *RewardHandler) IssueReward(c *fiber.Ctx) error {
	var req model.IssueRewardRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.RepairAmountUSD))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: repair_amount_usd must be a non-negative decimal"})
	}

	ctx := events.WithCorrelationID(c.UserContext(), requestID(c))
	res, err := h.service.IssueReward(ctx, req.ShopID, req.CustomerAddress, amount)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("shop_id", req.ShopID).Str("customer", req.CustomerAddress)
		}, "failed to issue reward")
	}

	log.Info().
		Str("request_id", requestID(c)).
		Str("shop_id", req.ShopID).
		Str("customer", req.CustomerAddress).
		Int64("base_reward", res.BaseReward).
		Int64("tier_bonus", res.TierBonus).
		Bool("bonus_skipped", res.BonusSkipped).
		Msg("reward issued")

	return c.Status(fiber.StatusOK).JSON(res)
}
