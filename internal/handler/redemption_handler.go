package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fairyhunter13/rcn-reward-engine/internal/events"
	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

// RedemptionServiceInterface defines the interface for the redemption protocol.
type RedemptionServiceInterface interface {
	CreateSession(ctx context.Context, shopID, customerAddress string, requested int64) (*model.RedemptionSession, error)
	Approve(ctx context.Context, sessionID, signature string) (*model.ApproveResult, error)
	Reject(ctx context.Context, sessionID, signature string) (*model.RejectResult, error)
	GetSession(ctx context.Context, sessionID string) (*model.RedemptionSession, error)
}

// RedemptionHandler handles HTTP requests for redemption sessions.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler with the given service and validator.
func NewRedemptionHandler(svc RedemptionServiceInterface, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, validator: v}
}

// CreateSession handles POST /api/redemptions requests from a shop.
func (h *RedemptionHandler) CreateSession(c *fiber.Ctx) error {
	var req model.CreateSessionRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	session, err := h.service.CreateSession(c.UserContext(), req.ShopID, req.CustomerAddress, *req.Amount)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("shop_id", req.ShopID).Str("customer", req.CustomerAddress)
		}, "failed to create redemption session")
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// Approve handles POST /api/redemptions/:id/approve requests from the customer's device.
func (h *RedemptionHandler) Approve(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	var req model.ApproveSessionRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	ctx := events.WithCorrelationID(c.UserContext(), requestID(c))
	res, err := h.service.Approve(ctx, sessionID, req.Signature)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("session_id", sessionID)
		}, "failed to approve redemption session")
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// Reject handles POST /api/redemptions/:id/reject requests from the customer's device.
// The body is optional; when present it may carry a signed rejection.
func (h *RedemptionHandler) Reject(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	var req model.RejectSessionRequest

	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := h.validator.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
		}
	}

	res, err := h.service.Reject(c.UserContext(), sessionID, req.Signature)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("session_id", sessionID)
		}, "failed to reject redemption session")
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// GetSession handles GET /api/redemptions/:id requests.
func (h *RedemptionHandler) GetSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	session, err := h.service.GetSession(c.UserContext(), sessionID)
	if err != nil {
		return writeServiceError(c, err, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("session_id", sessionID)
		}, "failed to get redemption session")
	}

	return c.JSON(session)
}
