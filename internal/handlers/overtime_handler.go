package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/shopspring/decimal"
)

type OvertimeCoordinator interface {
	Request(ctx context.Context, coachID int64, sessionID int64, durationMinutes int, maxPrice decimal.Decimal) (*models.OvertimeSegment, error)
	Decline(ctx context.Context, clientID int64, sessionID int64, segmentID string) (*models.OvertimeSegment, error)
	Authorize(ctx context.Context, clientID int64, sessionID int64, segmentID string, customerRef string) (*models.OvertimeSegment, error)
	PendingSegment(ctx context.Context, actorID int64, sessionID int64) (*models.OvertimeSegment, error)
}

type OvertimeHandler struct {
	overtime OvertimeCoordinator
}

func NewOvertimeHandler(overtime OvertimeCoordinator) *OvertimeHandler {
	return &OvertimeHandler{overtime: overtime}
}

type overtimeRequestRequest struct {
	DurationMinutes int             `json:"duration_minutes"`
	MaxPrice        decimal.Decimal `json:"max_price"`
}

func (h *OvertimeHandler) Request(c *fiber.Ctx) error {
	coachID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	if actorRole(c) != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the coach can propose overtime"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req overtimeRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	segment, err := h.overtime.Request(c.Context(), coachID, sessionID, req.DurationMinutes, req.MaxPrice)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(segment)
}

type overtimeRespondRequest struct {
	SegmentID   string `json:"segment_id"`
	Choice      string `json:"choice"`
	CustomerRef string `json:"customer_ref"`
}

// Respond is the client's answer to an overtime prompt. "accept" runs the
// payment authorization; "decline" resolves the segment without one.
func (h *OvertimeHandler) Respond(c *fiber.Ctx) error {
	clientID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req overtimeRespondRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.SegmentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "segment_id is required"})
	}

	switch req.Choice {
	case "accept":
		if req.CustomerRef == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customer_ref is required to accept"})
		}
		segment, err := h.overtime.Authorize(c.Context(), clientID, sessionID, req.SegmentID, req.CustomerRef)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(segment)
	case "decline":
		segment, err := h.overtime.Decline(c.Context(), clientID, sessionID, req.SegmentID)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(segment)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "choice must be accept or decline"})
	}
}

func (h *OvertimeHandler) Pending(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	segment, err := h.overtime.PendingSegment(c.Context(), userID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	if segment == nil {
		return c.JSON(fiber.Map{"segment": nil})
	}
	return c.JSON(fiber.Map{"segment": segment})
}
