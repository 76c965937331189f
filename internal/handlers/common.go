package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachLiveBack/internal/services"
)

func actorID(c *fiber.Ctx) (int64, error) {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, errors.New("missing user id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}

func actorRole(c *fiber.Ctx) string {
	role, _ := c.Locals("role").(string)
	return role
}

func parseSessionID(c *fiber.Ctx) (int64, error) {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return 0, errors.New("invalid session id")
	}
	return sessionID, nil
}

func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorizedActor), errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrConflictingOvertimeRequest):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrGatewayCallFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrCoachNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Coach not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
