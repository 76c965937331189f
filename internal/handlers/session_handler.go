package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/services"
	"github.com/shopspring/decimal"
)

// SessionLifecycle is the surface of the lifecycle service the handler
// needs. Declared here so tests can stand in a stub.
type SessionLifecycle interface {
	RequestSession(ctx context.Context, clientID int64, input services.RequestSessionInput) (*models.SessionDetail, error)
	Accept(ctx context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error)
	Decline(ctx context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error)
	CancelByClient(ctx context.Context, clientID int64, sessionID int64) (*models.SessionDetail, error)
	AuthorizeBase(ctx context.Context, clientID int64, sessionID int64, customerRef string) (*models.SessionDetail, *services.JoinCredential, error)
	CredentialFor(ctx context.Context, actorID int64, sessionID int64) (*services.JoinCredential, error)
	GetSession(ctx context.Context, actorID int64, sessionID int64) (*models.SessionDetail, error)
	ListSessions(ctx context.Context, actorID int64, role string, state string) ([]models.Session, error)
}

type SessionTerminator interface {
	EndSession(ctx context.Context, actorID int64, sessionID int64, reason string) (*services.TerminationResult, error)
	ReportPeerDisconnect(ctx context.Context, actorID int64, sessionID int64) (*services.TerminationResult, error)
}

type SessionHandler struct {
	lifecycle  SessionLifecycle
	terminator SessionTerminator
}

func NewSessionHandler(lifecycle SessionLifecycle, terminator SessionTerminator) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle, terminator: terminator}
}

type overtimePolicyRequest struct {
	Allowed        bool            `json:"allowed"`
	FreeMinutes    int             `json:"free_minutes"`
	PaidMaxMinutes int             `json:"paid_max_minutes"`
	RateMultiplier decimal.Decimal `json:"rate_multiplier"`
}

type requestSessionRequest struct {
	CoachID         int64                 `json:"coach_id"`
	ScheduledAt     time.Time             `json:"scheduled_at"`
	DurationMinutes int                   `json:"duration_minutes"`
	PriceAmount     decimal.Decimal       `json:"price_amount"`
	PriceCurrency   string                `json:"price_currency"`
	Overtime        overtimePolicyRequest `json:"overtime"`
}

func (h *SessionHandler) Request(c *fiber.Ctx) error {
	clientID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	if actorRole(c) != "client" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only clients can request sessions"})
	}

	var req requestSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	detail, err := h.lifecycle.RequestSession(c.Context(), clientID, services.RequestSessionInput{
		CoachID:         req.CoachID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		PriceAmount:     req.PriceAmount,
		PriceCurrency:   req.PriceCurrency,
		Overtime: models.OvertimePolicy{
			Allowed:        req.Overtime.Allowed,
			FreeMinutes:    req.Overtime.FreeMinutes,
			PaidMaxMinutes: req.Overtime.PaidMaxMinutes,
			RateMultiplier: req.Overtime.RateMultiplier,
		},
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(detail)
}

func (h *SessionHandler) Accept(c *fiber.Ctx) error {
	coachID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	detail, err := h.lifecycle.Accept(c.Context(), coachID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(detail)
}

func (h *SessionHandler) Decline(c *fiber.Ctx) error {
	coachID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	detail, err := h.lifecycle.Decline(c.Context(), coachID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(detail)
}

func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	clientID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	detail, err := h.lifecycle.CancelByClient(c.Context(), clientID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(detail)
}

type authorizeBaseRequest struct {
	CustomerRef string `json:"customer_ref"`
}

func (h *SessionHandler) AuthorizeBase(c *fiber.Ctx) error {
	clientID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req authorizeBaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.CustomerRef == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customer_ref is required"})
	}

	detail, credential, err := h.lifecycle.AuthorizeBase(c.Context(), clientID, sessionID, req.CustomerRef)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"session": detail, "credential": credential})
}

func (h *SessionHandler) Credential(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	credential, err := h.lifecycle.CredentialFor(c.Context(), userID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(credential)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	detail, err := h.lifecycle.GetSession(c.Context(), userID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(detail)
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	sessions, err := h.lifecycle.ListSessions(c.Context(), userID, actorRole(c), c.Query("state"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

func (h *SessionHandler) End(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req endSessionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		req.Reason = "coach_ended"
	}

	result, err := h.terminator.EndSession(c.Context(), userID, sessionID, req.Reason)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(terminationResponse(result))
}

func (h *SessionHandler) ReportPeerDisconnect(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.terminator.ReportPeerDisconnect(c.Context(), userID, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(terminationResponse(result))
}

func terminationResponse(result *services.TerminationResult) fiber.Map {
	resp := fiber.Map{
		"performed": result.Performed,
		"deferred":  result.Deferred,
	}
	if result.Session != nil {
		resp["session"] = result.Session
	}
	if result.Settlement != nil && result.Settlement.Segment != nil {
		resp["settlement"] = fiber.Map{
			"action":       result.Settlement.Plan.Action,
			"amount":       result.Settlement.Plan.Amount,
			"used_minutes": result.Settlement.Plan.UsedMinutes,
			"segment":      result.Settlement.Segment,
		}
	}
	return resp
}
