package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/services"
	"github.com/shopspring/decimal"
)

type stubOvertime struct {
	requestResult   *models.OvertimeSegment
	requestErr      error
	declineResult   *models.OvertimeSegment
	declineErr      error
	authorizeResult *models.OvertimeSegment
	authorizeErr    error
	pendingResult   *models.OvertimeSegment
	pendingErr      error
	lastActorID     int64
	lastSessionID   int64
	lastSegmentID   string
	lastDuration    int
	lastMaxPrice    decimal.Decimal
	lastCustomerRef string
}

func (s *stubOvertime) Request(_ context.Context, coachID int64, sessionID int64, durationMinutes int, maxPrice decimal.Decimal) (*models.OvertimeSegment, error) {
	s.lastActorID = coachID
	s.lastSessionID = sessionID
	s.lastDuration = durationMinutes
	s.lastMaxPrice = maxPrice
	return s.requestResult, s.requestErr
}

func (s *stubOvertime) Decline(_ context.Context, clientID int64, sessionID int64, segmentID string) (*models.OvertimeSegment, error) {
	s.lastActorID = clientID
	s.lastSessionID = sessionID
	s.lastSegmentID = segmentID
	return s.declineResult, s.declineErr
}

func (s *stubOvertime) Authorize(_ context.Context, clientID int64, sessionID int64, segmentID string, customerRef string) (*models.OvertimeSegment, error) {
	s.lastActorID = clientID
	s.lastSessionID = sessionID
	s.lastSegmentID = segmentID
	s.lastCustomerRef = customerRef
	return s.authorizeResult, s.authorizeErr
}

func (s *stubOvertime) PendingSegment(_ context.Context, actorID int64, sessionID int64) (*models.OvertimeSegment, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.pendingResult, s.pendingErr
}

func newOvertimeTestApp(handler *OvertimeHandler, role, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/api/v1/sessions/:id/overtime", handler.Request)
	app.Post("/api/v1/sessions/:id/overtime/respond", handler.Respond)
	app.Get("/api/v1/sessions/:id/overtime/pending", handler.Pending)
	return app
}

func TestOvertimeRequestReturnsCreatedSegment(t *testing.T) {
	overtime := &stubOvertime{
		requestResult: &models.OvertimeSegment{
			ID:        "d4f0c8a2-1111-2222-3333-444455556666",
			SessionID: 31,
			Status:    models.SegmentRequested,
		},
	}
	handler := NewOvertimeHandler(overtime)
	app := newOvertimeTestApp(handler, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime", strings.NewReader(`{
		"duration_minutes": 10,
		"max_price": "10.00"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if overtime.lastSessionID != 31 || overtime.lastDuration != 10 {
		t.Fatalf("unexpected call: session %d duration %d", overtime.lastSessionID, overtime.lastDuration)
	}
	if !overtime.lastMaxPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected max price: %s", overtime.lastMaxPrice)
	}
}

func TestOvertimeRequestRejectsClientRole(t *testing.T) {
	handler := NewOvertimeHandler(&stubOvertime{})
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime",
		strings.NewReader(`{"duration_minutes": 10, "max_price": "10.00"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestOvertimeRequestMapsConflict(t *testing.T) {
	overtime := &stubOvertime{requestErr: services.ErrConflictingOvertimeRequest}
	handler := NewOvertimeHandler(overtime)
	app := newOvertimeTestApp(handler, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime",
		strings.NewReader(`{"duration_minutes": 10, "max_price": "10.00"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestOvertimeRespondAcceptAuthorizes(t *testing.T) {
	overtime := &stubOvertime{
		authorizeResult: &models.OvertimeSegment{
			ID:        "seg-1",
			SessionID: 31,
			Status:    models.SegmentAuthorized,
		},
	}
	handler := NewOvertimeHandler(overtime)
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime/respond", strings.NewReader(`{
		"segment_id": "seg-1",
		"choice": "accept",
		"customer_ref": "cus_123"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if overtime.lastSegmentID != "seg-1" || overtime.lastCustomerRef != "cus_123" {
		t.Fatalf("unexpected call: segment %q ref %q", overtime.lastSegmentID, overtime.lastCustomerRef)
	}
}

func TestOvertimeRespondAcceptRequiresCustomerRef(t *testing.T) {
	handler := NewOvertimeHandler(&stubOvertime{})
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime/respond",
		strings.NewReader(`{"segment_id": "seg-1", "choice": "accept"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOvertimeRespondDecline(t *testing.T) {
	overtime := &stubOvertime{
		declineResult: &models.OvertimeSegment{
			ID:        "seg-1",
			SessionID: 31,
			Status:    models.SegmentDeclined,
		},
	}
	handler := NewOvertimeHandler(overtime)
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime/respond",
		strings.NewReader(`{"segment_id": "seg-1", "choice": "decline"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if overtime.lastSegmentID != "seg-1" {
		t.Fatalf("expected decline for seg-1, got %q", overtime.lastSegmentID)
	}
}

func TestOvertimeRespondRejectsUnknownChoice(t *testing.T) {
	handler := NewOvertimeHandler(&stubOvertime{})
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/overtime/respond",
		strings.NewReader(`{"segment_id": "seg-1", "choice": "maybe"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOvertimePendingReturnsNullWhenResolved(t *testing.T) {
	handler := NewOvertimeHandler(&stubOvertime{})
	app := newOvertimeTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/31/overtime/pending", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
