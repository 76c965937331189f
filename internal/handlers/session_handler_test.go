package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/services"
	"github.com/shopspring/decimal"
)

type stubLifecycle struct {
	requestResult    *models.SessionDetail
	requestErr       error
	acceptResult     *models.SessionDetail
	acceptErr        error
	authorizeResult  *models.SessionDetail
	authorizeCred    *services.JoinCredential
	authorizeErr     error
	getResult        *models.SessionDetail
	getErr           error
	listResult       []models.Session
	listErr          error
	lastActorID      int64
	lastSessionID    int64
	lastCustomerRef  string
	lastRequestInput services.RequestSessionInput
	lastListState    string
}

func (s *stubLifecycle) RequestSession(_ context.Context, clientID int64, input services.RequestSessionInput) (*models.SessionDetail, error) {
	s.lastActorID = clientID
	s.lastRequestInput = input
	return s.requestResult, s.requestErr
}

func (s *stubLifecycle) Accept(_ context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = coachID
	s.lastSessionID = sessionID
	return s.acceptResult, s.acceptErr
}

func (s *stubLifecycle) Decline(_ context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = coachID
	s.lastSessionID = sessionID
	return s.acceptResult, s.acceptErr
}

func (s *stubLifecycle) CancelByClient(_ context.Context, clientID int64, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = clientID
	s.lastSessionID = sessionID
	return s.acceptResult, s.acceptErr
}

func (s *stubLifecycle) AuthorizeBase(_ context.Context, clientID int64, sessionID int64, customerRef string) (*models.SessionDetail, *services.JoinCredential, error) {
	s.lastActorID = clientID
	s.lastSessionID = sessionID
	s.lastCustomerRef = customerRef
	return s.authorizeResult, s.authorizeCred, s.authorizeErr
}

func (s *stubLifecycle) CredentialFor(_ context.Context, actorID int64, sessionID int64) (*services.JoinCredential, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.authorizeCred, s.authorizeErr
}

func (s *stubLifecycle) GetSession(_ context.Context, actorID int64, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.getResult, s.getErr
}

func (s *stubLifecycle) ListSessions(_ context.Context, actorID int64, role string, state string) ([]models.Session, error) {
	s.lastActorID = actorID
	s.lastListState = state
	return s.listResult, s.listErr
}

type stubTerminator struct {
	endResult     *services.TerminationResult
	endErr        error
	peerResult    *services.TerminationResult
	peerErr       error
	lastActorID   int64
	lastSessionID int64
	lastReason    string
}

func (s *stubTerminator) EndSession(_ context.Context, actorID int64, sessionID int64, reason string) (*services.TerminationResult, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	s.lastReason = reason
	return s.endResult, s.endErr
}

func (s *stubTerminator) ReportPeerDisconnect(_ context.Context, actorID int64, sessionID int64) (*services.TerminationResult, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.peerResult, s.peerErr
}

func newSessionTestApp(handler *SessionHandler, role, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/api/v1/sessions", handler.Request)
	app.Get("/api/v1/sessions", handler.List)
	app.Get("/api/v1/sessions/:id", handler.Get)
	app.Post("/api/v1/sessions/:id/accept", handler.Accept)
	app.Post("/api/v1/sessions/:id/authorize", handler.AuthorizeBase)
	app.Post("/api/v1/sessions/:id/end", handler.End)
	app.Post("/api/v1/sessions/:id/peer-disconnect", handler.ReportPeerDisconnect)
	return app
}

func TestRequestSessionReturnsCreated(t *testing.T) {
	lifecycle := &stubLifecycle{
		requestResult: &models.SessionDetail{
			Session: models.Session{ID: 31, BookingID: 12, State: models.SessionRequested},
		},
	}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{
		"coach_id": 7,
		"scheduled_at": "2026-03-15T09:00:00Z",
		"duration_minutes": 10,
		"price_amount": "10.00",
		"price_currency": "USD",
		"overtime": {"allowed": true, "paid_max_minutes": 30, "rate_multiplier": "1.5"}
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
	if lifecycle.lastActorID != 42 {
		t.Fatalf("expected actor id 42, got %d", lifecycle.lastActorID)
	}
	if lifecycle.lastRequestInput.CoachID != 7 {
		t.Fatalf("expected coach id 7, got %d", lifecycle.lastRequestInput.CoachID)
	}
	if !lifecycle.lastRequestInput.PriceAmount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected price: %s", lifecycle.lastRequestInput.PriceAmount)
	}
	if !lifecycle.lastRequestInput.Overtime.Allowed {
		t.Fatal("expected overtime policy to be carried through")
	}
}

func TestRequestSessionRejectsCoachRole(t *testing.T) {
	handler := NewSessionHandler(&stubLifecycle{}, &stubTerminator{})
	app := newSessionTestApp(handler, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"coach_id": 7}`))
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

func TestAcceptSessionMapsInvalidTransition(t *testing.T) {
	lifecycle := &stubLifecycle{acceptErr: services.ErrInvalidStateTransition}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if lifecycle.lastSessionID != 31 {
		t.Fatalf("expected session id 31, got %d", lifecycle.lastSessionID)
	}
}

func TestAuthorizeBaseReturnsCredential(t *testing.T) {
	lifecycle := &stubLifecycle{
		authorizeResult: &models.SessionDetail{
			Session: models.Session{ID: 31, State: models.SessionHandshakePending},
		},
		authorizeCred: &services.JoinCredential{RoomID: "room-1", Token: "signed"},
	}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/authorize",
		strings.NewReader(`{"customer_ref": "cus_123"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if lifecycle.lastCustomerRef != "cus_123" {
		t.Fatalf("expected customer_ref cus_123, got %q", lifecycle.lastCustomerRef)
	}

	var body struct {
		Credential struct {
			RoomID string `json:"room_id"`
			Token  string `json:"token"`
		} `json:"credential"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Credential.RoomID != "room-1" || body.Credential.Token != "signed" {
		t.Fatalf("unexpected credential: %+v", body.Credential)
	}
}

func TestAuthorizeBaseRequiresCustomerRef(t *testing.T) {
	handler := NewSessionHandler(&stubLifecycle{}, &stubTerminator{})
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/authorize", strings.NewReader(`{}`))
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

func TestAuthorizeBaseMapsGatewayFailure(t *testing.T) {
	lifecycle := &stubLifecycle{authorizeErr: services.ErrGatewayCallFailed}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/authorize",
		strings.NewReader(`{"customer_ref": "cus_123"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestGetSessionReturnsNotFound(t *testing.T) {
	lifecycle := &stubLifecycle{getErr: pgx.ErrNoRows}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/999", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListSessionsPassesStateFilter(t *testing.T) {
	lifecycle := &stubLifecycle{
		listResult: []models.Session{{ID: 5, State: models.SessionCompleted}},
	}
	handler := NewSessionHandler(lifecycle, &stubTerminator{})
	app := newSessionTestApp(handler, "coach", "9")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?state=completed", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if lifecycle.lastListState != "completed" {
		t.Fatalf("expected state filter completed, got %q", lifecycle.lastListState)
	}
}

func TestEndSessionReportsSettlement(t *testing.T) {
	terminator := &stubTerminator{
		endResult: &services.TerminationResult{
			Session:   &models.Session{ID: 31, State: models.SessionCompleted},
			Performed: true,
			Settlement: &services.SettlementResult{
				Segment: &models.OvertimeSegment{ID: "seg-1", Status: models.SegmentPartiallyCaptured},
				Plan: services.SettlementPlan{
					Action:      services.ActionPartialCapture,
					Amount:      decimal.RequireFromString("4.00"),
					UsedMinutes: 4,
				},
			},
		},
	}
	handler := NewSessionHandler(&stubLifecycle{}, terminator)
	app := newSessionTestApp(handler, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/end",
		strings.NewReader(`{"reason": "done for today"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if terminator.lastReason != "done for today" {
		t.Fatalf("expected reason to pass through, got %q", terminator.lastReason)
	}

	var body struct {
		Performed  bool `json:"performed"`
		Settlement struct {
			Action      string `json:"action"`
			UsedMinutes int    `json:"used_minutes"`
		} `json:"settlement"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Performed {
		t.Fatal("expected performed termination")
	}
	if body.Settlement.Action != "partial_capture" || body.Settlement.UsedMinutes != 4 {
		t.Fatalf("unexpected settlement: %+v", body.Settlement)
	}
}

func TestEndSessionForbiddenForNonCoach(t *testing.T) {
	terminator := &stubTerminator{endErr: services.ErrUnauthorizedActor}
	handler := NewSessionHandler(&stubLifecycle{}, terminator)
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/end", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestReportPeerDisconnectReturnsResult(t *testing.T) {
	terminator := &stubTerminator{
		peerResult: &services.TerminationResult{
			Session:   &models.Session{ID: 31, State: models.SessionCompleted},
			Performed: true,
		},
	}
	handler := NewSessionHandler(&stubLifecycle{}, terminator)
	app := newSessionTestApp(handler, "client", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/peer-disconnect", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if terminator.lastSessionID != 31 || terminator.lastActorID != 42 {
		t.Fatalf("unexpected call: session %d actor %d", terminator.lastSessionID, terminator.lastActorID)
	}
}
