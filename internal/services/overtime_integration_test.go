package services

import (
	"context"
	"errors"
	"testing"

	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/shopspring/decimal"
)

func TestOvertimeRequestEnforcesPaidMinutesCap(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	fx := newBillingFixture(pool)

	clientID := createBilledAccount(t, ctx, pool, "client")
	coachID := createBilledAccount(t, ctx, pool, "coach")
	t.Cleanup(func() { cleanupBillingData(t, ctx, pool, clientID, coachID) })

	// The fixture books with a 60 paid-overtime-minute cap.
	sessionID := startLiveSession(t, ctx, fx, clientID, coachID)

	if _, err := fx.overtime.Request(ctx, coachID, sessionID, 61, decimal.RequireFromString("61.00")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for request beyond the cap, got %v", err)
	}

	segment, err := fx.overtime.Request(ctx, coachID, sessionID, 30, decimal.RequireFromString("30.00"))
	if err != nil {
		t.Fatalf("Request within cap: %v", err)
	}
	authorized, err := fx.overtime.Authorize(ctx, clientID, sessionID, segment.ID, "cus_test")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if authorized.Status != models.SegmentAuthorized {
		t.Fatalf("expected authorized segment, got %s", authorized.Status)
	}

	// 30 authorized minutes leave room for 30 more, not 31. The cap is
	// checked before the one-unresolved-segment rule so an oversized
	// request is rejected as bad input, not as a conflict.
	if _, err := fx.overtime.Request(ctx, coachID, sessionID, 31, decimal.RequireFromString("31.00")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput once authorized minutes exhaust the cap, got %v", err)
	}
	if _, err := fx.overtime.Request(ctx, coachID, sessionID, 30, decimal.RequireFromString("30.00")); !errors.Is(err, ErrConflictingOvertimeRequest) {
		t.Fatalf("expected conflict while the authorized segment is unresolved, got %v", err)
	}
}
