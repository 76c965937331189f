package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPlanSettlementPartialUsage(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt.Add(4*time.Minute), 50)

	if plan.Action != ActionPartialCapture {
		t.Fatalf("expected partial capture, got %s", plan.Action)
	}
	if plan.UsedMinutes != 4 {
		t.Fatalf("expected 4 used minutes, got %d", plan.UsedMinutes)
	}
	if !plan.Amount.Equal(decimal.RequireFromString("4.00")) {
		t.Fatalf("expected 4.00, got %s", plan.Amount)
	}
	if plan.AmountMinor != 400 {
		t.Fatalf("expected 400 minor units, got %d", plan.AmountMinor)
	}
}

func TestPlanSettlementOverrunCapsAtRequestedDuration(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt.Add(15*time.Minute), 50)

	if plan.Action != ActionFullCapture {
		t.Fatalf("expected full capture, got %s", plan.Action)
	}
	if plan.UsedMinutes != 10 {
		t.Fatalf("expected cap at 10 minutes, got %d", plan.UsedMinutes)
	}
	if !plan.Amount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected full 10.00, got %s", plan.Amount)
	}
}

func TestPlanSettlementExactBoundaryIsFullCapture(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt.Add(10*time.Minute), 50)

	if plan.Action != ActionFullCapture {
		t.Fatalf("expected full capture at the boundary, got %s", plan.Action)
	}
}

func TestPlanSettlementPartialMinuteRoundsUp(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt.Add(3*time.Minute+30*time.Second), 50)

	if plan.UsedMinutes != 4 {
		t.Fatalf("expected 3m30s to bill as 4 minutes, got %d", plan.UsedMinutes)
	}
	if !plan.Amount.Equal(decimal.RequireFromString("4.00")) {
		t.Fatalf("expected 4.00, got %s", plan.Amount)
	}
}

func TestPlanSettlementZeroUsageReleases(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt, 50)

	if plan.Action != ActionRelease {
		t.Fatalf("expected release for zero usage, got %s", plan.Action)
	}
	if plan.UsedMinutes != 0 {
		t.Fatalf("expected 0 used minutes, got %d", plan.UsedMinutes)
	}
}

func TestPlanSettlementNegativeElapsedReleases(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.RequireFromString("10.00"), authorizedAt.Add(-time.Minute), 50)

	if plan.Action != ActionRelease {
		t.Fatalf("expected release when end precedes authorization, got %s", plan.Action)
	}
}

func TestPlanSettlementZeroPriceReleases(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	plan := PlanSettlement(authorizedAt, 10, decimal.Zero, authorizedAt.Add(5*time.Minute), 50)

	if plan.Action != ActionRelease {
		t.Fatalf("expected release for a zero-price segment, got %s", plan.Action)
	}
}

func TestPlanSettlementBelowMinimumChargeReleases(t *testing.T) {
	authorizedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	// 1 of 30 minutes at 6.00 total is 0.20, below a 0.50 minimum.
	plan := PlanSettlement(authorizedAt, 30, decimal.RequireFromString("6.00"), authorizedAt.Add(time.Minute), 50)

	if plan.Action != ActionRelease {
		t.Fatalf("expected release below minimum charge, got %s", plan.Action)
	}
	if plan.UsedMinutes != 1 {
		t.Fatalf("expected 1 used minute, got %d", plan.UsedMinutes)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"0.00", 0},
		{"0.50", 50},
		{"4.00", 400},
		{"10.99", 1099},
		{"3.333", 333},
	}
	for _, tc := range cases {
		got := MinorUnits(decimal.RequireFromString(tc.amount))
		if got != tc.want {
			t.Fatalf("MinorUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}
