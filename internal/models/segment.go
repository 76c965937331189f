package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SegmentStatus is the sub-state of one paid overtime grant.
type SegmentStatus string

const (
	SegmentRequested           SegmentStatus = "requested"
	SegmentPendingConfirmation SegmentStatus = "pending_confirmation"
	SegmentAuthorized          SegmentStatus = "authorized"
	SegmentDeclined            SegmentStatus = "declined"
	SegmentCaptured            SegmentStatus = "captured"
	SegmentPartiallyCaptured   SegmentStatus = "partially_captured"
	SegmentReleased            SegmentStatus = "released"
	SegmentFailed              SegmentStatus = "failed"
)

var segmentTransitions = map[SegmentStatus][]SegmentStatus{
	SegmentRequested:           {SegmentPendingConfirmation, SegmentDeclined, SegmentFailed},
	SegmentPendingConfirmation: {SegmentAuthorized, SegmentFailed},
	SegmentAuthorized:          {SegmentCaptured, SegmentPartiallyCaptured, SegmentReleased, SegmentFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s SegmentStatus) CanTransition(next SegmentStatus) bool {
	for _, allowed := range segmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a segment is fully resolved. A segment in a
// non-terminal status blocks any new overtime request for the session.
func (s SegmentStatus) IsTerminal() bool {
	switch s {
	case SegmentDeclined, SegmentCaptured, SegmentPartiallyCaptured,
		SegmentReleased, SegmentFailed:
		return true
	}
	return false
}

// CaptureResult records the gateway outcome of settling a segment.
type CaptureResult struct {
	Status         string          `json:"status"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	ChargeRef      *string         `json:"charge_ref,omitempty"`
	Error          *string         `json:"error,omitempty"`
}

// OvertimeSegment is one paid-overtime request/grant. Segments are never
// deleted, only finalized; finalized_at doubles as the settlement
// idempotency stamp.
type OvertimeSegment struct {
	ID                 string          `json:"id"`
	SessionID          int64           `json:"session_id"`
	Status             SegmentStatus   `json:"status"`
	RequestedDuration  int             `json:"requested_duration_minutes"`
	CalculatedMaxPrice decimal.Decimal `json:"calculated_max_price"`
	Currency           string          `json:"currency"`
	PaymentHoldRef     *string         `json:"payment_hold_ref,omitempty"`
	RequestedAt        time.Time       `json:"requested_at"`
	AuthorizedAt       *time.Time      `json:"authorized_at,omitempty"`
	FinalizedAt        *time.Time      `json:"finalized_at,omitempty"`
	CaptureStatus      *string         `json:"capture_status,omitempty"`
	CapturedAmount     decimal.Decimal `json:"captured_amount"`
	ChargeRef          *string         `json:"charge_ref,omitempty"`
	CaptureError       *string         `json:"capture_error,omitempty"`
}
