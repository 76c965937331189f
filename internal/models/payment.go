package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the gateway hold/charge state in the ledger.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentFailed            PaymentStatus = "failed"
	PaymentCancelled         PaymentStatus = "cancelled"
)

const (
	PaymentKindBase     = "base"
	PaymentKindOvertime = "overtime"
)

// Payment is the ledger mirror of one gateway hold. Its status and the
// owning segment's status are only ever advanced together, inside the
// same transaction.
type Payment struct {
	ID               int64           `json:"id"`
	BookingID        int64           `json:"booking_id"`
	SegmentID        *string         `json:"segment_id,omitempty"`
	UserID           int64           `json:"user_id"`
	CoachID          int64           `json:"coach_id"`
	Kind             string          `json:"kind"`
	Status           PaymentStatus   `json:"status"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount"`
	CapturedAmount   decimal.Decimal `json:"captured_amount"`
	Currency         string          `json:"currency"`
	HoldRef          *string         `json:"hold_ref,omitempty"`
	ChargeRef        *string         `json:"charge_ref,omitempty"`
	Error            *string         `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
