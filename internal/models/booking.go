package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OvertimePolicy is attached to a booking at creation time and read-only
// afterwards. Free minutes are never billed; paid minutes cap how much
// overtime a coach may request across the whole session.
type OvertimePolicy struct {
	Allowed        bool            `json:"allowed"`
	FreeMinutes    int             `json:"free_minutes"`
	PaidMaxMinutes int             `json:"paid_max_minutes"`
	RateMultiplier decimal.Decimal `json:"rate_multiplier"`
}

// Booking is the scheduled engagement between a coach and a client. The
// lifecycle core only reads it; it is immutable once a session goes live.
type Booking struct {
	ID              int64           `json:"id"`
	ClientID        int64           `json:"client_id"`
	CoachID         int64           `json:"coach_id"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes"`
	PriceAmount     decimal.Decimal `json:"price_amount"`
	PriceCurrency   string          `json:"price_currency"`
	Overtime        OvertimePolicy  `json:"overtime"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ScheduledEnd is the booked end of the engagement before any overtime.
func (b *Booking) ScheduledEnd() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}
