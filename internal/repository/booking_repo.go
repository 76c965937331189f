package repository

import (
	"context"
	"time"

	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/shopspring/decimal"
)

type CreateBookingInput struct {
	ClientID        int64
	CoachID         int64
	ScheduledAt     time.Time
	DurationMinutes int
	PriceAmount     decimal.Decimal
	PriceCurrency   string
	Overtime        models.OvertimePolicy
}

type BookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, client_id, coach_id, scheduled_at, duration_min,
	price_amount, price_currency,
	overtime_allowed, overtime_free_min, overtime_paid_max_min, overtime_rate_multiplier,
	created_at, updated_at
`

func scanBooking(row interface{ Scan(dest ...any) error }) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.ClientID,
		&booking.CoachID,
		&booking.ScheduledAt,
		&booking.DurationMinutes,
		&booking.PriceAmount,
		&booking.PriceCurrency,
		&booking.Overtime.Allowed,
		&booking.Overtime.FreeMinutes,
		&booking.Overtime.PaidMaxMinutes,
		&booking.Overtime.RateMultiplier,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (
			client_id, coach_id, scheduled_at, duration_min,
			price_amount, price_currency,
			overtime_allowed, overtime_free_min, overtime_paid_max_min, overtime_rate_multiplier
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + bookingColumns

	return scanBooking(r.db.QueryRow(
		ctx,
		query,
		input.ClientID,
		input.CoachID,
		input.ScheduledAt,
		input.DurationMinutes,
		input.PriceAmount,
		input.PriceCurrency,
		input.Overtime.Allowed,
		input.Overtime.FreeMinutes,
		input.Overtime.PaidMaxMinutes,
		input.Overtime.RateMultiplier,
	))
}

func (r *BookingRepository) GetByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}
