package repository

import (
	"context"

	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/shopspring/decimal"
)

type CreatePaymentInput struct {
	BookingID        int64
	SegmentID        *string
	UserID           int64
	CoachID          int64
	Kind             string
	Status           models.PaymentStatus
	AuthorizedAmount decimal.Decimal
	Currency         string
	HoldRef          *string
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, segment_id, user_id, coach_id, kind, status,
	authorized_amount, captured_amount, currency,
	hold_ref, charge_ref, error, created_at, updated_at
`

func scanPayment(row interface{ Scan(dest ...any) error }) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.SegmentID,
		&payment.UserID,
		&payment.CoachID,
		&payment.Kind,
		&payment.Status,
		&payment.AuthorizedAmount,
		&payment.CapturedAmount,
		&payment.Currency,
		&payment.HoldRef,
		&payment.ChargeRef,
		&payment.Error,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (
			booking_id, segment_id, user_id, coach_id, kind, status,
			authorized_amount, currency, hold_ref
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(
		ctx,
		query,
		input.BookingID,
		input.SegmentID,
		input.UserID,
		input.CoachID,
		input.Kind,
		input.Status,
		input.AuthorizedAmount,
		input.Currency,
		input.HoldRef,
	))
}

func (r *PaymentRepository) GetBaseByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND kind = 'base'
		ORDER BY id DESC
		LIMIT 1
	`
	return scanPayment(r.db.QueryRow(ctx, query, bookingID))
}

func (r *PaymentRepository) GetBySegmentIDForUpdate(ctx context.Context, segmentID string) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE segment_id = $1
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`
	return scanPayment(r.db.QueryRow(ctx, query, segmentID))
}

func (r *PaymentRepository) ListByBookingID(ctx context.Context, bookingID int64) ([]models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	paymentID int64,
	currentStatus models.PaymentStatus,
	nextStatus models.PaymentStatus,
) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, currentStatus, nextStatus))
}

// RecordSettlement moves an authorized payment to its settled state in
// lockstep with the owning segment. The status filter keeps the payment
// and segment rows agreeing on which of not-settled / settled-success /
// settled-failure they represent.
func (r *PaymentRepository) RecordSettlement(
	ctx context.Context,
	paymentID int64,
	nextStatus models.PaymentStatus,
	capturedAmount decimal.Decimal,
	chargeRef *string,
	settleErr *string,
) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, captured_amount = $3, charge_ref = $4, error = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'authorized'
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, nextStatus, capturedAmount, chargeRef, settleErr))
}
