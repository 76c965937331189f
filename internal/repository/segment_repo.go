package repository

import (
	"context"
	"time"

	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/shopspring/decimal"
)

type SegmentRepository struct {
	db DBTX
}

func NewSegmentRepository(db DBTX) *SegmentRepository {
	return &SegmentRepository{db: db}
}

const segmentColumns = `
	id, session_id, status, requested_duration_min,
	max_price_amount, max_price_currency, payment_hold_ref,
	requested_at, authorized_at, finalized_at,
	capture_status, captured_amount, charge_ref, capture_error
`

func scanSegment(row interface{ Scan(dest ...any) error }) (*models.OvertimeSegment, error) {
	var segment models.OvertimeSegment
	err := row.Scan(
		&segment.ID,
		&segment.SessionID,
		&segment.Status,
		&segment.RequestedDuration,
		&segment.CalculatedMaxPrice,
		&segment.Currency,
		&segment.PaymentHoldRef,
		&segment.RequestedAt,
		&segment.AuthorizedAt,
		&segment.FinalizedAt,
		&segment.CaptureStatus,
		&segment.CapturedAmount,
		&segment.ChargeRef,
		&segment.CaptureError,
	)
	if err != nil {
		return nil, err
	}
	return &segment, nil
}

type CreateSegmentInput struct {
	ID                string
	SessionID         int64
	RequestedDuration int
	MaxPrice          decimal.Decimal
	Currency          string
	RequestedAt       time.Time
}

func (r *SegmentRepository) Create(ctx context.Context, input CreateSegmentInput) (*models.OvertimeSegment, error) {
	query := `
		INSERT INTO overtime_segments (
			id, session_id, status, requested_duration_min,
			max_price_amount, max_price_currency, requested_at
		)
		VALUES ($1, $2, 'requested', $3, $4, $5, $6)
		RETURNING ` + segmentColumns
	return scanSegment(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.SessionID,
		input.RequestedDuration,
		input.MaxPrice,
		input.Currency,
		input.RequestedAt,
	))
}

func (r *SegmentRepository) GetByID(ctx context.Context, segmentID string) (*models.OvertimeSegment, error) {
	query := `SELECT ` + segmentColumns + ` FROM overtime_segments WHERE id = $1`
	return scanSegment(r.db.QueryRow(ctx, query, segmentID))
}

// GetPending is the single implementation of "the session's current
// pending segment": the most recent segment that is still requested,
// awaiting confirmation, or authorized but not yet finalized. Returns
// pgx.ErrNoRows when every segment is resolved.
func (r *SegmentRepository) GetPending(ctx context.Context, sessionID int64) (*models.OvertimeSegment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM overtime_segments
		WHERE session_id = $1
		  AND (
			status IN ('requested', 'pending_confirmation')
			OR (status = 'authorized' AND finalized_at IS NULL)
		  )
		ORDER BY requested_at DESC
		LIMIT 1
	`
	return scanSegment(r.db.QueryRow(ctx, query, sessionID))
}

// GetSettleableForUpdate locks the most recent authorized, unfinalized
// segment. This is the settlement eligibility read of the idempotency
// guard; once finalized_at is stamped the segment can never match again.
func (r *SegmentRepository) GetSettleableForUpdate(ctx context.Context, sessionID int64) (*models.OvertimeSegment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM overtime_segments
		WHERE session_id = $1
		  AND status = 'authorized'
		  AND finalized_at IS NULL
		ORDER BY authorized_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return scanSegment(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SegmentRepository) ListBySessionID(ctx context.Context, sessionID int64) ([]models.OvertimeSegment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM overtime_segments
		WHERE session_id = $1
		ORDER BY requested_at ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := make([]models.OvertimeSegment, 0)
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *segment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

// UpdateStatusIfCurrent advances the segment sub-machine with an explicit
// identity-and-status filter, never a blind overwrite.
func (r *SegmentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	segmentID string,
	currentStatus models.SegmentStatus,
	nextStatus models.SegmentStatus,
) (*models.OvertimeSegment, error) {
	query := `
		UPDATE overtime_segments
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + segmentColumns
	return scanSegment(r.db.QueryRow(ctx, query, segmentID, currentStatus, nextStatus))
}

func (r *SegmentRepository) MarkAuthorized(
	ctx context.Context,
	segmentID string,
	holdRef string,
	authorizedAt time.Time,
) (*models.OvertimeSegment, error) {
	query := `
		UPDATE overtime_segments
		SET status = 'authorized', payment_hold_ref = $2, authorized_at = $3
		WHERE id = $1 AND status = 'pending_confirmation'
		RETURNING ` + segmentColumns
	return scanSegment(r.db.QueryRow(ctx, query, segmentID, holdRef, authorizedAt))
}

// Finalize stamps the settlement result. The WHERE clause targets the
// segment by identity and requires it to still be authorized and
// unfinalized, so a second finalize attempt matches zero rows.
func (r *SegmentRepository) Finalize(
	ctx context.Context,
	segmentID string,
	nextStatus models.SegmentStatus,
	result models.CaptureResult,
	finalizedAt time.Time,
) (*models.OvertimeSegment, error) {
	query := `
		UPDATE overtime_segments
		SET status = $2,
		    finalized_at = $3,
		    capture_status = $4,
		    captured_amount = $5,
		    charge_ref = $6,
		    capture_error = $7
		WHERE id = $1 AND status = 'authorized' AND finalized_at IS NULL
		RETURNING ` + segmentColumns
	return scanSegment(r.db.QueryRow(
		ctx,
		query,
		segmentID,
		nextStatus,
		finalizedAt,
		result.Status,
		result.CapturedAmount,
		result.ChargeRef,
		result.Error,
	))
}

// SumAuthorizedMinutes totals the requested minutes across segments that
// reached authorization, used when projecting the session's end time.
func (r *SegmentRepository) SumAuthorizedMinutes(ctx context.Context, sessionID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(requested_duration_min), 0)
		FROM overtime_segments
		WHERE session_id = $1 AND authorized_at IS NOT NULL
	`
	var minutes int
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}
