package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CoachLiveBack/internal/gateway"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minOvertimeMinutes = 1
	maxOvertimeMinutes = 120
)

// OvertimeService drives the overtime segment sub-machine: coach request,
// client authorization, and the projected-end recomputation that follows
// a successful hold. Settlement itself lives in the settlement engine.
type OvertimeService struct {
	db           *pgxpool.Pool
	sessionRepo  *repository.SessionRepository
	bookingRepo  *repository.BookingRepository
	segmentRepo  *repository.SegmentRepository
	paymentRepo  *repository.PaymentRepository
	gateway      gateway.PaymentGateway
	channel      Channel
	graceMinutes int
	logger       *zap.Logger
	now          nowFunc
}

func NewOvertimeService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	bookingRepo *repository.BookingRepository,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	gw gateway.PaymentGateway,
	channel Channel,
	graceMinutes int,
	logger *zap.Logger,
) *OvertimeService {
	return &OvertimeService{
		db:           db,
		sessionRepo:  sessionRepo,
		bookingRepo:  bookingRepo,
		segmentRepo:  segmentRepo,
		paymentRepo:  paymentRepo,
		gateway:      gw,
		channel:      channel,
		graceMinutes: graceMinutes,
		logger:       logger,
		now:          time.Now,
	}
}

// Request proposes a paid overtime segment. Rejected while any other
// segment of the session is unresolved, and rejected when the booking's
// paid-minutes cap would be exceeded by the already-authorized segments
// plus this one.
func (s *OvertimeService) Request(
	ctx context.Context,
	coachID int64,
	sessionID int64,
	durationMinutes int,
	maxPrice decimal.Decimal,
) (*models.OvertimeSegment, error) {
	if durationMinutes < minOvertimeMinutes || durationMinutes > maxOvertimeMinutes {
		return nil, ErrInvalidInput
	}
	if maxPrice.IsNegative() {
		return nil, ErrInvalidInput
	}

	var (
		segment *models.OvertimeSegment
		roomID  string
	)
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		segmentRepo := repository.NewSegmentRepository(tx)

		session, err := sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		booking, err := bookingRepo.GetByID(ctx, session.BookingID)
		if err != nil {
			if noRows(err) {
				return ErrRecordInconsistency
			}
			return err
		}
		if booking.CoachID != coachID {
			return ErrUnauthorizedActor
		}
		if session.State != models.SessionInProgress {
			return ErrInvalidStateTransition
		}
		if !booking.Overtime.Allowed {
			return ErrInvalidInput
		}
		if booking.Overtime.PaidMaxMinutes > 0 {
			authorizedMinutes, err := segmentRepo.SumAuthorizedMinutes(ctx, sessionID)
			if err != nil {
				return err
			}
			if authorizedMinutes+durationMinutes > booking.Overtime.PaidMaxMinutes {
				return ErrInvalidInput
			}
		}

		if _, err := segmentRepo.GetPending(ctx, sessionID); err == nil {
			return ErrConflictingOvertimeRequest
		} else if !noRows(err) {
			return err
		}

		segment, err = segmentRepo.Create(ctx, repository.CreateSegmentInput{
			ID:                uuid.NewString(),
			SessionID:         sessionID,
			RequestedDuration: durationMinutes,
			MaxPrice:          maxPrice,
			Currency:          booking.PriceCurrency,
			RequestedAt:       s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if session.RoomID != nil {
			roomID = *session.RoomID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if roomID != "" {
		s.channel.EmitToRoom(roomID, realtime.EventOvertimePrompt, realtime.OvertimePromptPayload{
			SegmentID:          segment.ID,
			RequestedDuration:  segment.RequestedDuration,
			CalculatedMaxPrice: segment.CalculatedMaxPrice.StringFixed(2),
			Currency:           segment.Currency,
		})
	}
	return segment, nil
}

// Decline resolves a requested segment without touching the gateway.
func (s *OvertimeService) Decline(
	ctx context.Context,
	clientID int64,
	sessionID int64,
	segmentID string,
) (*models.OvertimeSegment, error) {
	var (
		segment *models.OvertimeSegment
		roomID  string
	)
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		segmentRepo := repository.NewSegmentRepository(tx)

		session, err := sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		booking, err := bookingRepo.GetByID(ctx, session.BookingID)
		if err != nil {
			return err
		}
		if booking.ClientID != clientID {
			return ErrUnauthorizedActor
		}

		segment, err = segmentRepo.UpdateStatusIfCurrent(ctx, segmentID, models.SegmentRequested, models.SegmentDeclined)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if segment.SessionID != sessionID {
			return ErrRecordInconsistency
		}
		if session.RoomID != nil {
			roomID = *session.RoomID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if roomID != "" {
		s.channel.EmitToRoom(roomID, realtime.EventOvertimeResponse,
			realtime.OvertimeResponsePayload{UserID: clientID, Choice: "declined"})
	}
	return segment, nil
}

// Authorize runs the client's confirmation: the segment moves to
// pending_confirmation, the gateway places the hold, and on success the
// segment is authorized with its hold reference while the projected end
// time of the session grows by the requested duration. A gateway failure
// is recorded as a failed segment inside the same transaction.
func (s *OvertimeService) Authorize(
	ctx context.Context,
	clientID int64,
	sessionID int64,
	segmentID string,
	customerRef string,
) (*models.OvertimeSegment, error) {
	var (
		segment    *models.OvertimeSegment
		roomID     string
		holdRef    string
		newEndTime time.Time
		gatewayErr error
	)
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		segmentRepo := repository.NewSegmentRepository(tx)
		paymentRepo := repository.NewPaymentRepository(tx)

		session, err := sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		booking, err := bookingRepo.GetByID(ctx, session.BookingID)
		if err != nil {
			if noRows(err) {
				return ErrRecordInconsistency
			}
			return err
		}
		if booking.ClientID != clientID {
			return ErrUnauthorizedActor
		}
		if session.State != models.SessionInProgress {
			return ErrInvalidStateTransition
		}

		pending, err := segmentRepo.UpdateStatusIfCurrent(ctx, segmentID, models.SegmentRequested, models.SegmentPendingConfirmation)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if pending.SessionID != sessionID {
			return ErrRecordInconsistency
		}

		auth, err := s.gateway.Authorize(ctx, gateway.AuthorizeInput{
			CustomerRef: customerRef,
			AmountMinor: MinorUnits(pending.CalculatedMaxPrice),
			Currency:    pending.Currency,
			Metadata: map[string]string{
				"session_id": strconv.FormatInt(sessionID, 10),
				"segment_id": segmentID,
				"kind":       models.PaymentKindOvertime,
			},
		})
		if err != nil {
			gatewayErr = err
			if _, uerr := segmentRepo.UpdateStatusIfCurrent(ctx, segmentID, models.SegmentPendingConfirmation, models.SegmentFailed); uerr != nil {
				return uerr
			}
			return nil
		}

		authorizedAt := s.now().UTC()
		segment, err = segmentRepo.MarkAuthorized(ctx, segmentID, auth.HoldRef, authorizedAt)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if _, err := paymentRepo.Create(ctx, repository.CreatePaymentInput{
			BookingID:        booking.ID,
			SegmentID:        &segment.ID,
			UserID:           booking.ClientID,
			CoachID:          booking.CoachID,
			Kind:             models.PaymentKindOvertime,
			Status:           models.PaymentAuthorized,
			AuthorizedAmount: segment.CalculatedMaxPrice,
			Currency:         segment.Currency,
			HoldRef:          &auth.HoldRef,
		}); err != nil {
			return err
		}

		authorizedMinutes, err := segmentRepo.SumAuthorizedMinutes(ctx, sessionID)
		if err != nil {
			return err
		}
		newEndTime = s.ProjectedEnd(booking, authorizedMinutes)

		holdRef = auth.HoldRef
		if session.RoomID != nil {
			roomID = *session.RoomID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if gatewayErr != nil {
		s.logger.Error("overtime authorization failed",
			zap.Int64("session_id", sessionID),
			zap.String("segment_id", segmentID),
			zap.Error(gatewayErr))
		return nil, ErrGatewayCallFailed
	}

	s.logger.Info("overtime segment authorized",
		zap.Int64("session_id", sessionID),
		zap.String("segment_id", segmentID),
		zap.String("hold_ref", holdRef),
		zap.Time("new_end_time", newEndTime),
	)
	if roomID != "" {
		s.channel.EmitToRoom(roomID, realtime.EventOvertimeResponse,
			realtime.OvertimeResponsePayload{UserID: clientID, Choice: "accepted"})
		s.channel.EmitToRoom(roomID, realtime.EventAuthorizationConfirm,
			realtime.AuthorizationConfirmedPayload{HoldRef: holdRef})
		s.channel.EmitToRoom(roomID, realtime.EventSessionContinued,
			realtime.SessionContinuedPayload{NewEndTime: newEndTime})
	}
	return segment, nil
}

// ProjectedEnd recomputes when the session is expected to end: scheduled
// end, plus grace and free overtime, plus every authorized paid segment.
func (s *OvertimeService) ProjectedEnd(booking *models.Booking, authorizedMinutes int) time.Time {
	free := time.Duration(s.graceMinutes+booking.Overtime.FreeMinutes) * time.Minute
	return booking.ScheduledEnd().Add(free + time.Duration(authorizedMinutes)*time.Minute)
}

// PendingSegment exposes the session's current pending segment, the one
// derived query every caller shares.
func (s *OvertimeService) PendingSegment(ctx context.Context, actorID int64, sessionID int64) (*models.OvertimeSegment, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookingRepo.GetByID(ctx, session.BookingID)
	if err != nil {
		return nil, err
	}
	if actorID != booking.ClientID && actorID != booking.CoachID {
		return nil, ErrUnauthorizedActor
	}
	segment, err := s.segmentRepo.GetPending(ctx, sessionID)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return segment, nil
}
