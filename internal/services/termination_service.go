package services

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CoachLiveBack/internal/metrics"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/notify"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/repository"
	"go.uber.org/zap"
)

// Termination triggers. Four independent entry points converge on the
// same guarded finalize path.
const (
	TriggerExplicitEnd  = "explicit_end"
	TriggerPeerReported = "peer_disconnect_reported"
	TriggerDisconnect   = "transport_disconnect"
	TriggerLeave        = "leave_signal"
)

// presenceEvictor clears live connection state for a room after the
// session is durably over.
type presenceEvictor interface {
	Evict(roomID string)
}

// TerminationResult describes what a termination attempt actually did.
// Performed is false when the guard observed a terminal or already
// finalized state and the call aborted as a clean no-op; Deferred is true
// when termination was postponed because an overtime request was still
// mid-flight.
type TerminationResult struct {
	Session    *models.Session
	Settlement *SettlementResult
	Performed  bool
	Deferred   bool
}

// TerminationService reconciles every way a session can end into a single
// transactional finalize: idempotency guard, settlement, state flip, and
// post-commit fan-out.
type TerminationService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	bookingRepo *repository.BookingRepository
	segmentRepo *repository.SegmentRepository
	paymentRepo *repository.PaymentRepository
	engine      *SettlementEngine
	channel     Channel
	notifier    Notifier
	presence    presenceEvictor
	logger      *zap.Logger
	now         nowFunc
}

func NewTerminationService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	bookingRepo *repository.BookingRepository,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	engine *SettlementEngine,
	channel Channel,
	notifier Notifier,
	presence presenceEvictor,
	logger *zap.Logger,
) *TerminationService {
	return &TerminationService{
		db:          db,
		sessionRepo: sessionRepo,
		bookingRepo: bookingRepo,
		segmentRepo: segmentRepo,
		paymentRepo: paymentRepo,
		engine:      engine,
		channel:     channel,
		notifier:    notifier,
		presence:    presence,
		logger:      logger,
		now:         time.Now,
	}
}

// EndSession is the explicit termination request. Only the coach, as the
// session's designated terminator, may call it; it always attempts
// settlement first.
func (s *TerminationService) EndSession(ctx context.Context, actorID int64, sessionID int64, reason string) (*TerminationResult, error) {
	if reason == "" {
		reason = "ended by coach"
	}
	return s.finalize(ctx, sessionID, actorID, reason, finalizeOptions{
		trigger: TriggerExplicitEnd,
		authorize: func(booking *models.Booking) bool {
			return booking.CoachID == actorID
		},
		strict: true,
	})
}

// ReportPeerDisconnect lets one participant report that the other peer
// vanished; it triggers the same authoritative end.
func (s *TerminationService) ReportPeerDisconnect(ctx context.Context, actorID int64, sessionID int64) (*TerminationResult, error) {
	return s.finalize(ctx, sessionID, actorID, "peer disconnected", finalizeOptions{
		trigger: TriggerPeerReported,
		authorize: func(booking *models.Booking) bool {
			return booking.ClientID == actorID || booking.CoachID == actorID
		},
	})
}

// HandleDisconnect reacts to the transport noticing a dropped connection.
// Only the billable party's disconnect ends the session, and never while
// an overtime request is still mid-flight.
func (s *TerminationService) HandleDisconnect(ctx context.Context, userID int64, sessionID int64) (*TerminationResult, error) {
	return s.passiveSignal(ctx, userID, sessionID, "client disconnected", TriggerDisconnect)
}

// HandleLeave reacts to an explicit client leave signal, with the same
// guard as a transport disconnect.
func (s *TerminationService) HandleLeave(ctx context.Context, userID int64, sessionID int64) (*TerminationResult, error) {
	return s.passiveSignal(ctx, userID, sessionID, "client left the session", TriggerLeave)
}

func (s *TerminationService) passiveSignal(ctx context.Context, userID int64, sessionID int64, reason, trigger string) (*TerminationResult, error) {
	return s.finalize(ctx, sessionID, userID, reason, finalizeOptions{
		trigger: trigger,
		authorize: func(booking *models.Booking) bool {
			return booking.ClientID == userID || booking.CoachID == userID
		},
		onlyWhenBillableParty: true,
		deferWhilePending:     true,
	})
}

type finalizeOptions struct {
	trigger   string
	authorize func(*models.Booking) bool
	// strict surfaces ErrInvalidStateTransition instead of a silent no-op
	// when the session was never live. Explicit ends are strict; passive
	// signals are not.
	strict bool
	// onlyWhenBillableParty restricts termination to the client's own
	// signal; the coach dropping does not end the meter.
	onlyWhenBillableParty bool
	// deferWhilePending postpones termination while a segment is
	// requested or pending_confirmation, so settlement never runs against
	// an incomplete authorization.
	deferWhilePending bool
}

// finalize is the single guarded termination path every trigger converges
// on: re-read inside a fresh transaction, settle at most once, flip the
// state, then fan out strictly after commit.
func (s *TerminationService) finalize(
	ctx context.Context,
	sessionID int64,
	actorID int64,
	reason string,
	opts finalizeOptions,
) (*TerminationResult, error) {
	var (
		result  TerminationResult
		booking *models.Booking
		roomID  string
	)

	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		// Reset per attempt; runInTx may re-run this closure.
		result = TerminationResult{}

		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		segmentRepo := repository.NewSegmentRepository(tx)
		paymentRepo := repository.NewPaymentRepository(tx)

		session, err := sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		b, err := bookingRepo.GetByID(ctx, session.BookingID)
		if err != nil {
			if noRows(err) {
				return ErrRecordInconsistency
			}
			return err
		}
		booking = b
		if session.RoomID != nil {
			roomID = *session.RoomID
		}

		if opts.authorize != nil && !opts.authorize(booking) {
			return ErrUnauthorizedActor
		}
		if opts.onlyWhenBillableParty && actorID != booking.ClientID {
			// Record the coach's absence but keep the session alive.
			result.Session = session
			return sessionRepo.RecordLeave(ctx, sessionID, actorID, s.now().UTC())
		}

		if session.State.IsTerminal() {
			// Another trigger already won; clean no-op.
			result.Session = session
			return nil
		}
		if session.State != models.SessionInProgress {
			if opts.strict {
				return ErrInvalidStateTransition
			}
			result.Session = session
			return nil
		}

		pending, err := segmentRepo.GetPending(ctx, sessionID)
		if err != nil && !noRows(err) {
			return err
		}
		if pending != nil && pending.Status != models.SegmentAuthorized {
			if opts.deferWhilePending {
				result.Session = session
				result.Deferred = true
				return nil
			}
			// Explicit termination closes out the unconfirmed request so
			// no non-terminal segment survives the session.
			closing := models.SegmentDeclined
			if pending.Status == models.SegmentPendingConfirmation {
				closing = models.SegmentFailed
			}
			if _, err := segmentRepo.UpdateStatusIfCurrent(ctx, pending.ID, pending.Status, closing); err != nil && !noRows(err) {
				return err
			}
		}

		endedAt := s.now().UTC()
		nextState := models.SessionCompleted

		segment, err := segmentRepo.GetSettleableForUpdate(ctx, sessionID)
		if err != nil && !noRows(err) {
			return err
		}
		if segment != nil {
			settlement, err := s.engine.Settle(ctx, segmentRepo, paymentRepo, segment, endedAt)
			if err != nil {
				return err
			}
			result.Settlement = settlement
			if settlement.GatewayErr != nil {
				nextState = models.SessionCompletedPayFailed
			}
		}

		if err := sessionRepo.ExpireJoinCredential(ctx, sessionID); err != nil {
			return err
		}
		ended, err := sessionRepo.MarkEnded(ctx, sessionID, nextState, endedAt, reason)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if err := sessionRepo.RecordLeaveAll(ctx, sessionID, endedAt); err != nil {
			return err
		}

		result.Session = ended
		result.Performed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Performed {
		s.afterTermination(ctx, &result, booking, roomID, actorID, reason, opts.trigger)
	}
	return &result, nil
}

// afterTermination runs the non-transactional side effects: room
// broadcast, notifications, metrics, presence eviction. Strictly
// post-commit, never rolled back.
func (s *TerminationService) afterTermination(
	ctx context.Context,
	result *TerminationResult,
	booking *models.Booking,
	roomID string,
	actorID int64,
	reason string,
	trigger string,
) {
	session := result.Session
	captureStatus := ""
	if result.Settlement != nil && result.Settlement.Segment.CaptureStatus != nil {
		captureStatus = *result.Settlement.Segment.CaptureStatus
	}

	s.logger.Info("session terminated",
		zap.Int64("session_id", session.ID),
		zap.String("trigger", trigger),
		zap.String("state", string(session.State)),
		zap.String("capture_status", captureStatus),
	)
	metrics.TerminationsTotal.WithLabelValues(trigger).Inc()
	metrics.LiveSessions.Dec()

	if roomID != "" {
		s.channel.EmitToRoom(roomID, realtime.EventSessionEnded, realtime.SessionEndedPayload{
			EndedBy:       strconv.FormatInt(actorID, 10),
			Timestamp:     *session.ActualEndTime,
			IsCompleted:   session.State == models.SessionCompleted,
			Reason:        reason,
			CaptureStatus: captureStatus,
		})
		if s.presence != nil {
			s.presence.Evict(roomID)
		}
	}

	meta := map[string]string{
		"session_id": strconv.FormatInt(session.ID, 10),
		"reason":     reason,
	}
	s.sendNotification(ctx, notify.TypeSessionEndedClient, booking.ClientID, meta)
	s.sendNotification(ctx, notify.TypeSessionEndedCoach, booking.CoachID, meta)

	if result.Settlement == nil {
		return
	}
	settlement := result.Settlement
	metrics.SettlementsTotal.WithLabelValues(string(settlement.Plan.Action)).Inc()

	settleMeta := map[string]string{
		"session_id":   strconv.FormatInt(session.ID, 10),
		"segment_id":   settlement.Segment.ID,
		"used_minutes": strconv.Itoa(settlement.Plan.UsedMinutes),
		"amount":       settlement.Plan.Amount.StringFixed(2),
		"currency":     settlement.Segment.Currency,
	}
	switch {
	case settlement.GatewayErr != nil:
		s.sendNotification(ctx, notify.TypeOvertimeCaptureFailed, booking.ClientID, settleMeta)
		s.sendNotification(ctx, notify.TypeOvertimeCaptureFailed, booking.CoachID, settleMeta)
	case settlement.Plan.Action == ActionRelease:
		s.sendNotification(ctx, notify.TypeOvertimeReleased, booking.ClientID, settleMeta)
		s.sendNotification(ctx, notify.TypeOvertimeReleased, booking.CoachID, settleMeta)
	default:
		s.sendNotification(ctx, notify.TypeOvertimeCaptured, booking.ClientID, settleMeta)
		s.sendNotification(ctx, notify.TypeOvertimeCollected, booking.CoachID, settleMeta)
	}
}

func (s *TerminationService) sendNotification(ctx context.Context, kind string, recipient int64, meta map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notify.Notification{
		Type:      kind,
		Recipient: recipient,
		Metadata:  meta,
	}); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("type", kind),
			zap.Int64("recipient", recipient),
			zap.Error(err))
	}
}
