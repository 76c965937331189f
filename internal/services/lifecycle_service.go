package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CoachLiveBack/internal/gateway"
	"github.com/saeid-a/CoachLiveBack/internal/metrics"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/repository"
	"github.com/saeid-a/CoachLiveBack/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LifecycleService owns every session state transition up to the live
// phase: request, accept/decline/cancel, base-payment authorization, join
// handshake. It never mutates state outside a transaction that re-read it.
type LifecycleService struct {
	db          *pgxpool.Pool
	bookingRepo *repository.BookingRepository
	sessionRepo *repository.SessionRepository
	segmentRepo *repository.SegmentRepository
	paymentRepo *repository.PaymentRepository
	userRepo    userReader
	gateway     gateway.PaymentGateway
	channel     Channel
	joinSecret  string
	logger      *zap.Logger
	now         nowFunc
}

func NewLifecycleService(
	db *pgxpool.Pool,
	bookingRepo *repository.BookingRepository,
	sessionRepo *repository.SessionRepository,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	userRepo userReader,
	gw gateway.PaymentGateway,
	channel Channel,
	joinSecret string,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		db:          db,
		bookingRepo: bookingRepo,
		sessionRepo: sessionRepo,
		segmentRepo: segmentRepo,
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		gateway:     gw,
		channel:     channel,
		joinSecret:  joinSecret,
		logger:      logger,
		now:         time.Now,
	}
}

type RequestSessionInput struct {
	CoachID         int64
	ScheduledAt     time.Time
	DurationMinutes int
	PriceAmount     decimal.Decimal
	PriceCurrency   string
	Overtime        models.OvertimePolicy
}

// RequestSession creates the booking and its session record in the
// requested state. The session exists from the first access on.
func (s *LifecycleService) RequestSession(
	ctx context.Context,
	clientID int64,
	input RequestSessionInput,
) (*models.SessionDetail, error) {
	if input.CoachID <= 0 || input.DurationMinutes <= 0 || input.PriceAmount.IsNegative() {
		return nil, ErrInvalidInput
	}
	if clientID == input.CoachID {
		return nil, ErrInvalidInput
	}

	coach, err := s.userRepo.GetByID(ctx, input.CoachID)
	if err != nil {
		if noRows(err) {
			return nil, ErrCoachNotFound
		}
		return nil, err
	}
	if coach.Role != "coach" {
		return nil, ErrInvalidInput
	}

	var detail *models.SessionDetail
	err = runInTx(ctx, s.db, func(tx pgx.Tx) error {
		bookingRepo := repository.NewBookingRepository(tx)
		sessionRepo := repository.NewSessionRepository(tx)

		booking, err := bookingRepo.Create(ctx, repository.CreateBookingInput{
			ClientID:        clientID,
			CoachID:         input.CoachID,
			ScheduledAt:     input.ScheduledAt.UTC(),
			DurationMinutes: input.DurationMinutes,
			PriceAmount:     input.PriceAmount,
			PriceCurrency:   input.PriceCurrency,
			Overtime:        input.Overtime,
		})
		if err != nil {
			return err
		}
		session, err := sessionRepo.Create(ctx, booking.ID)
		if err != nil {
			return err
		}
		detail = &models.SessionDetail{Session: *session, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Accept moves a requested session to accepted, declines every other
// requested session for the same coach in the same transaction, and
// records the placeholder payment for the base charge.
func (s *LifecycleService) Accept(ctx context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error) {
	var detail *models.SessionDetail
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		paymentRepo := repository.NewPaymentRepository(tx)

		_, booking, err := s.loadForUpdate(ctx, sessionRepo, bookingRepo, sessionID)
		if err != nil {
			return err
		}
		if booking.CoachID != coachID {
			return ErrUnauthorizedActor
		}

		updated, err := sessionRepo.UpdateStateIfCurrent(ctx, sessionID, models.SessionRequested, models.SessionAccepted)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if _, err := sessionRepo.DeclineOtherRequested(ctx, coachID, sessionID); err != nil {
			return err
		}
		if _, err := paymentRepo.Create(ctx, repository.CreatePaymentInput{
			BookingID:        booking.ID,
			UserID:           booking.ClientID,
			CoachID:          booking.CoachID,
			Kind:             models.PaymentKindBase,
			Status:           models.PaymentPending,
			AuthorizedAmount: booking.PriceAmount,
			Currency:         booking.PriceCurrency,
		}); err != nil {
			return err
		}

		detail = &models.SessionDetail{Session: *updated, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Decline rejects a requested session, coach side.
func (s *LifecycleService) Decline(ctx context.Context, coachID int64, sessionID int64) (*models.SessionDetail, error) {
	return s.resolveRequested(ctx, sessionID, models.SessionDeclined, func(booking *models.Booking) bool {
		return booking.CoachID == coachID
	})
}

// CancelByClient withdraws a requested session, client side.
func (s *LifecycleService) CancelByClient(ctx context.Context, clientID int64, sessionID int64) (*models.SessionDetail, error) {
	return s.resolveRequested(ctx, sessionID, models.SessionClientCancelled, func(booking *models.Booking) bool {
		return booking.ClientID == clientID
	})
}

func (s *LifecycleService) resolveRequested(
	ctx context.Context,
	sessionID int64,
	nextState models.SessionState,
	authorized func(*models.Booking) bool,
) (*models.SessionDetail, error) {
	var detail *models.SessionDetail
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)

		_, booking, err := s.loadForUpdate(ctx, sessionRepo, bookingRepo, sessionID)
		if err != nil {
			return err
		}
		if !authorized(booking) {
			return ErrUnauthorizedActor
		}
		updated, err := sessionRepo.UpdateStateIfCurrent(ctx, sessionID, models.SessionRequested, nextState)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		detail = &models.SessionDetail{Session: *updated, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// JoinCredential is the opaque pair a participant presents on every
// real-time join attempt.
type JoinCredential struct {
	RoomID string `json:"room_id"`
	Token  string `json:"token"`
}

// AuthorizeBase runs the client's base-payment authorization. On a
// successful hold the session moves accepted → pending_authorization →
// handshake_pending and a signed join credential is issued; a gateway
// failure lands in error_auth_failed with the payment marked failed, in
// the same transaction that recorded the attempt.
func (s *LifecycleService) AuthorizeBase(
	ctx context.Context,
	clientID int64,
	sessionID int64,
	customerRef string,
) (*models.SessionDetail, *JoinCredential, error) {
	var (
		detail     *models.SessionDetail
		credential *JoinCredential
		gatewayErr error
		holdRef    string
		coachID    int64
	)
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)
		paymentRepo := repository.NewPaymentRepository(tx)

		session, booking, err := s.loadForUpdate(ctx, sessionRepo, bookingRepo, sessionID)
		if err != nil {
			return err
		}
		if booking.ClientID != clientID {
			return ErrUnauthorizedActor
		}
		if session.State != models.SessionAccepted {
			return ErrInvalidStateTransition
		}

		if _, err := sessionRepo.UpdateStateIfCurrent(ctx, sessionID, models.SessionAccepted, models.SessionPendingAuthorization); err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		payment, err := paymentRepo.GetBaseByBookingID(ctx, booking.ID)
		if err != nil {
			if noRows(err) {
				return ErrRecordInconsistency
			}
			return err
		}

		auth, err := s.gateway.Authorize(ctx, gateway.AuthorizeInput{
			CustomerRef: customerRef,
			AmountMinor: MinorUnits(booking.PriceAmount),
			Currency:    booking.PriceCurrency,
			Metadata: map[string]string{
				"booking_id": strconv.FormatInt(booking.ID, 10),
				"session_id": strconv.FormatInt(sessionID, 10),
				"kind":       models.PaymentKindBase,
			},
		})
		if err != nil {
			// Record the failed attempt durably, then surface it.
			gatewayErr = err
			if _, uerr := sessionRepo.UpdateStateIfCurrent(ctx, sessionID, models.SessionPendingAuthorization, models.SessionAuthFailed); uerr != nil {
				return uerr
			}
			if _, uerr := paymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentPending, models.PaymentFailed); uerr != nil {
				return uerr
			}
			return nil
		}

		updated, err := sessionRepo.UpdateStateIfCurrent(ctx, sessionID, models.SessionPendingAuthorization, models.SessionHandshakePending)
		if err != nil {
			if noRows(err) {
				return ErrInvalidStateTransition
			}
			return err
		}
		if _, err := paymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentPending, models.PaymentAuthorized); err != nil {
			if noRows(err) {
				return ErrRecordInconsistency
			}
			return err
		}

		roomID := uuid.NewString()
		if err := sessionRepo.SetJoinCredential(ctx, sessionID, roomID); err != nil {
			return err
		}
		updated.RoomID = &roomID

		token, err := utils.GenerateJoinToken(sessionID, roomID, clientID, s.joinSecret)
		if err != nil {
			return err
		}
		credential = &JoinCredential{RoomID: roomID, Token: token}
		detail = &models.SessionDetail{Session: *updated, Booking: booking}
		holdRef = auth.HoldRef
		coachID = booking.CoachID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if gatewayErr != nil {
		s.logger.Error("base payment authorization failed",
			zap.Int64("session_id", sessionID), zap.Error(gatewayErr))
		return nil, nil, ErrGatewayCallFailed
	}

	s.logger.Info("base payment authorized",
		zap.Int64("session_id", sessionID),
		zap.String("hold_ref", holdRef),
	)
	s.channel.EmitToUser(coachID, realtime.EventAuthorizationConfirm,
		realtime.AuthorizationConfirmedPayload{HoldRef: holdRef})
	return detail, credential, nil
}

// CredentialFor re-issues the join credential for a participant of a
// session whose link record is still valid.
func (s *LifecycleService) CredentialFor(ctx context.Context, actorID int64, sessionID int64) (*JoinCredential, error) {
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
	if session.RoomID == nil || session.JoinTokenExpired {
		return nil, ErrInvalidStateTransition
	}
	token, err := utils.GenerateJoinToken(sessionID, *session.RoomID, actorID, s.joinSecret)
	if err != nil {
		return nil, err
	}
	return &JoinCredential{RoomID: *session.RoomID, Token: token}, nil
}

// ValidateJoin checks a presented credential against the session's current
// link record and confirms the actor is a participant.
func (s *LifecycleService) ValidateJoin(ctx context.Context, actorID int64, token string) (*models.Session, error) {
	claims, err := utils.ValidateJoinToken(token, s.joinSecret)
	if err != nil {
		return nil, ErrUnauthorizedActor
	}
	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.RoomID == nil || *session.RoomID != claims.RoomID || session.JoinTokenExpired {
		return nil, ErrUnauthorizedActor
	}
	booking, err := s.bookingRepo.GetByID(ctx, session.BookingID)
	if err != nil {
		return nil, err
	}
	if actorID != booking.ClientID && actorID != booking.CoachID {
		return nil, ErrUnauthorizedActor
	}
	return session, nil
}

// Join records a participant's presence. When the second participant
// arrives while the session is handshake_pending, the session becomes
// authoritatively live and the actual start time is stamped.
func (s *LifecycleService) Join(ctx context.Context, actorID int64, sessionID int64) (*models.Session, error) {
	var (
		result   *models.Session
		wentLive bool
	)
	err := runInTx(ctx, s.db, func(tx pgx.Tx) error {
		wentLive = false
		sessionRepo := repository.NewSessionRepository(tx)
		bookingRepo := repository.NewBookingRepository(tx)

		session, booking, err := s.loadForUpdate(ctx, sessionRepo, bookingRepo, sessionID)
		if err != nil {
			return err
		}
		if actorID != booking.ClientID && actorID != booking.CoachID {
			return ErrUnauthorizedActor
		}
		if session.State != models.SessionHandshakePending && session.State != models.SessionInProgress {
			return ErrInvalidStateTransition
		}

		if err := sessionRepo.RecordJoin(ctx, sessionID, actorID, s.now().UTC()); err != nil {
			return err
		}

		result = session
		if session.State == models.SessionHandshakePending {
			present, err := sessionRepo.CountPresent(ctx, sessionID)
			if err != nil {
				return err
			}
			if present >= 2 {
				live, err := sessionRepo.MarkLive(ctx, sessionID, s.now().UTC())
				if err != nil {
					if noRows(err) {
						return ErrInvalidStateTransition
					}
					return err
				}
				result = live
				wentLive = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wentLive {
		metrics.LiveSessions.Inc()
		s.logger.Info("session live after dual-presence handshake",
			zap.Int64("session_id", sessionID))
	}
	if result.RoomID != nil {
		s.channel.EmitToRoom(*result.RoomID, realtime.EventParticipantJoined,
			realtime.ParticipantPayload{UserID: actorID})
	}
	return result, nil
}

// GetSession returns the full detail visible to a participant.
func (s *LifecycleService) GetSession(ctx context.Context, actorID int64, sessionID int64) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookingRepo.GetByID(ctx, session.BookingID)
	if err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}
	if actorID != booking.ClientID && actorID != booking.CoachID {
		return nil, ErrUnauthorizedActor
	}

	participants, err := s.sessionRepo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	segments, err := s.segmentRepo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	return &models.SessionDetail{
		Session:      *session,
		Booking:      booking,
		Participants: participants,
		Segments:     segments,
		Payments:     payments,
	}, nil
}

// ListSessions lists the actor's sessions, optionally filtered by state.
func (s *LifecycleService) ListSessions(ctx context.Context, actorID int64, role string, state string) ([]models.Session, error) {
	return s.sessionRepo.List(ctx, repository.SessionListFilter{
		ActorID: actorID,
		Role:    role,
		State:   state,
	})
}

func (s *LifecycleService) loadForUpdate(
	ctx context.Context,
	sessionRepo *repository.SessionRepository,
	bookingRepo *repository.BookingRepository,
	sessionID int64,
) (*models.Session, *models.Booking, error) {
	session, err := sessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	booking, err := bookingRepo.GetByID(ctx, session.BookingID)
	if err != nil {
		if noRows(err) {
			return nil, nil, ErrRecordInconsistency
		}
		return nil, nil, err
	}
	return session, booking, nil
}
