package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saeid-a/CoachLiveBack/internal/models"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, booking_id, state, room_id, join_token_expired,
	actual_start_time, actual_end_time, termination_reason,
	created_at, updated_at
`

func scanSession(row interface{ Scan(dest ...any) error }) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.BookingID,
		&session.State,
		&session.RoomID,
		&session.JoinTokenExpired,
		&session.ActualStartTime,
		&session.ActualEndTime,
		&session.TerminationReason,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Create(ctx context.Context, bookingID int64) (*models.Session, error) {
	query := `
		INSERT INTO sessions (booking_id, state)
		VALUES ($1, 'requested')
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, bookingID))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// GetByIDForUpdate locks the session row for the rest of the transaction.
// Every terminating path re-reads through this before deciding anything.
func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

type SessionListFilter struct {
	ActorID int64
	Role    string
	State   string
}

func (r *SessionRepository) List(ctx context.Context, filter SessionListFilter) ([]models.Session, error) {
	actorColumn := "b.client_id"
	if filter.Role == "coach" {
		actorColumn = "b.coach_id"
	}

	args := []any{filter.ActorID}
	whereParts := []string{fmt.Sprintf("%s = $1", actorColumn)}
	if state := strings.TrimSpace(filter.State); state != "" {
		args = append(args, state)
		whereParts = append(whereParts, fmt.Sprintf("s.state = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.booking_id, s.state, s.room_id, s.join_token_expired,
		       s.actual_start_time, s.actual_end_time, s.termination_reason,
		       s.created_at, s.updated_at
		FROM sessions s
		JOIN bookings b ON b.id = s.booking_id
		WHERE %s
		ORDER BY b.scheduled_at ASC, s.id ASC
	`, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateStateIfCurrent is the compare-and-set primitive behind every
// lifecycle transition. It returns pgx.ErrNoRows when the session is no
// longer in currentState.
func (r *SessionRepository) UpdateStateIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentState models.SessionState,
	nextState models.SessionState,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET state = $3, updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentState, nextState))
}

// DeclineOtherRequested resolves the first-accept-wins race: accepting one
// request declines every other requested session for the same coach.
func (r *SessionRepository) DeclineOtherRequested(
	ctx context.Context,
	coachID int64,
	acceptedSessionID int64,
) (int64, error) {
	query := `
		UPDATE sessions s
		SET state = 'declined', updated_at = NOW()
		FROM bookings b
		WHERE b.id = s.booking_id
		  AND b.coach_id = $1
		  AND s.id <> $2
		  AND s.state = 'requested'
	`
	tag, err := r.db.Exec(ctx, query, coachID, acceptedSessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) SetJoinCredential(ctx context.Context, sessionID int64, roomID string) error {
	query := `
		UPDATE sessions
		SET room_id = $2, join_token_expired = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, sessionID, roomID)
	return err
}

// ExpireJoinCredential revokes the session's join token. Termination runs
// this alongside MarkEnded so a stale credential can never re-enter a
// room that no longer exists.
func (r *SessionRepository) ExpireJoinCredential(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE sessions
		SET join_token_expired = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, sessionID)
	return err
}

func (r *SessionRepository) MarkLive(ctx context.Context, sessionID int64, startedAt time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET state = 'in_progress', actual_start_time = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'handshake_pending'
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, startedAt))
}

func (r *SessionRepository) MarkEnded(
	ctx context.Context,
	sessionID int64,
	nextState models.SessionState,
	endedAt time.Time,
	reason string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET state = $2, actual_end_time = $3, termination_reason = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'in_progress'
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, nextState, endedAt, reason))
}

func (r *SessionRepository) RecordJoin(
	ctx context.Context,
	sessionID int64,
	userID int64,
	joinedAt time.Time,
) error {
	query := `
		INSERT INTO session_participants (session_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET joined_at = EXCLUDED.joined_at, left_at = NULL
	`
	_, err := r.db.Exec(ctx, query, sessionID, userID, joinedAt)
	return err
}

func (r *SessionRepository) RecordLeave(
	ctx context.Context,
	sessionID int64,
	userID int64,
	leftAt time.Time,
) error {
	query := `
		UPDATE session_participants
		SET left_at = $3
		WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, sessionID, userID, leftAt)
	return err
}

func (r *SessionRepository) RecordLeaveAll(ctx context.Context, sessionID int64, leftAt time.Time) error {
	query := `
		UPDATE session_participants
		SET left_at = $2
		WHERE session_id = $1 AND left_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, sessionID, leftAt)
	return err
}

func (r *SessionRepository) CountPresent(ctx context.Context, sessionID int64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM session_participants
		WHERE session_id = $1 AND left_at IS NULL
	`
	var count int
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) ListParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error) {
	query := `
		SELECT id, session_id, user_id, joined_at, left_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}
