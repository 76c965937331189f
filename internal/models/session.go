package models

import "time"

// SessionState is the lifecycle state of a live session record.
type SessionState string

const (
	SessionRequested            SessionState = "requested"
	SessionAccepted             SessionState = "accepted"
	SessionDeclined             SessionState = "declined"
	SessionClientCancelled      SessionState = "client_cancelled"
	SessionPendingAuthorization SessionState = "pending_authorization"
	SessionHandshakePending     SessionState = "handshake_pending"
	SessionAuthFailed           SessionState = "error_auth_failed"
	SessionInProgress           SessionState = "in_progress"
	SessionCompleted            SessionState = "completed"
	SessionCompletedPayFailed   SessionState = "completed_payment_failed"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionRequested:            {SessionAccepted, SessionDeclined, SessionClientCancelled},
	SessionAccepted:             {SessionPendingAuthorization},
	SessionPendingAuthorization: {SessionHandshakePending, SessionAuthFailed},
	SessionHandshakePending:     {SessionInProgress},
	SessionInProgress:           {SessionCompleted, SessionCompletedPayFailed},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal states allow no further transitions.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session can never change state again.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionDeclined, SessionClientCancelled, SessionAuthFailed,
		SessionCompleted, SessionCompletedPayFailed:
		return true
	}
	return false
}

// Participant records one party's presence window in the session room.
type Participant struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"session_id"`
	UserID    int64      `json:"user_id"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// Session is the live-execution record for a booking. Exactly one exists
// per booking; it is retained forever as history.
type Session struct {
	ID                int64        `json:"id"`
	BookingID         int64        `json:"booking_id"`
	State             SessionState `json:"state"`
	RoomID            *string      `json:"room_id,omitempty"`
	JoinTokenExpired  bool         `json:"-"`
	ActualStartTime   *time.Time   `json:"actual_start_time,omitempty"`
	ActualEndTime     *time.Time   `json:"actual_end_time,omitempty"`
	TerminationReason *string      `json:"termination_reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// SessionDetail bundles a session with its booking, participants and the
// records created while billing it.
type SessionDetail struct {
	Session
	Booking      *Booking          `json:"booking,omitempty"`
	Participants []Participant     `json:"participants,omitempty"`
	Segments     []OvertimeSegment `json:"overtime_segments,omitempty"`
	Payments     []Payment         `json:"payments,omitempty"`
}
