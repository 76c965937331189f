package realtime

import "time"

// Event names produced by the session billing core.
const (
	EventSessionEnded          = "session-ended"
	EventSessionContinued      = "session-continued"
	EventOvertimePrompt        = "overtime-prompt"
	EventOvertimeResponse      = "overtime-response"
	EventAuthorizationConfirm  = "authorization-confirmed"
	EventParticipantJoined     = "participant-joined"
	EventParticipantLeftSignal = "participant-left"
	EventRoomPresence          = "room-presence"
)

type SessionEndedPayload struct {
	EndedBy       string    `json:"ended_by"`
	Timestamp     time.Time `json:"timestamp"`
	IsCompleted   bool      `json:"is_completed"`
	Reason        string    `json:"reason"`
	CaptureStatus string    `json:"capture_status,omitempty"`
}

type SessionContinuedPayload struct {
	NewEndTime time.Time `json:"new_end_time"`
}

type OvertimePromptPayload struct {
	SegmentID          string `json:"segment_id"`
	RequestedDuration  int    `json:"requested_duration_minutes"`
	CalculatedMaxPrice string `json:"calculated_max_price"`
	Currency           string `json:"currency"`
}

type OvertimeResponsePayload struct {
	UserID int64  `json:"user_id"`
	Choice string `json:"choice"`
}

type AuthorizationConfirmedPayload struct {
	HoldRef string `json:"hold_ref"`
}

type ParticipantPayload struct {
	UserID int64 `json:"user_id"`
}

// RoomPresencePayload is the snapshot a freshly joined participant
// receives so it does not have to replay join events.
type RoomPresencePayload struct {
	UserIDs []int64 `json:"user_ids"`
}
