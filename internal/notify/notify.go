// Package notify dispatches asynchronous user notifications through a
// durable RabbitMQ queue. Dispatch is strictly post-commit and
// fire-and-forget: failures are logged and never propagate into the
// operation that produced them.
package notify

import "context"

// Notification types produced by the billing core.
const (
	TypeOvertimeCaptured      = "overtime_captured"
	TypeOvertimeCollected     = "overtime_collected"
	TypeOvertimeReleased      = "overtime_released"
	TypeOvertimeCaptureFailed = "overtime_capture_failed"
	TypeSessionEndedClient    = "session_ended_client"
	TypeSessionEndedCoach     = "session_ended_coach"
)

type Notification struct {
	Type      string            `json:"type"`
	Recipient int64             `json:"recipient"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Dispatcher delivers notifications to the notification subsystem.
type Dispatcher interface {
	Send(ctx context.Context, notification Notification) error
}
