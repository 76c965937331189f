package services

import (
	"context"
	"time"

	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/notify"
)

// Channel is the real-time fan-out the services emit into after commit.
// Emits are fire-and-forget and must never block or fail a transaction.
type Channel interface {
	EmitToRoom(roomID string, event string, payload any)
	EmitToUser(userID int64, event string, payload any)
}

// Notifier delivers asynchronous notifications post-commit. Errors are
// logged by callers and otherwise ignored.
type Notifier interface {
	Send(ctx context.Context, notification notify.Notification) error
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// nowFunc lets tests pin the clock that stamps authorization and
// settlement times.
type nowFunc func() time.Time
