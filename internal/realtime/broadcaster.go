package realtime

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pubsubChannel = "live-session-events"

// Broadcaster is the real-time channel the billing core emits into. When
// a Redis client is configured every emit goes through pub/sub so clients
// connected to other instances see it too; without Redis it degrades to
// local-only delivery.
type Broadcaster struct {
	hub    *Hub
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBroadcaster(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, rdb: rdb, logger: logger}
}

func (b *Broadcaster) EmitToRoom(roomID string, event string, payload any) {
	b.emit(roomID, "", event, payload)
}

func (b *Broadcaster) EmitToUser(userID int64, event string, payload any) {
	b.emit("", strconv.FormatInt(userID, 10), event, payload)
}

func (b *Broadcaster) emit(roomID, userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("realtime emit encode", zap.String("event", event), zap.Error(err))
		return
	}

	if b.rdb == nil {
		b.hub.Deliver(roomID, userID, event, data)
		return
	}

	wire, err := json.Marshal(envelope{RoomID: roomID, UserID: userID, Event: event, Data: data})
	if err != nil {
		b.logger.Error("realtime emit encode envelope", zap.String("event", event), zap.Error(err))
		return
	}
	if err := b.rdb.Publish(context.Background(), pubsubChannel, wire).Err(); err != nil {
		// Best effort: fall back to local delivery so the emitting
		// instance's clients still hear the event.
		b.logger.Warn("realtime publish failed, delivering locally",
			zap.String("event", event), zap.Error(err))
		b.hub.Deliver(roomID, userID, event, data)
	}
}

// Subscribe pumps pub/sub messages into the local hub. Blocks until ctx
// is cancelled; run it in its own goroutine next to Hub.Run.
func (b *Broadcaster) Subscribe(ctx context.Context) {
	if b.rdb == nil {
		return
	}
	sub := b.rdb.Subscribe(ctx, pubsubChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event envelope
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("realtime subscribe decode", zap.Error(err))
				continue
			}
			b.hub.Deliver(event.RoomID, event.UserID, event.Event, event.Data)
		}
	}
}
