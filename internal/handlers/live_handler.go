package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/realtime"
	"github.com/saeid-a/CoachLiveBack/internal/services"
	"github.com/saeid-a/CoachLiveBack/pkg/utils"
	"go.uber.org/zap"
)

type liveLifecycle interface {
	ValidateJoin(ctx context.Context, actorID int64, token string) (*models.Session, error)
	Join(ctx context.Context, actorID int64, sessionID int64) (*models.Session, error)
}

type liveTerminator interface {
	EndSession(ctx context.Context, actorID int64, sessionID int64, reason string) (*services.TerminationResult, error)
	ReportPeerDisconnect(ctx context.Context, actorID int64, sessionID int64) (*services.TerminationResult, error)
	HandleDisconnect(ctx context.Context, userID int64, sessionID int64) (*services.TerminationResult, error)
	HandleLeave(ctx context.Context, userID int64, sessionID int64) (*services.TerminationResult, error)
}

// LiveHandler owns the websocket side of a session room: join credential
// validation on upgrade, presence registration, and the in-room signals
// that feed the termination service.
type LiveHandler struct {
	lifecycle  liveLifecycle
	terminator liveTerminator
	hub        *realtime.Hub
	registry   *realtime.Registry
	channel    services.Channel
	joinSecret string
	logger     *zap.Logger
}

func NewLiveHandler(
	lifecycle liveLifecycle,
	terminator liveTerminator,
	hub *realtime.Hub,
	registry *realtime.Registry,
	channel services.Channel,
	joinSecret string,
	logger *zap.Logger,
) *LiveHandler {
	return &LiveHandler{
		lifecycle:  lifecycle,
		terminator: terminator,
		hub:        hub,
		registry:   registry,
		channel:    channel,
		joinSecret: joinSecret,
		logger:     logger,
	}
}

// WebSocketAuth validates the signed join credential before the upgrade.
// Identity comes from the credential itself, not the regular auth token:
// the credential was issued to one participant for one room.
func (h *LiveHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing join token"})
	}
	claims, err := utils.ValidateJoinToken(token, h.joinSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid join token"})
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid join token"})
	}

	session, err := h.lifecycle.ValidateJoin(c.Context(), userID, token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Join credential no longer valid"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("session_id", strconv.FormatInt(session.ID, 10))
	c.Locals("room_id", claims.RoomID)
	return c.Next()
}

// signal is what a connected participant can send over the room socket.
type signal struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

func (h *LiveHandler) HandleWebSocket(conn *websocket.Conn) {
	rawUserID, _ := conn.Locals("user_id").(string)
	rawSessionID, _ := conn.Locals("session_id").(string)
	roomID, _ := conn.Locals("room_id").(string)

	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil {
		_ = conn.Close()
		return
	}
	sessionID, err := strconv.ParseInt(rawSessionID, 10, 64)
	if err != nil {
		_ = conn.Close()
		return
	}

	ctx := context.Background()
	if _, err := h.lifecycle.Join(ctx, userID, sessionID); err != nil {
		h.logger.Warn("room join rejected",
			zap.Int64("session_id", sessionID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"join rejected"}`))
		_ = conn.Close()
		return
	}

	client := realtime.NewClient(h.hub, conn, userID, roomID)
	h.hub.Register(client)
	h.registry.Join(roomID, userID)
	go client.WritePump()

	// The newcomer gets the current room roster instead of replaying
	// everyone else's join events.
	h.channel.EmitToUser(userID, realtime.EventRoomPresence,
		realtime.RoomPresencePayload{UserIDs: h.registry.Present(roomID)})

	h.readLoop(conn, userID, sessionID, roomID)
}

// readLoop consumes signals until the connection dies. A dead connection
// is a transport disconnect; an explicit leave or end arrives as a typed
// message first.
func (h *LiveHandler) readLoop(conn *websocket.Conn, userID, sessionID int64, roomID string) {
	left := false
	defer func() {
		h.registry.Leave(roomID, userID)
		if !left {
			h.dispatchDisconnect(userID, sessionID, roomID)
		}
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sig signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}

		ctx := context.Background()
		switch sig.Type {
		case "leave":
			left = true
			result, err := h.terminator.HandleLeave(ctx, userID, sessionID)
			h.logSignal("leave", userID, sessionID, result, err)
			if err == nil && !result.Performed && !result.Deferred {
				h.channel.EmitToRoom(roomID, realtime.EventParticipantLeftSignal,
					realtime.ParticipantPayload{UserID: userID})
			}
			return
		case "end":
			result, err := h.terminator.EndSession(ctx, userID, sessionID, sig.Reason)
			h.logSignal("end", userID, sessionID, result, err)
		case "peer_gone":
			result, err := h.terminator.ReportPeerDisconnect(ctx, userID, sessionID)
			h.logSignal("peer_gone", userID, sessionID, result, err)
		}
	}
}

func (h *LiveHandler) dispatchDisconnect(userID, sessionID int64, roomID string) {
	result, err := h.terminator.HandleDisconnect(context.Background(), userID, sessionID)
	h.logger.Info("room connection closed",
		zap.Int64("session_id", sessionID),
		zap.Int64("user_id", userID),
		zap.Int("still_present", h.registry.Count(roomID)))
	h.logSignal("disconnect", userID, sessionID, result, err)
	if err == nil && !result.Performed && !result.Deferred {
		h.channel.EmitToRoom(roomID, realtime.EventParticipantLeftSignal,
			realtime.ParticipantPayload{UserID: userID})
	}
}

func (h *LiveHandler) logSignal(kind string, userID, sessionID int64, result *services.TerminationResult, err error) {
	if err != nil {
		h.logger.Warn("room signal failed",
			zap.String("signal", kind),
			zap.Int64("session_id", sessionID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return
	}
	h.logger.Info("room signal handled",
		zap.String("signal", kind),
		zap.Int64("session_id", sessionID),
		zap.Int64("user_id", userID),
		zap.Bool("performed", result.Performed),
		zap.Bool("deferred", result.Deferred))
}
