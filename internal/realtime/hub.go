package realtime

import (
	"encoding/json"
	"strconv"

	websocket "github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Hub fans events out to websocket clients grouped by session room.
// Delivery is fire-and-forget, at-most-once: a client whose send buffer
// is full is dropped rather than allowed to stall the room.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	byUser     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	logger     *zap.Logger
}

type envelope struct {
	RoomID string          `json:"room_id,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	roomID string
	send   chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 64),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, roomID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		roomID: roomID,
		send:   make(chan []byte, 32),
	}
}

func (c *Client) UserID() int64 { return c.userID }
func (c *Client) RoomID() string { return c.roomID }

func (c *Client) userKey() string { return strconv.FormatInt(c.userID, 10) }

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) add(client *Client) {
	addToSet(h.rooms, client.roomID, client)
	addToSet(h.byUser, client.userKey(), client)
}

// remove detaches a client from both the room and the user index and
// closes its send channel exactly once. Calling it again for a client
// that is already gone is a no-op, so the disconnect unregister and the
// slow-consumer drop cannot double-close.
func (h *Hub) remove(client *Client) {
	inRoom := removeFromSet(h.rooms, client.roomID, client)
	inUser := removeFromSet(h.byUser, client.userKey(), client)
	if inRoom || inUser {
		close(client.send)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Deliver routes an envelope to a room or a single user's connections.
func (h *Hub) Deliver(roomID, userID, event string, data json.RawMessage) {
	h.broadcast <- &envelope{RoomID: roomID, UserID: userID, Event: event, Data: data}
}

func (h *Hub) deliver(event *envelope) {
	encoded, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("realtime hub encode event", zap.Error(err))
		return
	}

	if event.RoomID != "" {
		h.sendToSet(h.rooms, event.RoomID, encoded)
	}
	if event.UserID != "" {
		h.sendToSet(h.byUser, event.UserID, encoded)
	}
}

func (h *Hub) sendToSet(sets map[string]map[*Client]struct{}, key string, payload []byte) {
	set, ok := sets[key]
	if !ok {
		return
	}
	var slow []*Client
	for client := range set {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		h.remove(client)
	}
}

func addToSet(sets map[string]map[*Client]struct{}, key string, client *Client) {
	set, ok := sets[key]
	if !ok {
		set = make(map[*Client]struct{})
		sets[key] = set
	}
	set[client] = struct{}{}
}

func removeFromSet(sets map[string]map[*Client]struct{}, key string, client *Client) bool {
	set, ok := sets[key]
	if !ok {
		return false
	}
	if _, exists := set[client]; !exists {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(sets, key)
	}
	return true
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
