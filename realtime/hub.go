// Package realtime tracks live websocket subscribers grouped into
// per-chat rooms and fans ingested messages out to them.
//
// The wire protocol is JSON frames of the form {"event": ..., "data": ...}.
// Clients send join requests; the server pushes joined/left membership
// events to the room, message events on every ingestion for the chat,
// and error events to the requesting connection only.
package realtime

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LivelyChat/api/access"
	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/telemetry"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// JoinRequest is the client payload of a join frame.
type JoinRequest struct {
	Platform string `json:"platform"`
	Chat     string `json:"chat"`
	Secret   string `json:"secret,omitempty"`
}

// Membership is the payload of joined/left frames: the connection that
// changed and the live size of the room after the change.
type Membership struct {
	ID       string `json:"id"`
	RoomSize int    `json:"roomSize"`
}

// ErrorPayload is the payload of error frames.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Hub owns room membership exclusively. All membership mutation happens
// under mu; delivery to individual connections goes through buffered
// per-client send channels so a slow subscriber never blocks a room.
type Hub struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub creates a hub validating joins against cfg. The upgrader
// accepts any origin; the relay is an open read surface gated per-chat
// by secrets, not by origin.
func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", slog.Any("err", err), slog.String("component", "realtime"))
		return
	}
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	telemetry.SetConnections(n)
	slog.Debug("connection opened", slog.String("id", c.id), slog.String("component", "realtime"))

	go c.writePump()
	c.readPump()
}

// Join validates the request and, on success, adds c to the room and
// notifies the room of the updated membership count. On failure only c
// receives an error frame; it is not added to the room.
func (h *Hub) Join(c *Client, req JoinRequest) {
	plat := strings.ToLower(req.Platform)
	cc, err := access.Validate(h.cfg, plat, req.Chat, req.Secret)
	if err != nil {
		if telemetry.JoinRejections != nil {
			telemetry.JoinRejections.Inc()
		}
		c.enqueue(Frame{Event: "error", Data: ErrorPayload{Message: err.Error()}})
		return
	}
	room := roomKey(plat, cc.ID)

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	size := len(members)
	targets := snapshot(members)
	openRooms := len(h.rooms)
	h.mu.Unlock()

	if telemetry.RoomJoins != nil {
		telemetry.RoomJoins.Inc()
	}
	telemetry.SetOpenRooms(openRooms)
	slog.Info("joined room", slog.String("id", c.id), slog.String("room", room), slog.Int("size", size), slog.String("component", "realtime"))

	frame := Frame{Event: "joined", Data: Membership{ID: c.id, RoomSize: size}}
	for _, t := range targets {
		t.enqueue(frame)
	}
}

// Broadcast delivers msg to every connection currently in the chat's
// room. Fire and forget: no acknowledgment, at-most-once per live
// subscriber.
func (h *Hub) Broadcast(platform, chatID string, msg message.Message) {
	room := roomKey(platform, chatID)

	h.mu.Lock()
	targets := snapshot(h.rooms[room])
	h.mu.Unlock()

	frame := Frame{Event: "message", Data: msg}
	for _, t := range targets {
		t.enqueue(frame)
		if telemetry.BroadcastsSent != nil {
			telemetry.BroadcastsSent.Inc()
		}
	}
}

// RoomSize returns the live number of connections in the chat's room.
func (h *Hub) RoomSize(platform, chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomKey(platform, chatID)])
}

// CloseAll disconnects every live connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := snapshot(h.clients)
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
	}
}

// drop removes c from every room it joined and notifies the remaining
// members with the updated count. Called once per connection.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	notify := make(map[string][]*Client, len(c.rooms))
	sizes := make(map[string]int, len(c.rooms))
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
		notify[room] = snapshot(members)
		sizes[room] = len(members)
	}
	c.rooms = map[string]struct{}{}
	n := len(h.clients)
	openRooms := len(h.rooms)
	h.mu.Unlock()

	telemetry.SetConnections(n)
	telemetry.SetOpenRooms(openRooms)
	slog.Debug("connection closed", slog.String("id", c.id), slog.String("component", "realtime"))

	for room, targets := range notify {
		frame := Frame{Event: "left", Data: Membership{ID: c.id, RoomSize: sizes[room]}}
		for _, t := range targets {
			t.enqueue(frame)
		}
	}
}

func roomKey(platform, chatID string) string {
	return platform + "/" + chatID
}

func snapshot(members map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func newClientID() string {
	return uuid.New().String()
}
