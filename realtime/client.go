package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// Client is one live websocket connection. Reads happen on the
// connection's readPump goroutine; all writes are serialized through
// the send channel and the writePump goroutine.
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan Frame
	rooms map[string]struct{} // owned by hub.mu after registration

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    newClientID(),
		hub:   h,
		conn:  conn,
		send:  make(chan Frame, sendBufferSize),
		rooms: make(map[string]struct{}),
	}
}

// ID returns the connection identifier echoed in membership events.
func (c *Client) ID() string { return c.id }

// enqueue hands a frame to the writer. A subscriber whose buffer is
// full is dropped rather than allowed to stall the room.
func (c *Client) enqueue(f Frame) {
	select {
	case c.send <- f:
	default:
		slog.Warn("subscriber too slow, dropping connection", slog.String("id", c.id), slog.String("component", "realtime"))
		c.close()
	}
}

// close tears the connection down exactly once. The read pump unblocks
// on the closed conn and runs hub.drop.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// readPump consumes client frames until the connection drops, then
// unregisters the client. join is the only client-initiated event.
func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.drop(c)
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var raw struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := c.conn.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error", slog.String("id", c.id), slog.Any("err", err), slog.String("component", "realtime"))
			}
			return
		}
		switch raw.Event {
		case "join":
			var req JoinRequest
			if err := json.Unmarshal(raw.Data, &req); err != nil {
				c.enqueue(Frame{Event: "error", Data: ErrorPayload{Message: "malformed join request"}})
				continue
			}
			c.hub.Join(c, req)
		default:
			c.enqueue(Frame{Event: "error", Data: ErrorPayload{Message: "unknown event: " + raw.Event}})
		}
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
