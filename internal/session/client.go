package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizgrid/coordinator/internal/event"
)

// Client is one WebSocket connection attached to a game room. The
// write pump is the only goroutine that writes to the connection; the
// read loop in the HTTP handler is the only reader.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	gameID uuid.UUID
	send   chan []byte
}

// Send queues a single frame for this client only. Used for the
// connect snapshot and error frames; everything else goes through the
// hub's Broadcast.
func (c *Client) Send(ev event.Event) {
	c.hub.sendTo(c, ev)
}

// writePump drains the send queue onto the wire. It exits when the
// queue closes or a write fails; a failed write also removes the
// client from its room so the dead connection stops receiving frames.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("client write failed", "game_id", c.gameID, "error", err)
			c.hub.Leave(c)
			return
		}
	}
}
