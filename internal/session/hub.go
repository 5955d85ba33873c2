// Package session terminates WebSocket connections for live games.
// Each game has a room of clients; inbound frames dispatch game
// commands one at a time per connection, and the hub fans the
// resulting frames out to every room member.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizgrid/coordinator/internal/event"
)

// Hub is the room registry. One lock guards all rooms; it is never
// held across a blocking call, so fan-out stays non-blocking.
type Hub struct {
	queueSize    int
	writeTimeout time.Duration

	mu    sync.Mutex
	rooms map[uuid.UUID]map[*Client]bool
}

// NewHub creates a hub whose clients carry a send queue of queueSize
// frames and give up on a write after writeTimeout.
func NewHub(queueSize int, writeTimeout time.Duration) *Hub {
	return &Hub{
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		rooms:        make(map[uuid.UUID]map[*Client]bool),
	}
}

// Join registers a connection in the game's room and starts its write
// pump. The caller owns the read loop and must call Leave when it
// ends.
func (h *Hub) Join(gameID uuid.UUID, conn *websocket.Conn) *Client {
	c := &Client{
		hub:    h,
		conn:   conn,
		gameID: gameID,
		send:   make(chan []byte, h.queueSize),
	}

	h.mu.Lock()
	room := h.rooms[gameID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[gameID] = room
	}
	room[c] = true
	h.mu.Unlock()

	go c.writePump()
	return c
}

// Leave removes the client from its room and closes its send channel.
// Safe to call more than once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop is Leave without the lock. Callers hold h.mu.
func (h *Hub) drop(c *Client) {
	room, ok := h.rooms[c.gameID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.gameID)
	}
}

// Broadcast fans a batch of frames out to every client in the game's
// room. The lock is held for the whole batch so one command's frames
// reach each client contiguously and in order. A client whose queue
// is full is dropped; a stalled spectator must not hold up the game.
func (h *Hub) Broadcast(gameID uuid.UUID, events []event.Event) {
	if len(events) == 0 {
		return
	}

	frames := make([][]byte, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshaling broadcast frame", "type", ev.Type(), "error", err)
			continue
		}
		frames = append(frames, data)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for c := range h.rooms[gameID] {
	enqueue:
		for _, frame := range frames {
			select {
			case c.send <- frame:
			default:
				slow = append(slow, c)
				break enqueue
			}
		}
	}
	for _, c := range slow {
		slog.Warn("dropping slow client", "game_id", gameID)
		h.drop(c)
	}
}

// sendTo queues one frame for a single client. Clients that already
// left the room are skipped, and a saturated queue drops the frame
// rather than block.
func (h *Hub) sendTo(c *Client, ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshaling frame", "type", ev.Type(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.gameID]
	if !ok || !room[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// RoomSize reports how many clients are attached to a game's room.
func (h *Hub) RoomSize(gameID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[gameID])
}
