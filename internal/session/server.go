package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// CloseGameNotFound is the close code sent when a client connects to a
// game that has no durable row.
const CloseGameNotFound = 4004

// Commander executes game commands against live and durable state.
// Implemented by engine.Engine.
type Commander interface {
	Materialize(ctx context.Context, gameID uuid.UUID) error
	Snapshot(ctx context.Context, gameID uuid.UUID) (map[string]string, map[int]int, map[int]string, error)

	HandleBuzz(ctx context.Context, gameID uuid.UUID, seat int, clientTS int64, token string) ([]event.Event, error)
	RevealClue(ctx context.Context, gameID uuid.UUID, clueID int64) ([]event.Event, error)
	EnableBuzzer(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	JudgeAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool, value int) ([]event.Event, error)
	NextClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	ResetGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	AdjustScore(ctx context.Context, gameID uuid.UUID, seat, adjustment int) ([]event.Event, error)
	StartRound(ctx context.Context, gameID uuid.UUID, roundName string) ([]event.Event, error)
	RevealDailyDouble(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	SubmitWager(ctx context.Context, gameID uuid.UUID, seat, wager int) ([]event.Event, error)
	ShowDDClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	SubmitDDAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) ([]event.Event, error)
	JudgeDDAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool) ([]event.Event, error)
	StartFinalJeopardy(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	SubmitFJWager(ctx context.Context, gameID uuid.UUID, seat, wager int) ([]event.Event, error)
	RevealFJClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	StartFJTimer(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	SubmitFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) ([]event.Event, error)
	JudgeFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool) ([]event.Event, error)
	EndGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	AbandonGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
}

// GameFinder looks up durable game rows for connection admission.
type GameFinder interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Game, error)
}

// Server upgrades requests on the game endpoint and runs one read loop
// per connection.
type Server struct {
	hub            *Hub
	engine         Commander
	games          GameFinder
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

// NewServer builds the WebSocket server. An empty origin list allows
// same-host and local development origins only.
func NewServer(hub *Hub, eng Commander, games GameFinder, allowedOrigins []string) *Server {
	s := &Server{
		hub:            hub,
		engine:         eng,
		games:          games,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Routes registers the WebSocket endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/ws/game/{gameID}", s.HandleWS)
}

// HandleWS upgrades the connection, materializes live state, attaches
// the client to the game's room, and reads frames until the peer goes
// away. The not-found check runs after the upgrade so the client gets
// a close code instead of a failed handshake.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(chi.URLParam(r, "gameID"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws upgrade failed", "game_id", gameID, "error", err)
		return
	}

	ctx := r.Context()

	game, err := s.games.Get(ctx, gameID)
	if err != nil {
		slog.Error("looking up game", "game_id", gameID, "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if game == nil {
		closeWith(conn, CloseGameNotFound, "game not found")
		return
	}

	if err := s.engine.Materialize(ctx, gameID); err != nil {
		slog.Error("materializing live state", "game_id", gameID, "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	state, scores, names, err := s.engine.Snapshot(ctx, gameID)
	if err != nil {
		slog.Error("reading live snapshot", "game_id", gameID, "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	client := s.hub.Join(gameID, conn)
	defer s.hub.Leave(client)

	slog.Info("client connected", "game_id", gameID, "remote", r.RemoteAddr)
	client.Send(event.ConnectionEstablished(gameID.String(), state, scores, names, state["current_player"]))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("client disconnected", "game_id", gameID, "remote", r.RemoteAddr)
			return
		}
		s.handleMessage(ctx, client, gameID, data)
	}
}

// closeWith sends a close frame and tears the connection down. Only
// used before the client has joined a room.
func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// checkOrigin accepts browser connections from the configured origins.
// With no allowlist, same-host and local development origins pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}
