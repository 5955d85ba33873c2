package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/db"
	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// gameView is the merged durable + live representation of a session.
type gameView struct {
	GameID        string            `json:"game_id"`
	EpisodeID     int64             `json:"episode_id"`
	HostName      string            `json:"host_name"`
	Status        string            `json:"status"`
	CurrentRound  string            `json:"current_round"`
	Settings      map[string]any    `json:"settings"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Live          bool              `json:"live"`
	RevealedClues int               `json:"revealed_clues"`
	Participants  []participantView `json:"participants"`
}

type participantView struct {
	PlayerName   string    `json:"player_name"`
	PlayerNumber int       `json:"player_number"`
	Score        int       `json:"score"`
	FinalWager   *int      `json:"final_wager,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
}

type createGameRequest struct {
	EpisodeID int64          `json:"episode_id"`
	HostName  string         `json:"host_name"`
	Settings  map[string]any `json:"settings"`
}

type joinGameRequest struct {
	PlayerName string `json:"player_name"`
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apiError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EpisodeID == 0 {
		apiError(w, r, http.StatusBadRequest, "episode_id is required")
		return
	}
	if strings.TrimSpace(req.HostName) == "" {
		apiError(w, r, http.StatusBadRequest, "host_name is required")
		return
	}

	ctx := r.Context()
	episode, err := a.episodes.Get(ctx, req.EpisodeID)
	if err != nil {
		slog.Error("looking up episode", "episode_id", req.EpisodeID, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if episode == nil {
		apiError(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown episode %d", req.EpisodeID))
		return
	}

	game := &model.Game{
		ID:           uuid.New(),
		EpisodeID:    req.EpisodeID,
		HostName:     req.HostName,
		Status:       model.StatusWaiting,
		CurrentRound: model.RoundSingle,
		Settings:     req.Settings,
		CreatedAt:    time.Now(),
	}
	if err := a.games.Create(ctx, game); err != nil {
		slog.Error("creating game", "episode_id", req.EpisodeID, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.Info("game created", "game_id", game.ID, "episode_id", game.EpisodeID, "host", game.HostName)
	a.renderGame(w, r, game, http.StatusCreated)
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}

	game, err := a.games.Get(r.Context(), id)
	if err != nil {
		slog.Error("looking up game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if game == nil {
		apiError(w, r, http.StatusNotFound, "Game not found")
		return
	}

	a.renderGame(w, r, game, http.StatusOK)
}

func (a *API) joinGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}

	var req joinGameRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apiError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PlayerName) == "" {
		apiError(w, r, http.StatusBadRequest, "player_name is required")
		return
	}

	ctx := r.Context()
	game, err := a.games.Get(ctx, id)
	if err != nil {
		slog.Error("looking up game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if game == nil {
		apiError(w, r, http.StatusNotFound, "Game not found")
		return
	}
	if game.Status != model.StatusWaiting && game.Status != model.StatusActive {
		apiError(w, r, http.StatusBadRequest, "Game is not accepting new players")
		return
	}

	participant, created, err := a.participants.Join(ctx, id, req.PlayerName)
	if errors.Is(err, db.ErrGameFull) {
		apiError(w, r, http.StatusBadRequest, "Game is full (max 6 players)")
		return
	}
	if err != nil {
		slog.Error("joining game", "game_id", id, "player", req.PlayerName, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated

		// A session already under way keeps its roster in the live
		// store; seed the new seat so scores and names stay complete.
		if err := a.seedLiveSeat(ctx, id, participant); err != nil {
			slog.Error("seeding live seat", "game_id", id, "seat", participant.Seat, "error", err)
			apiError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}

		a.hub.Broadcast(id, []event.Event{event.PlayerJoined(participant.Seat, participant.PlayerName)})
	}

	render.Status(r, status)
	render.JSON(w, r, participantView{
		PlayerName:   participant.PlayerName,
		PlayerNumber: participant.Seat,
		Score:        participant.Score,
		FinalWager:   participant.FinalWager,
		JoinedAt:     participant.JoinedAt,
	})
}

func (a *API) seedLiveSeat(ctx context.Context, id uuid.UUID, p *model.Participant) error {
	exists, err := a.live.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := a.live.SetScore(ctx, id, p.Seat, 0); err != nil {
		return err
	}
	return a.live.SetName(ctx, id, p.Seat, p.PlayerName)
}

func (a *API) startGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	game, err := a.games.Get(ctx, id)
	if err != nil {
		slog.Error("looking up game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if game == nil {
		apiError(w, r, http.StatusNotFound, "Game not found")
		return
	}
	if game.Status != model.StatusWaiting {
		apiError(w, r, http.StatusBadRequest, "Game already started")
		return
	}

	count, err := a.participants.CountByGame(ctx, id)
	if err != nil {
		slog.Error("counting participants", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if count < 1 {
		apiError(w, r, http.StatusBadRequest, "Need at least 1 player to start")
		return
	}

	if err := a.games.MarkStarted(ctx, id); err != nil {
		slog.Error("starting game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Clients connected during the lobby materialized live state with
	// status waiting; bring it along.
	exists, err := a.live.Exists(ctx, id)
	if err == nil && exists {
		err = a.live.SetState(ctx, id, map[string]string{"status": string(model.StatusActive)})
	}
	if err != nil {
		slog.Error("updating live status", "game_id", id, "error", err)
	}

	slog.Info("game started", "game_id", id, "players", count)

	game, err = a.games.Get(ctx, id)
	if err != nil || game == nil {
		slog.Error("reloading game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.renderGame(w, r, game, http.StatusOK)
}

func (a *API) endGame(w http.ResponseWriter, r *http.Request) {
	a.finishGame(w, r, a.engine.EndGame)
}

func (a *API) abandonGame(w http.ResponseWriter, r *http.Request) {
	a.finishGame(w, r, a.engine.AbandonGame)
}

// finishGame is the shared end/abandon handler. The engine persists
// final scores and returns the closing broadcast.
func (a *API) finishGame(w http.ResponseWriter, r *http.Request, terminate func(context.Context, uuid.UUID) ([]event.Event, error)) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	game, err := a.games.Get(ctx, id)
	if err != nil {
		slog.Error("looking up game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if game == nil {
		apiError(w, r, http.StatusNotFound, "Game not found")
		return
	}
	if game.Status.Terminal() {
		apiError(w, r, http.StatusBadRequest, fmt.Sprintf("Game already %s", game.Status))
		return
	}

	events, err := terminate(ctx, id)
	if err != nil {
		slog.Error("terminating game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.hub.Broadcast(id, events)

	game, err = a.games.Get(ctx, id)
	if err != nil || game == nil {
		slog.Error("reloading game", "game_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.renderGame(w, r, game, http.StatusOK)
}

// renderGame writes the merged view: participant rows from the durable
// store, scores and status from the live store when the session is
// materialized.
func (a *API) renderGame(w http.ResponseWriter, r *http.Request, game *model.Game, status int) {
	ctx := r.Context()

	participants, err := a.participants.ListByGame(ctx, game.ID)
	if err != nil {
		slog.Error("listing participants", "game_id", game.ID, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	view := gameView{
		GameID:       game.ID.String(),
		EpisodeID:    game.EpisodeID,
		HostName:     game.HostName,
		Status:       string(game.Status),
		CurrentRound: string(game.CurrentRound),
		Settings:     game.Settings,
		CreatedAt:    game.CreatedAt,
		StartedAt:    game.StartedAt,
		EndedAt:      game.EndedAt,
		Participants: make([]participantView, 0, len(participants)),
	}

	var liveScores map[int]int
	exists, err := a.live.Exists(ctx, game.ID)
	if err != nil {
		slog.Error("checking live state", "game_id", game.ID, "error", err)
	} else if exists {
		view.Live = true
		if state, err := a.live.State(ctx, game.ID); err == nil {
			if s := state["status"]; s != "" {
				view.Status = s
			}
			if round := state["current_round"]; round != "" {
				view.CurrentRound = round
			}
		}
		if revealed, err := a.live.Revealed(ctx, game.ID); err == nil {
			view.RevealedClues = len(revealed)
		}
		if scores, err := a.live.Scores(ctx, game.ID); err == nil {
			liveScores = scores
		}
	}

	for _, p := range participants {
		pv := participantView{
			PlayerName:   p.PlayerName,
			PlayerNumber: p.Seat,
			Score:        p.Score,
			FinalWager:   p.FinalWager,
			JoinedAt:     p.JoinedAt,
		}
		if score, ok := liveScores[p.Seat]; ok {
			pv.Score = score
		}
		view.Participants = append(view.Participants, pv)
	}

	render.Status(r, status)
	render.JSON(w, r, view)
}
