// Package rest is the HTTP control surface around game sessions:
// creating games, seating players, starting, and browsing the episode
// catalog. Gameplay itself happens over the WebSocket endpoint; the
// REST handlers only touch durable rows and seed live state where it
// already exists.
package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// GameStore is the durable game lifecycle surface.
type GameStore interface {
	Create(ctx context.Context, g *model.Game) error
	Get(ctx context.Context, id uuid.UUID) (*model.Game, error)
	MarkStarted(ctx context.Context, id uuid.UUID) error
}

// ParticipantStore manages the contestant roster.
type ParticipantStore interface {
	Join(ctx context.Context, gameID uuid.UUID, playerName string) (*model.Participant, bool, error)
	ListByGame(ctx context.Context, gameID uuid.UUID) ([]model.Participant, error)
	CountByGame(ctx context.Context, gameID uuid.UUID) (int, error)
}

// EpisodeStore serves the read-only clue catalog.
type EpisodeStore interface {
	List(ctx context.Context) ([]model.Episode, error)
	Get(ctx context.Context, id int64) (*model.Episode, error)
	CategoriesForRound(ctx context.Context, episodeID int64, round model.Round) ([]model.Category, error)
	FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error)
}

// LiveState is the slice of the ephemeral store the REST surface needs:
// seeding a late joiner and reading the merged game view.
type LiveState interface {
	Exists(ctx context.Context, gameID uuid.UUID) (bool, error)
	State(ctx context.Context, gameID uuid.UUID) (map[string]string, error)
	SetState(ctx context.Context, gameID uuid.UUID, fields map[string]string) error
	Scores(ctx context.Context, gameID uuid.UUID) (map[int]int, error)
	SetScore(ctx context.Context, gameID uuid.UUID, seat, score int) error
	SetName(ctx context.Context, gameID uuid.UUID, seat int, name string) error
	Revealed(ctx context.Context, gameID uuid.UUID) ([]int64, error)
}

// Terminator ends sessions with full engine semantics: final scores
// persisted and the closing frame broadcast.
type Terminator interface {
	EndGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
	AbandonGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error)
}

// Broadcaster fans frames out to a game's connected clients.
type Broadcaster interface {
	Broadcast(gameID uuid.UUID, events []event.Event)
}

// API holds the handlers for the /api routes.
type API struct {
	games        GameStore
	participants ParticipantStore
	episodes     EpisodeStore
	live         LiveState
	engine       Terminator
	hub          Broadcaster
}

// NewAPI wires the REST surface.
func NewAPI(games GameStore, participants ParticipantStore, episodes EpisodeStore, live LiveState, engine Terminator, hub Broadcaster) *API {
	return &API{
		games:        games,
		participants: participants,
		episodes:     episodes,
		live:         live,
		engine:       engine,
		hub:          hub,
	}
}

// Routes registers the API endpoints on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Post("/", a.createGame)
			r.Route("/{gameID}", func(r chi.Router) {
				r.Get("/", a.getGame)
				r.Post("/join", a.joinGame)
				r.Post("/start", a.startGame)
				r.Post("/end", a.endGame)
				r.Post("/abandon", a.abandonGame)
			})
		})
		r.Route("/episodes", func(r chi.Router) {
			r.Get("/", a.listEpisodes)
			r.Get("/{episodeID}", a.getEpisode)
		})
	})
}

// apiError writes the flat error shape every endpoint uses.
func apiError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, map[string]string{"error": message})
}

// gameID pulls the uuid route parameter; a malformed id answers 400
// and returns false.
func gameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "gameID"))
	if err != nil {
		apiError(w, r, http.StatusBadRequest, "Invalid game id")
		return uuid.Nil, false
	}
	return id, true
}
