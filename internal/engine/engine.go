// Package engine drives a game session's state machine: the clue
// lifecycle, the daily double and final jeopardy wager flows, scoring
// and termination. Operations return the ordered broadcast list for
// the room; rejections surface as *RejectError and are answered to the
// sender only.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/buzzer"
	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// StateStore is the slice of the ephemeral store the engine drives.
// *live.Store satisfies it.
type StateStore interface {
	Exists(ctx context.Context, gameID uuid.UUID) (bool, error)
	Touch(ctx context.Context, gameID uuid.UUID) error
	MaterializeGame(ctx context.Context, gameID uuid.UUID, state map[string]string, names map[int]string, ddClues []int64) error

	State(ctx context.Context, gameID uuid.UUID) (map[string]string, error)
	SetState(ctx context.Context, gameID uuid.UUID, fields map[string]string) error
	Scores(ctx context.Context, gameID uuid.UUID) (map[int]int, error)
	SetScore(ctx context.Context, gameID uuid.UUID, seat, score int) error
	IncrScore(ctx context.Context, gameID uuid.UUID, seat, delta int) (int, error)
	Names(ctx context.Context, gameID uuid.UUID) (map[int]string, error)

	AddRevealed(ctx context.Context, gameID uuid.UUID, clueID int64) error
	IsRevealed(ctx context.Context, gameID uuid.UUID, clueID int64) (bool, error)
	Revealed(ctx context.Context, gameID uuid.UUID) ([]int64, error)
	ClearRevealed(ctx context.Context, gameID uuid.UUID) error
	IsDailyDouble(ctx context.Context, gameID uuid.UUID, clueID int64) (bool, error)

	SetDD(ctx context.Context, gameID uuid.UUID, fields map[string]string) error
	DD(ctx context.Context, gameID uuid.UUID) (map[string]string, error)
	ClearDD(ctx context.Context, gameID uuid.UUID) error

	SetFJ(ctx context.Context, gameID uuid.UUID, fields map[string]string) error
	FJ(ctx context.Context, gameID uuid.UUID) (map[string]string, error)
	SetFJWager(ctx context.Context, gameID uuid.UUID, seat, wager int) error
	FJWagers(ctx context.Context, gameID uuid.UUID) (map[int]int, error)
	SetFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) error
	SetFJJudgment(ctx context.Context, gameID uuid.UUID, seat int, correct bool) error
	FJJudgments(ctx context.Context, gameID uuid.UUID) (map[int]bool, error)
	ClearFJ(ctx context.Context, gameID uuid.UUID) error

	Attempted(ctx context.Context, gameID uuid.UUID) ([]int, error)
	AddAttempted(ctx context.Context, gameID uuid.UUID, seat int) error

	AcquireLock(ctx context.Context, gameID uuid.UUID) (string, error)
	ReleaseLock(ctx context.Context, gameID uuid.UUID, token string) error
}

// BuzzerControl is the arbitration surface. *buzzer.Arbitrator
// satisfies it.
type BuzzerControl interface {
	HandleBuzz(ctx context.Context, gameID uuid.UUID, seat int, clientTS int64, token string) (buzzer.Result, error)
	Enable(ctx context.Context, gameID uuid.UUID) (int64, error)
	ClearForRetry(ctx context.Context, gameID uuid.UUID) (int64, error)
	Reset(ctx context.Context, gameID uuid.UUID) error
}

// ClueCatalog is the read side of the episode catalog. *catalog.Service
// satisfies it.
type ClueCatalog interface {
	Clue(ctx context.Context, clueID int64) (*model.Clue, string, error)
	ClueBelongsToEpisode(ctx context.Context, clueID, episodeID int64) (bool, error)
	FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error)
	PickDailyDoubles(ctx context.Context, episodeID int64) ([]int64, error)
}

// GameRepository is the durable session row access the engine needs.
// *db.GameRepository satisfies it.
type GameRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Game, error)
	MarkEnded(ctx context.Context, id uuid.UUID, status model.GameStatus) error
	UpdateRound(ctx context.Context, id uuid.UUID, round model.Round) error
}

// ParticipantRoster reads the durable seat assignments.
// *db.ParticipantRepository satisfies it.
type ParticipantRoster interface {
	ListByGame(ctx context.Context, gameID uuid.UUID) ([]model.Participant, error)
	CountByGame(ctx context.Context, gameID uuid.UUID) (int, error)
}

// ScoreWriter mirrors authoritative score changes and records the
// audit trail. *scorekeeper.Writer satisfies it.
type ScoreWriter interface {
	MirrorScore(ctx context.Context, gameID uuid.UUID, seat, score int)
	PersistAll(ctx context.Context, gameID uuid.UUID, scores map[int]int) error
	ResetAll(ctx context.Context, gameID uuid.UUID)
	SetFinalWager(ctx context.Context, gameID uuid.UUID, seat, wager int)
	RecordAction(gameID uuid.UUID, seat int, actionType string, payload map[string]any, serverTimestampUS int64)
	RecordClueReveal(gameID uuid.UUID, clueID int64, revealedBy string)
	ResolveClueReveal(gameID uuid.UUID, clueID int64, winnerSeat *int, correct *bool)
}

// Engine orchestrates one or more concurrent game sessions. All
// per-game mutations are serialized through the store's advisory lock
// except buzz handling, which is atomic on its own.
type Engine struct {
	state   StateStore
	buzzer  BuzzerControl
	catalog ClueCatalog
	games   GameRepository
	roster  ParticipantRoster
	scores  ScoreWriter

	now func() time.Time
}

// New creates an Engine over its collaborators.
func New(state StateStore, buzz BuzzerControl, cat ClueCatalog, games GameRepository, roster ParticipantRoster, scores ScoreWriter) *Engine {
	return &Engine{
		state:   state,
		buzzer:  buzz,
		catalog: cat,
		games:   games,
		roster:  roster,
		scores:  scores,
		now:     time.Now,
	}
}

// RejectError is a validation failure answered to the sender only.
// It carries a player-facing message and never follows a state change.
type RejectError struct {
	Message string
}

func (e *RejectError) Error() string { return e.Message }

func reject(format string, args ...any) error {
	return &RejectError{Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) micros() int64 {
	return e.now().UnixMicro()
}

// withLock runs fn under the per-game advisory lock. Buzz handling
// stays outside: its script is already atomic and must not queue
// behind slower operations.
func (e *Engine) withLock(ctx context.Context, gameID uuid.UUID, fn func() ([]event.Event, error)) ([]event.Event, error) {
	token, err := e.state.AcquireLock(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("acquiring game lock: %w", err)
	}
	defer func() {
		if rerr := e.state.ReleaseLock(ctx, gameID, token); rerr != nil {
			slog.Error("failed to release game lock", "game_id", gameID, "error", rerr)
		}
	}()
	return fn()
}

// liveState loads the session hash and rejects commands on ended
// sessions. End and abandon bypass this and check the durable row so
// they can stay idempotent.
func (e *Engine) liveState(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	st, err := e.state.State(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(st) == 0 {
		return nil, fmt.Errorf("no live state for game %s", gameID)
	}
	if model.GameStatus(st["status"]).Terminal() {
		return nil, reject("Game already %s", st["status"])
	}
	return st, nil
}

// Materialize lazily builds the live session from the durable row on
// first connect. Later connects only refresh the retention window.
func (e *Engine) Materialize(ctx context.Context, gameID uuid.UUID) error {
	token, err := e.state.AcquireLock(ctx, gameID)
	if err != nil {
		return fmt.Errorf("acquiring game lock: %w", err)
	}
	defer func() {
		if rerr := e.state.ReleaseLock(ctx, gameID, token); rerr != nil {
			slog.Error("failed to release game lock", "game_id", gameID, "error", rerr)
		}
	}()

	exists, err := e.state.Exists(ctx, gameID)
	if err != nil {
		return err
	}
	if exists {
		return e.state.Touch(ctx, gameID)
	}

	game, err := e.games.Get(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return fmt.Errorf("game %s not found", gameID)
	}
	participants, err := e.roster.ListByGame(ctx, gameID)
	if err != nil {
		return err
	}
	ddClues, err := e.catalog.PickDailyDoubles(ctx, game.EpisodeID)
	if err != nil {
		return fmt.Errorf("picking daily doubles: %w", err)
	}

	names := make(map[int]string, len(participants))
	for _, p := range participants {
		names[p.Seat] = p.PlayerName
	}
	state := map[string]string{
		"episode_id":     strconv.FormatInt(game.EpisodeID, 10),
		"status":         string(game.Status),
		"current_round":  string(game.CurrentRound),
		"current_clue":   "",
		"current_player": "",
	}
	if err := e.state.MaterializeGame(ctx, gameID, state, names, ddClues); err != nil {
		return err
	}
	slog.Info("live state materialized",
		"game_id", gameID,
		"seats", len(names),
		"daily_doubles", len(ddClues))
	return nil
}

// Snapshot returns the connect-time view of a session.
func (e *Engine) Snapshot(ctx context.Context, gameID uuid.UUID) (map[string]string, map[int]int, map[int]string, error) {
	st, err := e.state.State(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	scores, err := e.state.Scores(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	names, err := e.state.Names(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	return st, scores, names, nil
}

// auditScores keys scores by string for the JSON audit payload.
func auditScores(scores map[int]int) map[string]int {
	out := make(map[string]int, len(scores))
	for seat, score := range scores {
		out[strconv.Itoa(seat)] = score
	}
	return out
}

// ddSeatFor picks the wagering seat: the board controller, or seat 1
// before anyone has held control.
func ddSeatFor(currentPlayer string) int {
	seat, err := strconv.Atoi(currentPlayer)
	if err != nil || !model.ValidSeat(seat) {
		return 1
	}
	return seat
}
