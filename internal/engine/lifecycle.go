package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// StartRound switches the macro round and clears the board. Entering
// the double round hands board control to the trailing seat, the
// televised convention.
func (e *Engine) StartRound(ctx context.Context, gameID uuid.UUID, roundName string) ([]event.Event, error) {
	round, err := model.ParseRound(roundName)
	if err != nil {
		return nil, reject("Unknown round %q", roundName)
	}
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		st, err := e.liveState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		fields := map[string]string{
			"current_round": string(round),
			"current_clue":  "",
		}
		currentPlayer := st["current_player"]
		if round == model.RoundDouble {
			scores, err := e.state.Scores(ctx, gameID)
			if err != nil {
				return nil, err
			}
			if seat := trailingSeat(scores); seat != 0 {
				currentPlayer = strconv.Itoa(seat)
			}
			fields["current_player"] = currentPlayer
		}
		if err := e.state.SetState(ctx, gameID, fields); err != nil {
			return nil, err
		}
		if err := e.state.ClearRevealed(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.ClearDD(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.buzzer.Reset(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.games.UpdateRound(ctx, gameID, round); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, "start_round", map[string]any{"round": string(round)}, ts)
		return []event.Event{event.RoundChanged(round, currentPlayer)}, nil
	})
}

// trailingSeat returns the lowest-scoring seat, ties broken by the
// lower seat number. Zero when no scores exist.
func trailingSeat(scores map[int]int) int {
	best := 0
	for seat, score := range scores {
		if best == 0 || score < scores[best] || (score == scores[best] && seat < best) {
			best = seat
		}
	}
	return best
}

// ResetGame wipes the session back to a fresh single round: zeroed
// scores in both stores, empty board, locked buzzer. Repeating it
// changes nothing further.
func (e *Engine) ResetGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		scores, err := e.state.Scores(ctx, gameID)
		if err != nil {
			return nil, err
		}
		zeroed := make(map[int]int, len(scores))
		for seat := range scores {
			if err := e.state.SetScore(ctx, gameID, seat, 0); err != nil {
				return nil, err
			}
			zeroed[seat] = 0
		}
		if err := e.state.SetState(ctx, gameID, map[string]string{
			"current_round":  string(model.RoundSingle),
			"current_clue":   "",
			"current_player": "",
		}); err != nil {
			return nil, err
		}
		if err := e.state.ClearRevealed(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.ClearDD(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.ClearFJ(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.buzzer.Reset(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.games.UpdateRound(ctx, gameID, model.RoundSingle); err != nil {
			return nil, err
		}
		e.scores.ResetAll(ctx, gameID)
		e.scores.RecordAction(gameID, 0, "reset_game", nil, ts)

		names, err := e.state.Names(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return []event.Event{event.GameReset(zeroed, names)}, nil
	})
}

// AdjustScore applies a host correction outside normal judging.
func (e *Engine) AdjustScore(ctx context.Context, gameID uuid.UUID, seat, adjustment int) ([]event.Event, error) {
	ts := e.micros()
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	if _, err := e.liveState(ctx, gameID); err != nil {
		return nil, err
	}
	newScore, err := e.state.IncrScore(ctx, gameID, seat, adjustment)
	if err != nil {
		return nil, err
	}
	e.scores.MirrorScore(ctx, gameID, seat, newScore)
	e.scores.RecordAction(gameID, seat, "adjust_score", map[string]any{
		"player_number": seat,
		"adjustment":    adjustment,
		"delta":         adjustment,
		"new_score":     newScore,
	}, ts)
	return []event.Event{event.ScoreAdjusted(seat, adjustment, newScore)}, nil
}

// EndGame finalizes the session as completed. On an already ended
// session it is a silent no-op.
func (e *Engine) EndGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	return e.finish(ctx, gameID, model.StatusCompleted, "end_game")
}

// AbandonGame finalizes the session as abandoned. Same idempotence as
// EndGame.
func (e *Engine) AbandonGame(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	return e.finish(ctx, gameID, model.StatusAbandoned, "abandon_game")
}

func (e *Engine) finish(ctx context.Context, gameID uuid.UUID, status model.GameStatus, action string) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		game, err := e.games.Get(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if game == nil {
			return nil, fmt.Errorf("game %s not found", gameID)
		}
		if game.Status.Terminal() {
			return nil, nil
		}
		scores, err := e.state.Scores(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if err := e.scores.PersistAll(ctx, gameID, scores); err != nil {
			return nil, fmt.Errorf("persisting final scores: %w", err)
		}
		if err := e.games.MarkEnded(ctx, gameID, status); err != nil {
			return nil, err
		}
		if err := e.state.SetState(ctx, gameID, map[string]string{"status": string(status)}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, action, map[string]any{"final_scores": auditScores(scores)}, ts)

		if status == model.StatusAbandoned {
			return []event.Event{event.GameAbandoned(scores)}, nil
		}
		return []event.Event{event.GameCompleted(scores)}, nil
	})
}
