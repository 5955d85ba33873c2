package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// fjStage values for the final round, in order.
const (
	fjStageCategoryShown = "category_shown"
	fjStageClueRevealed  = "clue_revealed"
	fjStageTimerRunning  = "timer_running"
)

// fjTimerSeconds is the broadcast answer window. Clients render the
// countdown; the server accepts late answers.
const fjTimerSeconds = 30

// fjState loads the final round hash, rejecting when the round has not
// started.
func (e *Engine) fjState(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	fj, err := e.state.FJ(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(fj) == 0 {
		return nil, reject("Final round has not started")
	}
	return fj, nil
}

// StartFinalJeopardy enters the final round and shows its category.
// The clue itself stays hidden until the host reveals it.
func (e *Engine) StartFinalJeopardy(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		st, err := e.liveState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		episodeID, err := strconv.ParseInt(st["episode_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad episode_id in live state: %w", err)
		}
		category, clue, err := e.catalog.FinalClue(ctx, episodeID)
		if err != nil {
			return nil, err
		}
		if clue == nil {
			return nil, reject("Episode has no final round")
		}

		if err := e.buzzer.Reset(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.ClearDD(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.SetState(ctx, gameID, map[string]string{
			"current_round": string(model.RoundFinal),
			"current_clue":  "",
		}); err != nil {
			return nil, err
		}
		if err := e.state.SetFJ(ctx, gameID, map[string]string{
			"stage":    fjStageCategoryShown,
			"clue_id":  strconv.FormatInt(clue.ID, 10),
			"category": category,
		}); err != nil {
			return nil, err
		}
		if err := e.games.UpdateRound(ctx, gameID, model.RoundFinal); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, "start_final_jeopardy", map[string]any{"category": category}, ts)
		return []event.Event{event.FJCategoryShown(category)}, nil
	})
}

// SubmitFJWager stores one seat's private wager. A positive score caps
// the wager at the score; everyone else may only wager zero. Wagers
// may be rewritten until the seat is judged.
func (e *Engine) SubmitFJWager(ctx context.Context, gameID uuid.UUID, seat, wager int) ([]event.Event, error) {
	ts := e.micros()
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		if _, err := e.fjState(ctx, gameID); err != nil {
			return nil, err
		}
		judged, err := e.state.FJJudgments(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if _, done := judged[seat]; done {
			return nil, reject("Player %d has already been judged", seat)
		}
		if wager < 0 {
			return nil, reject("Wager cannot be negative")
		}
		scores, err := e.state.Scores(ctx, gameID)
		if err != nil {
			return nil, err
		}
		limit := scores[seat]
		if limit < 0 {
			limit = 0
		}
		if wager > limit {
			return nil, reject("Wager cannot exceed $%d", limit)
		}

		if err := e.state.SetFJWager(ctx, gameID, seat, wager); err != nil {
			return nil, err
		}
		e.scores.SetFinalWager(ctx, gameID, seat, wager)
		e.scores.RecordAction(gameID, seat, "submit_fj_wager", map[string]any{
			"player_number": seat,
			"wager":         wager,
		}, ts)
		return []event.Event{event.FJWagerSubmitted(seat, wager)}, nil
	})
}

// RevealFJClue shows the final clue text. The timer starts separately.
func (e *Engine) RevealFJClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		fj, err := e.fjState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		clueID, err := strconv.ParseInt(fj["clue_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad clue_id in fj state: %w", err)
		}
		clue, _, err := e.catalog.Clue(ctx, clueID)
		if err != nil {
			return nil, err
		}
		if clue == nil {
			return nil, fmt.Errorf("clue %d vanished from catalog", clueID)
		}
		if err := e.state.SetFJ(ctx, gameID, map[string]string{"stage": fjStageClueRevealed}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, "reveal_fj_clue", map[string]any{"clue_id": clueID}, ts)
		return []event.Event{event.FJClueRevealed(clue, fj["category"])}, nil
	})
}

// StartFJTimer announces the countdown. Judging, not the clock,
// decides when the round is over.
func (e *Engine) StartFJTimer(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	if _, err := e.liveState(ctx, gameID); err != nil {
		return nil, err
	}
	if _, err := e.fjState(ctx, gameID); err != nil {
		return nil, err
	}
	if err := e.state.SetFJ(ctx, gameID, map[string]string{"stage": fjStageTimerRunning}); err != nil {
		return nil, err
	}
	e.scores.RecordAction(gameID, 0, "start_fj_timer", map[string]any{"duration": fjTimerSeconds}, ts)
	return []event.Event{event.FJTimerStarted(fjTimerSeconds)}, nil
}

// SubmitFJAnswer stores a seat's written response, late or not.
func (e *Engine) SubmitFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) ([]event.Event, error) {
	ts := e.micros()
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	if _, err := e.liveState(ctx, gameID); err != nil {
		return nil, err
	}
	if _, err := e.fjState(ctx, gameID); err != nil {
		return nil, err
	}
	if err := e.state.SetFJAnswer(ctx, gameID, seat, answer); err != nil {
		return nil, err
	}
	e.scores.RecordAction(gameID, seat, "submit_fj_answer", map[string]any{
		"player_number": seat,
		"answer":        answer,
	}, ts)
	return []event.Event{event.FJAnswerSubmitted(seat, answer)}, nil
}

// JudgeFJAnswer applies one seat's wager. Once every rostered seat has
// a judgment the session completes itself.
func (e *Engine) JudgeFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool) ([]event.Event, error) {
	ts := e.micros()
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		if _, err := e.fjState(ctx, gameID); err != nil {
			return nil, err
		}
		judged, err := e.state.FJJudgments(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if _, done := judged[seat]; done {
			return nil, reject("Player %d has already been judged", seat)
		}
		wagers, err := e.state.FJWagers(ctx, gameID)
		if err != nil {
			return nil, err
		}
		wager := wagers[seat]

		delta := wager
		if !correct {
			delta = -wager
		}
		newScore, err := e.state.IncrScore(ctx, gameID, seat, delta)
		if err != nil {
			return nil, err
		}
		e.scores.MirrorScore(ctx, gameID, seat, newScore)
		if err := e.state.SetFJJudgment(ctx, gameID, seat, correct); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, seat, "judge_fj_answer", map[string]any{
			"player_number": seat,
			"correct":       correct,
			"wager":         wager,
			"delta":         delta,
			"new_score":     newScore,
		}, ts)
		events := []event.Event{event.FJAnswerJudged(seat, correct, wager, newScore)}

		rosterSize, err := e.roster.CountByGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if rosterSize > 0 && len(judged)+1 >= rosterSize {
			finale, err := e.complete(ctx, gameID)
			if err != nil {
				return nil, err
			}
			events = append(events, finale...)
		}
		return events, nil
	})
}

// complete ends the session after the last final judgment. Runs inside
// the caller's lock; the advisory lock is not reentrant.
func (e *Engine) complete(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	scores, err := e.state.Scores(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := e.scores.PersistAll(ctx, gameID, scores); err != nil {
		return nil, fmt.Errorf("persisting final scores: %w", err)
	}
	if err := e.games.MarkEnded(ctx, gameID, model.StatusCompleted); err != nil {
		return nil, err
	}
	if err := e.state.SetState(ctx, gameID, map[string]string{
		"status": string(model.StatusCompleted),
	}); err != nil {
		return nil, err
	}
	e.scores.RecordAction(gameID, 0, "game_completed", map[string]any{
		"final_scores": auditScores(scores),
	}, e.micros())
	return []event.Event{event.GameCompleted(scores)}, nil
}
