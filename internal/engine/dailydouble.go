package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// ddStage values for the daily double flow, in order.
const (
	ddStageDetected  = "detected"
	ddStageRevealed  = "revealed"
	ddStageWagering  = "wagering"
	ddStageAnswering = "answering"
	ddStageJudged    = "judged"
)

// ddMinWager is the floor for a daily double wager regardless of the
// player's score.
const ddMinWager = 5

// ddState loads the daily double hash, rejecting when none is in play.
func (e *Engine) ddState(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	dd, err := e.state.DD(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(dd) == 0 {
		return nil, reject("No daily double in play")
	}
	return dd, nil
}

// RevealDailyDouble prompts the holding player to commit a wager.
// Clue content stays hidden until the wager is locked in.
func (e *Engine) RevealDailyDouble(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		dd, err := e.ddState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if dd["stage"] != ddStageDetected {
			return nil, reject("Daily double already revealed")
		}
		if err := e.state.SetDD(ctx, gameID, map[string]string{"stage": ddStageRevealed}); err != nil {
			return nil, err
		}
		seat := ddSeatFor(dd["player_number"])
		e.scores.RecordAction(gameID, 0, "reveal_daily_double", map[string]any{"player_number": seat}, ts)
		return []event.Event{event.DailyDoubleRevealed(seat)}, nil
	})
}

// SubmitWager validates and locks the daily double wager. A wager may
// arrive as soon as the detection broadcast lands; the reveal prompt
// is not a prerequisite.
func (e *Engine) SubmitWager(ctx context.Context, gameID uuid.UUID, seat, wager int) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		st, err := e.liveState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		dd, err := e.ddState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if dd["stage"] != ddStageDetected && dd["stage"] != ddStageRevealed {
			return nil, reject("Wagering is closed")
		}
		if strconv.Itoa(seat) != dd["player_number"] {
			return nil, reject("Only player %s may wager on this daily double", dd["player_number"])
		}
		if wager < ddMinWager {
			return nil, reject("Wager must be at least $%d", ddMinWager)
		}
		scores, err := e.state.Scores(ctx, gameID)
		if err != nil {
			return nil, err
		}
		limit := model.Round(st["current_round"]).WagerCap()
		if score := scores[seat]; score > limit {
			limit = score
		}
		if wager > limit {
			return nil, reject("Wager cannot exceed $%d", limit)
		}

		if err := e.state.SetDD(ctx, gameID, map[string]string{
			"stage": ddStageWagering,
			"wager": strconv.Itoa(wager),
		}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, seat, "submit_wager", map[string]any{
			"player_number": seat,
			"wager":         wager,
		}, ts)
		return []event.Event{event.WagerSubmitted(seat, wager)}, nil
	})
}

// ShowDDClue exposes the clue once the wager is locked.
func (e *Engine) ShowDDClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		dd, err := e.ddState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if dd["stage"] != ddStageWagering {
			return nil, reject("No wager locked in yet")
		}
		clueID, err := strconv.ParseInt(dd["clue_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad clue_id in dd state: %w", err)
		}
		clue, category, err := e.catalog.Clue(ctx, clueID)
		if err != nil {
			return nil, err
		}
		if clue == nil {
			return nil, fmt.Errorf("clue %d vanished from catalog", clueID)
		}
		if err := e.state.SetDD(ctx, gameID, map[string]string{"stage": ddStageAnswering}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, "show_dd_clue", map[string]any{"clue_id": clueID}, ts)
		return []event.Event{event.DDClueShown(clue, category)}, nil
	})
}

// SubmitDDAnswer stores the response for the host to judge.
func (e *Engine) SubmitDDAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		dd, err := e.ddState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if dd["stage"] != ddStageAnswering {
			return nil, reject("Answers are not open")
		}
		if strconv.Itoa(seat) != dd["player_number"] {
			return nil, reject("Only player %s may answer this daily double", dd["player_number"])
		}
		if err := e.state.SetDD(ctx, gameID, map[string]string{"answer": answer}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, seat, "submit_dd_answer", map[string]any{
			"player_number": seat,
			"answer":        answer,
		}, ts)
		return []event.Event{event.DDAnswerSubmitted(seat, answer)}, nil
	})
}

// JudgeDDAnswer applies the wager and settles the daily double. The
// host advances with next_clue afterwards.
func (e *Engine) JudgeDDAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		dd, err := e.ddState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if dd["stage"] != ddStageAnswering {
			return nil, reject("Nothing to judge yet")
		}
		if strconv.Itoa(seat) != dd["player_number"] {
			return nil, reject("Player %d is not the daily double player", seat)
		}
		wager, err := strconv.Atoi(dd["wager"])
		if err != nil {
			return nil, fmt.Errorf("bad wager in dd state: %w", err)
		}

		delta := wager
		if !correct {
			delta = -wager
		}
		newScore, err := e.state.IncrScore(ctx, gameID, seat, delta)
		if err != nil {
			return nil, err
		}
		e.scores.MirrorScore(ctx, gameID, seat, newScore)
		if err := e.state.SetDD(ctx, gameID, map[string]string{"stage": ddStageJudged}); err != nil {
			return nil, err
		}
		if correct {
			if err := e.state.SetState(ctx, gameID, map[string]string{
				"current_player": strconv.Itoa(seat),
			}); err != nil {
				return nil, err
			}
		}
		if clueID, perr := strconv.ParseInt(dd["clue_id"], 10, 64); perr == nil {
			e.scores.ResolveClueReveal(gameID, clueID, &seat, &correct)
		}
		e.scores.RecordAction(gameID, seat, "judge_dd_answer", map[string]any{
			"player_number": seat,
			"correct":       correct,
			"wager":         wager,
			"delta":         delta,
			"new_score":     newScore,
		}, ts)
		return []event.Event{event.DDAnswerJudged(seat, correct, wager, newScore)}, nil
	})
}
