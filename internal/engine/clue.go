package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// RevealClue opens a board position: marks it revealed, locks the
// buzzer and broadcasts the full clue. A position the session picked
// as a daily double diverges into the wager flow with the content
// withheld.
func (e *Engine) RevealClue(ctx context.Context, gameID uuid.UUID, clueID int64) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		st, err := e.liveState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if st["current_clue"] != "" {
			return nil, reject("A clue is already in play")
		}
		episodeID, err := strconv.ParseInt(st["episode_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad episode_id in live state: %w", err)
		}
		ok, err := e.catalog.ClueBelongsToEpisode(ctx, clueID, episodeID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, reject("Unknown clue %d", clueID)
		}
		already, err := e.state.IsRevealed(ctx, gameID, clueID)
		if err != nil {
			return nil, err
		}
		if already {
			return nil, reject("Clue %d already revealed", clueID)
		}

		if err := e.buzzer.Reset(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.AddRevealed(ctx, gameID, clueID); err != nil {
			return nil, err
		}
		if err := e.state.SetState(ctx, gameID, map[string]string{
			"current_clue": strconv.FormatInt(clueID, 10),
		}); err != nil {
			return nil, err
		}

		e.scores.RecordClueReveal(gameID, clueID, "host")
		e.scores.RecordAction(gameID, 0, "reveal_clue", map[string]any{"clue_id": clueID}, ts)

		isDD, err := e.state.IsDailyDouble(ctx, gameID, clueID)
		if err != nil {
			return nil, err
		}
		if isDD {
			seat := ddSeatFor(st["current_player"])
			if err := e.state.SetDD(ctx, gameID, map[string]string{
				"stage":         ddStageDetected,
				"player_number": strconv.Itoa(seat),
				"clue_id":       strconv.FormatInt(clueID, 10),
			}); err != nil {
				return nil, err
			}
			return []event.Event{event.DailyDoubleDetected(seat)}, nil
		}

		clue, category, err := e.catalog.Clue(ctx, clueID)
		if err != nil {
			return nil, err
		}
		if clue == nil {
			return nil, fmt.Errorf("clue %d vanished from catalog", clueID)
		}
		return []event.Event{event.ClueRevealed(clue, category)}, nil
	})
}

// EnableBuzzer opens the buzz window once the host finishes reading.
func (e *Engine) EnableBuzzer(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	st, err := e.liveState(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if st["current_clue"] == "" {
		return nil, reject("No clue in play")
	}
	dd, err := e.state.DD(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(dd) > 0 {
		return nil, reject("Daily double in play; the buzzer stays locked")
	}
	token, err := e.buzzer.Enable(ctx, gameID)
	if err != nil {
		return nil, err
	}
	e.scores.RecordAction(gameID, 0, "enable_buzzer", map[string]any{"unlock_token": token}, ts)
	return []event.Event{event.BuzzerEnabled(token)}, nil
}

// HandleBuzz runs the atomic arbitration and reports the outcome to
// the whole room. Rejections are ordinary results, not errors.
func (e *Engine) HandleBuzz(ctx context.Context, gameID uuid.UUID, seat int, clientTS int64, token string) ([]event.Event, error) {
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	if _, err := e.liveState(ctx, gameID); err != nil {
		return nil, err
	}
	res, err := e.buzzer.HandleBuzz(ctx, gameID, seat, clientTS, token)
	if err != nil {
		return nil, err
	}
	e.scores.RecordAction(gameID, seat, "buzz", map[string]any{
		"player_number":    seat,
		"accepted":         res.Accepted,
		"position":         res.Position,
		"winner":           res.Winner,
		"client_timestamp": clientTS,
	}, res.ServerTimestampUS)
	return []event.Event{event.BuzzResult(seat, res)}, nil
}

// JudgeAnswer settles the floor-holder's response. A wrong answer
// benches the seat for this clue and reopens the buzzer, unless every
// rostered contestant has now missed, which resolves the clue with the
// revealed answer.
func (e *Engine) JudgeAnswer(ctx context.Context, gameID uuid.UUID, seat int, correct bool, value int) ([]event.Event, error) {
	ts := e.micros()
	if !model.ValidSeat(seat) {
		return nil, reject("Invalid player number %d", seat)
	}
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		st, err := e.liveState(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if st["current_clue"] == "" {
			return nil, reject("No clue in play")
		}
		clueID, err := strconv.ParseInt(st["current_clue"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad current_clue in live state: %w", err)
		}

		delta := value
		if !correct {
			delta = -value
		}
		newScore, err := e.state.IncrScore(ctx, gameID, seat, delta)
		if err != nil {
			return nil, err
		}
		e.scores.MirrorScore(ctx, gameID, seat, newScore)
		e.scores.RecordAction(gameID, seat, "judge_answer", map[string]any{
			"player_number": seat,
			"correct":       correct,
			"value":         value,
			"delta":         delta,
			"new_score":     newScore,
		}, ts)

		if correct {
			if err := e.state.SetState(ctx, gameID, map[string]string{
				"current_player": strconv.Itoa(seat),
				"current_clue":   "",
			}); err != nil {
				return nil, err
			}
			if err := e.buzzer.Reset(ctx, gameID); err != nil {
				return nil, err
			}
			e.scores.ResolveClueReveal(gameID, clueID, &seat, &correct)
			scores, revealed, err := e.boardView(ctx, gameID)
			if err != nil {
				return nil, err
			}
			return []event.Event{
				event.AnswerJudged(seat, true, value, newScore),
				event.ReturnToBoard(scores, revealed),
			}, nil
		}

		if err := e.state.AddAttempted(ctx, gameID, seat); err != nil {
			return nil, err
		}
		attempted, err := e.state.Attempted(ctx, gameID)
		if err != nil {
			return nil, err
		}
		rosterSize, err := e.roster.CountByGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if rosterSize > 0 && len(attempted) >= rosterSize {
			return e.resolveExhausted(ctx, gameID, seat, value, newScore, clueID)
		}

		token, err := e.buzzer.ClearForRetry(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return []event.Event{
			event.AnswerJudged(seat, false, value, newScore),
			event.BuzzerEnabled(token),
		}, nil
	})
}

// resolveExhausted closes a clue every contestant missed: the answer
// is revealed, board control stays where it was.
func (e *Engine) resolveExhausted(ctx context.Context, gameID uuid.UUID, seat, value, newScore int, clueID int64) ([]event.Event, error) {
	clue, _, err := e.catalog.Clue(ctx, clueID)
	if err != nil {
		return nil, err
	}
	answer := ""
	if clue != nil {
		answer = clue.Answer
	}
	wrong := false
	e.scores.ResolveClueReveal(gameID, clueID, nil, &wrong)

	if err := e.state.SetState(ctx, gameID, map[string]string{"current_clue": ""}); err != nil {
		return nil, err
	}
	if err := e.buzzer.Reset(ctx, gameID); err != nil {
		return nil, err
	}
	scores, revealed, err := e.boardView(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return []event.Event{
		event.AnswerJudgedExhausted(seat, value, newScore, answer),
		event.ReturnToBoard(scores, revealed),
	}, nil
}

// NextClue returns the room to the board and wipes per-clue scratch.
// Safe to repeat; an idle board just re-broadcasts the current view.
func (e *Engine) NextClue(ctx context.Context, gameID uuid.UUID) ([]event.Event, error) {
	ts := e.micros()
	return e.withLock(ctx, gameID, func() ([]event.Event, error) {
		if _, err := e.liveState(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.buzzer.Reset(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.ClearDD(ctx, gameID); err != nil {
			return nil, err
		}
		if err := e.state.SetState(ctx, gameID, map[string]string{"current_clue": ""}); err != nil {
			return nil, err
		}
		e.scores.RecordAction(gameID, 0, "next_clue", nil, ts)
		scores, revealed, err := e.boardView(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return []event.Event{event.ReturnToBoard(scores, revealed)}, nil
	})
}

// boardView loads the pieces of a return_to_board broadcast.
func (e *Engine) boardView(ctx context.Context, gameID uuid.UUID) (map[int]int, []int64, error) {
	scores, err := e.state.Scores(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	revealed, err := e.state.Revealed(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	return scores, revealed, nil
}
