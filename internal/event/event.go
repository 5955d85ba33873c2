// Package event defines the outbound frame vocabulary of the coordinator.
// Every broadcast is a flat JSON object with a "type" discriminator;
// clients filter by role, the server never tailors broadcast payloads.
package event

import (
	"strconv"

	"github.com/quizgrid/coordinator/internal/buzzer"
	"github.com/quizgrid/coordinator/internal/model"
)

// Event is one outbound frame.
type Event map[string]any

// Type returns the frame's type discriminator.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// stringKeyed serializes seat-keyed maps with string keys. JSON objects
// cannot carry integer keys, and clients on loosely typed runtimes
// round-trip these maps verbatim.
func stringKeyed[V any](m map[int]V) map[string]V {
	out := make(map[string]V, len(m))
	for seat, v := range m {
		out[strconv.Itoa(seat)] = v
	}
	return out
}

// cluePayload is the full clue as broadcast once content may be shown.
func cluePayload(clue *model.Clue, category string) map[string]any {
	return map[string]any{
		"id":              clue.ID,
		"question":        clue.Question,
		"answer":          clue.Answer,
		"value":           clue.Value,
		"is_daily_double": clue.DailyDouble,
		"category":        category,
	}
}

// ConnectionEstablished is sent to a joining client only.
func ConnectionEstablished(gameID string, state map[string]string, scores map[int]int, names map[int]string, currentPlayer string) Event {
	return Event{
		"type":           "connection_established",
		"game_id":        gameID,
		"state":          state,
		"scores":         stringKeyed(scores),
		"names":          stringKeyed(names),
		"current_player": currentPlayer,
	}
}

// Error is a per-client failure frame. Never broadcast.
func Error(message string) Event {
	return Event{"type": "error", "message": message}
}

func ClueRevealed(clue *model.Clue, category string) Event {
	return Event{"type": "clue_revealed", "clue": cluePayload(clue, category)}
}

func BuzzerEnabled(unlockToken int64) Event {
	return Event{"type": "buzzer_enabled", "unlock_token": unlockToken}
}

// BuzzResult carries accepts and rejections alike; position tells them
// apart.
func BuzzResult(seat int, res buzzer.Result) Event {
	return Event{
		"type":               "buzz_result",
		"player_number":      seat,
		"accepted":           res.Accepted,
		"winner":             res.Winner,
		"position":           res.Position,
		"server_timestamp":   res.ServerTimestampUS,
		"cooldown":           res.Cooldown,
		"cooldown_remaining": res.CooldownRemaining,
	}
}

func AnswerJudged(seat int, correct bool, value, newScore int) Event {
	return Event{
		"type":          "answer_judged",
		"player_number": seat,
		"correct":       correct,
		"value":         value,
		"new_score":     newScore,
	}
}

// AnswerJudgedExhausted closes a clue nobody answered: the last wrong
// judgment plus the revealed correct answer.
func AnswerJudgedExhausted(seat int, value, newScore int, correctAnswer string) Event {
	return Event{
		"type":           "answer_judged",
		"player_number":  seat,
		"correct":        false,
		"value":          value,
		"new_score":      newScore,
		"clue_exhausted": true,
		"correct_answer": correctAnswer,
	}
}

func ReturnToBoard(scores map[int]int, revealedClues []int64) Event {
	if revealedClues == nil {
		revealedClues = []int64{}
	}
	return Event{
		"type":           "return_to_board",
		"scores":         stringKeyed(scores),
		"revealed_clues": revealedClues,
	}
}

func PlayerJoined(seat int, playerName string) Event {
	return Event{
		"type":          "player_joined",
		"player_number": seat,
		"player_name":   playerName,
	}
}

func GameReset(scores map[int]int, names map[int]string) Event {
	return Event{
		"type":   "game_reset",
		"scores": stringKeyed(scores),
		"names":  stringKeyed(names),
	}
}

func ScoreAdjusted(seat, adjustment, newScore int) Event {
	return Event{
		"type":          "score_adjusted",
		"player_number": seat,
		"adjustment":    adjustment,
		"new_score":     newScore,
	}
}

func RoundChanged(round model.Round, currentPlayer string) Event {
	return Event{
		"type":           "round_changed",
		"round":          string(round),
		"current_player": currentPlayer,
	}
}

// DailyDoubleDetected deliberately carries no clue content: the wagering
// player must commit before seeing the clue.
func DailyDoubleDetected(seat int) Event {
	return Event{"type": "daily_double_detected", "player_number": seat}
}

// DailyDoubleRevealed prompts the wager. Clue content is still withheld.
func DailyDoubleRevealed(seat int) Event {
	return Event{"type": "daily_double_revealed", "player_number": seat}
}

func WagerSubmitted(seat, wager int) Event {
	return Event{"type": "wager_submitted", "player_number": seat, "wager": wager}
}

func DDClueShown(clue *model.Clue, category string) Event {
	return Event{"type": "dd_clue_shown", "clue": cluePayload(clue, category)}
}

func DDAnswerSubmitted(seat int, answer string) Event {
	return Event{"type": "dd_answer_submitted", "player_number": seat, "answer": answer}
}

func DDAnswerJudged(seat int, correct bool, wager, newScore int) Event {
	return Event{
		"type":          "dd_answer_judged",
		"player_number": seat,
		"correct":       correct,
		"wager":         wager,
		"new_score":     newScore,
	}
}

func FJCategoryShown(category string) Event {
	return Event{"type": "fj_category_shown", "category": category}
}

func FJWagerSubmitted(seat, wager int) Event {
	return Event{"type": "fj_wager_submitted", "player_number": seat, "wager": wager}
}

func FJClueRevealed(clue *model.Clue, category string) Event {
	return Event{"type": "fj_clue_revealed", "clue": cluePayload(clue, category)}
}

// FJTimerStarted announces the answer window. The server never enforces
// it; clients render the countdown.
func FJTimerStarted(durationSecs int) Event {
	return Event{"type": "fj_timer_started", "duration": durationSecs}
}

func FJAnswerSubmitted(seat int, answer string) Event {
	return Event{"type": "fj_answer_submitted", "player_number": seat, "answer": answer}
}

func FJAnswerJudged(seat int, correct bool, wager, newScore int) Event {
	return Event{
		"type":          "fj_answer_judged",
		"player_number": seat,
		"correct":       correct,
		"wager":         wager,
		"new_score":     newScore,
	}
}

func GameCompleted(finalScores map[int]int) Event {
	return Event{"type": "game_completed", "final_scores": stringKeyed(finalScores)}
}

func GameAbandoned(finalScores map[int]int) Event {
	return Event{"type": "game_abandoned", "final_scores": stringKeyed(finalScores)}
}
