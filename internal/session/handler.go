package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/engine"
	"github.com/quizgrid/coordinator/internal/event"
)

// command is the inbound frame envelope. Only the fields a given type
// uses are populated; absent ones decode to zero values and the engine
// validates them.
type command struct {
	Type         string          `json:"type"`
	PlayerNumber int             `json:"player_number"`
	Timestamp    int64           `json:"timestamp"`
	UnlockToken  json.RawMessage `json:"unlock_token"`
	ClueID       int64           `json:"clue_id"`
	Correct      bool            `json:"correct"`
	Value        int             `json:"value"`
	Adjustment   int             `json:"adjustment"`
	Round        string          `json:"round"`
	Wager        int             `json:"wager"`
	Answer       string          `json:"answer"`
}

// unlockToken normalizes the buzz token. Clients send it either as a
// JSON string or as a bare integer; integers pass through as their
// literal digits so large values survive without a float round trip.
func (c *command) unlockToken() string {
	raw := bytes.TrimSpace(c.UnlockToken)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// handleMessage decodes and dispatches one inbound frame. Failures of
// any kind, panics included, answer the sender with an error frame;
// the session stays open.
func (s *Server) handleMessage(ctx context.Context, c *Client, gameID uuid.UUID, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "game_id", gameID, "panic", r)
			c.Send(event.Error("Internal server error"))
		}
	}()

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.Send(event.Error("Invalid message format"))
		return
	}

	events, err := s.dispatch(ctx, gameID, &cmd)
	if err != nil {
		var rej *engine.RejectError
		if errors.As(err, &rej) {
			slog.Debug("command rejected", "game_id", gameID, "type", cmd.Type, "reason", rej.Message)
			c.Send(event.Error(rej.Message))
		} else {
			slog.Error("command failed", "game_id", gameID, "type", cmd.Type, "error", err)
			c.Send(event.Error(err.Error()))
		}
		return
	}

	s.hub.Broadcast(gameID, events)
}

// dispatch routes a decoded frame to its engine operation.
func (s *Server) dispatch(ctx context.Context, gameID uuid.UUID, cmd *command) ([]event.Event, error) {
	switch cmd.Type {
	case "buzz":
		return s.engine.HandleBuzz(ctx, gameID, cmd.PlayerNumber, cmd.Timestamp, cmd.unlockToken())
	case "reveal_clue":
		return s.engine.RevealClue(ctx, gameID, cmd.ClueID)
	case "enable_buzzer":
		return s.engine.EnableBuzzer(ctx, gameID)
	case "judge_answer":
		return s.engine.JudgeAnswer(ctx, gameID, cmd.PlayerNumber, cmd.Correct, cmd.Value)
	case "next_clue":
		return s.engine.NextClue(ctx, gameID)
	case "reset_game":
		return s.engine.ResetGame(ctx, gameID)
	case "adjust_score":
		return s.engine.AdjustScore(ctx, gameID, cmd.PlayerNumber, cmd.Adjustment)
	case "start_round":
		return s.engine.StartRound(ctx, gameID, cmd.Round)
	case "reveal_daily_double":
		return s.engine.RevealDailyDouble(ctx, gameID)
	case "submit_wager":
		return s.engine.SubmitWager(ctx, gameID, cmd.PlayerNumber, cmd.Wager)
	case "show_dd_clue":
		return s.engine.ShowDDClue(ctx, gameID)
	case "submit_dd_answer":
		return s.engine.SubmitDDAnswer(ctx, gameID, cmd.PlayerNumber, cmd.Answer)
	case "judge_dd_answer":
		return s.engine.JudgeDDAnswer(ctx, gameID, cmd.PlayerNumber, cmd.Correct)
	case "start_final_jeopardy":
		return s.engine.StartFinalJeopardy(ctx, gameID)
	case "submit_fj_wager":
		return s.engine.SubmitFJWager(ctx, gameID, cmd.PlayerNumber, cmd.Wager)
	case "reveal_fj_clue":
		return s.engine.RevealFJClue(ctx, gameID)
	case "start_fj_timer":
		return s.engine.StartFJTimer(ctx, gameID)
	case "submit_fj_answer":
		return s.engine.SubmitFJAnswer(ctx, gameID, cmd.PlayerNumber, cmd.Answer)
	case "judge_fj_answer":
		return s.engine.JudgeFJAnswer(ctx, gameID, cmd.PlayerNumber, cmd.Correct)
	case "end_game":
		return s.engine.EndGame(ctx, gameID)
	case "abandon_game":
		return s.engine.AbandonGame(ctx, gameID)
	default:
		return nil, &engine.RejectError{Message: fmt.Sprintf("Unknown message type: %s", cmd.Type)}
	}
}
