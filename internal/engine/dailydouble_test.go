package engine

import (
	"context"
	"errors"
	"testing"
)

func TestDailyDouble_FullFlow(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.state.state["current_player"] = "2"
	f.state.scores[2] = 300

	events, err := f.engine.RevealClue(ctx, f.gameID, 99)
	if err != nil {
		t.Fatalf("RevealClue(dd) error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "daily_double_detected" {
		t.Fatalf("events = %v; want one daily_double_detected", events)
	}
	if events[0]["player_number"] != 2 {
		t.Errorf("detected player = %v; want 2", events[0]["player_number"])
	}
	if _, leaked := events[0]["clue"]; leaked {
		t.Error("daily_double_detected carries clue content; must stay hidden")
	}
	if f.state.dd["stage"] != ddStageDetected || f.state.dd["clue_id"] != "99" {
		t.Errorf("dd state = %v; want detected clue 99", f.state.dd)
	}

	events, err = f.engine.RevealDailyDouble(ctx, f.gameID)
	if err != nil {
		t.Fatalf("RevealDailyDouble() error = %v", err)
	}
	if events[0].Type() != "daily_double_revealed" {
		t.Fatalf("events = %v; want daily_double_revealed", events)
	}
	if _, leaked := events[0]["clue"]; leaked {
		t.Error("daily_double_revealed carries clue content; must stay hidden")
	}

	events, err = f.engine.SubmitWager(ctx, f.gameID, 2, 800)
	if err != nil {
		t.Fatalf("SubmitWager() error = %v", err)
	}
	if events[0].Type() != "wager_submitted" || events[0]["wager"] != 800 {
		t.Errorf("events = %v; want wager_submitted 800", events)
	}
	if f.state.dd["stage"] != ddStageWagering || f.state.dd["wager"] != "800" {
		t.Errorf("dd state = %v; want wagering 800", f.state.dd)
	}

	events, err = f.engine.ShowDDClue(ctx, f.gameID)
	if err != nil {
		t.Fatalf("ShowDDClue() error = %v", err)
	}
	clue, ok := events[0]["clue"].(map[string]any)
	if !ok {
		t.Fatal("dd_clue_shown missing clue payload")
	}
	if clue["question"] != "Q99" || clue["category"] != "Science" {
		t.Errorf("clue payload = %v; want Q99/Science", clue)
	}
	if f.state.dd["stage"] != ddStageAnswering {
		t.Errorf("dd stage = %q; want answering", f.state.dd["stage"])
	}

	events, err = f.engine.SubmitDDAnswer(ctx, f.gameID, 2, "what is go")
	if err != nil {
		t.Fatalf("SubmitDDAnswer() error = %v", err)
	}
	if events[0].Type() != "dd_answer_submitted" || events[0]["answer"] != "what is go" {
		t.Errorf("events = %v; want dd_answer_submitted", events)
	}

	events, err = f.engine.JudgeDDAnswer(ctx, f.gameID, 2, true)
	if err != nil {
		t.Fatalf("JudgeDDAnswer() error = %v", err)
	}
	if events[0].Type() != "dd_answer_judged" || events[0]["new_score"] != 1100 {
		t.Errorf("events = %v; want dd_answer_judged new_score 1100", events)
	}
	if f.state.scores[2] != 1100 {
		t.Errorf("score = %d; want 1100", f.state.scores[2])
	}
	if f.state.dd["stage"] != ddStageJudged {
		t.Errorf("dd stage = %q; want judged", f.state.dd["stage"])
	}
	if f.state.state["current_player"] != "2" {
		t.Errorf("current_player = %q; want 2", f.state.state["current_player"])
	}
	if len(f.writer.resolves) != 1 {
		t.Fatalf("resolves = %v; want one", f.writer.resolves)
	}
	res := f.writer.resolves[0]
	if res.clueID != 99 || res.winner == nil || *res.winner != 2 || res.correct == nil || !*res.correct {
		t.Errorf("resolve = %+v; want clue 99 winner 2 correct", res)
	}

	// next_clue sweeps the daily double scratch away.
	if _, err := f.engine.NextClue(ctx, f.gameID); err != nil {
		t.Fatalf("NextClue() error = %v", err)
	}
	if len(f.state.dd) != 0 {
		t.Errorf("dd state = %v; want cleared", f.state.dd)
	}
	f.checkLocksReleased(t)
}

func TestDailyDouble_WagerValidation(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.state.state["current_player"] = "2"
	f.state.scores[2] = 300
	if _, err := f.engine.RevealClue(ctx, f.gameID, 99); err != nil {
		t.Fatalf("RevealClue(dd) error = %v", err)
	}

	// Only the detected player may wager.
	_, err := f.engine.SubmitWager(ctx, f.gameID, 3, 500)
	mustReject(t, err, "Only player 2")

	_, err = f.engine.SubmitWager(ctx, f.gameID, 2, 4)
	var rej *RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v; want RejectError", err)
	}
	if rej.Message != "Wager must be at least $5" {
		t.Errorf("message = %q; want %q", rej.Message, "Wager must be at least $5")
	}

	// Score 300 in the single round caps at the round's 1000.
	_, err = f.engine.SubmitWager(ctx, f.gameID, 2, 1001)
	mustReject(t, err, "Wager cannot exceed $1000")

	// A wager straight after detection is fine; the reveal prompt is
	// not a prerequisite.
	events, err := f.engine.SubmitWager(ctx, f.gameID, 2, 800)
	if err != nil {
		t.Fatalf("SubmitWager() error = %v", err)
	}
	if events[0].Type() != "wager_submitted" {
		t.Fatalf("events = %v; want wager_submitted", events)
	}

	_, err = f.engine.SubmitWager(ctx, f.gameID, 2, 700)
	mustReject(t, err, "Wagering is closed")
}

func TestDailyDouble_WagerBoundaries(t *testing.T) {
	t.Run("exact minimum", func(t *testing.T) {
		f := newFixture(t, 2)
		f.state.state["current_player"] = "1"
		if _, err := f.engine.RevealClue(context.Background(), f.gameID, 99); err != nil {
			t.Fatalf("RevealClue(dd) error = %v", err)
		}
		if _, err := f.engine.SubmitWager(context.Background(), f.gameID, 1, 5); err != nil {
			t.Errorf("SubmitWager(5) error = %v; want accepted", err)
		}
	})

	t.Run("score raises the cap", func(t *testing.T) {
		f := newFixture(t, 2)
		f.state.state["current_player"] = "1"
		f.state.scores[1] = 1500
		if _, err := f.engine.RevealClue(context.Background(), f.gameID, 99); err != nil {
			t.Fatalf("RevealClue(dd) error = %v", err)
		}
		if _, err := f.engine.SubmitWager(context.Background(), f.gameID, 1, 1500); err != nil {
			t.Errorf("SubmitWager(1500) error = %v; want accepted at exact max", err)
		}
	})

	t.Run("double round cap", func(t *testing.T) {
		f := newFixture(t, 2)
		f.state.state["current_round"] = "double"
		f.state.state["current_player"] = "1"
		if _, err := f.engine.RevealClue(context.Background(), f.gameID, 99); err != nil {
			t.Fatalf("RevealClue(dd) error = %v", err)
		}
		if _, err := f.engine.SubmitWager(context.Background(), f.gameID, 1, 2000); err != nil {
			t.Errorf("SubmitWager(2000) error = %v; want accepted in double round", err)
		}
	})

	t.Run("negative score keeps the round cap", func(t *testing.T) {
		f := newFixture(t, 2)
		f.state.state["current_player"] = "1"
		f.state.scores[1] = -600
		if _, err := f.engine.RevealClue(context.Background(), f.gameID, 99); err != nil {
			t.Fatalf("RevealClue(dd) error = %v", err)
		}
		if _, err := f.engine.SubmitWager(context.Background(), f.gameID, 1, 1000); err != nil {
			t.Errorf("SubmitWager(1000) error = %v; want round cap despite debt", err)
		}
	})
}

func TestDailyDouble_StageGating(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	// Nothing detected yet.
	_, err := f.engine.RevealDailyDouble(ctx, f.gameID)
	mustReject(t, err, "No daily double in play")
	_, err = f.engine.ShowDDClue(ctx, f.gameID)
	mustReject(t, err, "No daily double in play")

	f.state.state["current_player"] = "2"
	if _, err := f.engine.RevealClue(ctx, f.gameID, 99); err != nil {
		t.Fatalf("RevealClue(dd) error = %v", err)
	}

	_, err = f.engine.ShowDDClue(ctx, f.gameID)
	mustReject(t, err, "No wager locked in")
	_, err = f.engine.SubmitDDAnswer(ctx, f.gameID, 2, "early")
	mustReject(t, err, "Answers are not open")
	_, err = f.engine.JudgeDDAnswer(ctx, f.gameID, 2, true)
	mustReject(t, err, "Nothing to judge")

	if _, err := f.engine.RevealDailyDouble(ctx, f.gameID); err != nil {
		t.Fatalf("RevealDailyDouble() error = %v", err)
	}
	_, err = f.engine.RevealDailyDouble(ctx, f.gameID)
	mustReject(t, err, "already revealed")

	if _, err := f.engine.SubmitWager(ctx, f.gameID, 2, 100); err != nil {
		t.Fatalf("SubmitWager() error = %v", err)
	}
	if _, err := f.engine.ShowDDClue(ctx, f.gameID); err != nil {
		t.Fatalf("ShowDDClue() error = %v", err)
	}

	_, err = f.engine.SubmitDDAnswer(ctx, f.gameID, 1, "not mine")
	mustReject(t, err, "Only player 2")
	_, err = f.engine.JudgeDDAnswer(ctx, f.gameID, 3, true)
	mustReject(t, err, "not the daily double player")
}
