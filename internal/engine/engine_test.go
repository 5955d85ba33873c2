package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/buzzer"
	"github.com/quizgrid/coordinator/internal/event"
	"github.com/quizgrid/coordinator/internal/model"
)

// fakeState keeps a single game's live state in plain maps.
type fakeState struct {
	state       map[string]string
	scores      map[int]int
	names       map[int]string
	revealed    []int64
	ddClues     map[int64]bool
	dd          map[string]string
	fj          map[string]string
	fjWagers    map[int]int
	fjAnswers   map[int]string
	fjJudgments map[int]bool
	attempted   []int

	materialized bool
	touched      int
	openLocks    int
	lockSeq      int
}

func newFakeState() *fakeState {
	return &fakeState{
		state:       map[string]string{},
		scores:      map[int]int{},
		names:       map[int]string{},
		ddClues:     map[int64]bool{},
		dd:          map[string]string{},
		fj:          map[string]string{},
		fjWagers:    map[int]int{},
		fjAnswers:   map[int]string{},
		fjJudgments: map[int]bool{},
	}
}

func (s *fakeState) Exists(context.Context, uuid.UUID) (bool, error) { return s.materialized, nil }

func (s *fakeState) Touch(context.Context, uuid.UUID) error {
	s.touched++
	return nil
}

func (s *fakeState) MaterializeGame(_ context.Context, _ uuid.UUID, state map[string]string, names map[int]string, ddClues []int64) error {
	s.state = state
	for seat, name := range names {
		s.names[seat] = name
		s.scores[seat] = 0
	}
	for _, id := range ddClues {
		s.ddClues[id] = true
	}
	s.materialized = true
	return nil
}

func (s *fakeState) State(context.Context, uuid.UUID) (map[string]string, error) {
	out := make(map[string]string, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) SetState(_ context.Context, _ uuid.UUID, fields map[string]string) error {
	for k, v := range fields {
		s.state[k] = v
	}
	return nil
}

func (s *fakeState) Scores(context.Context, uuid.UUID) (map[int]int, error) {
	out := make(map[int]int, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) SetScore(_ context.Context, _ uuid.UUID, seat, score int) error {
	s.scores[seat] = score
	return nil
}

func (s *fakeState) IncrScore(_ context.Context, _ uuid.UUID, seat, delta int) (int, error) {
	s.scores[seat] += delta
	return s.scores[seat], nil
}

func (s *fakeState) Names(context.Context, uuid.UUID) (map[int]string, error) {
	out := make(map[int]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) AddRevealed(_ context.Context, _ uuid.UUID, clueID int64) error {
	s.revealed = append(s.revealed, clueID)
	return nil
}

func (s *fakeState) IsRevealed(_ context.Context, _ uuid.UUID, clueID int64) (bool, error) {
	for _, id := range s.revealed {
		if id == clueID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeState) Revealed(context.Context, uuid.UUID) ([]int64, error) {
	return append([]int64(nil), s.revealed...), nil
}

func (s *fakeState) ClearRevealed(context.Context, uuid.UUID) error {
	s.revealed = nil
	return nil
}

func (s *fakeState) IsDailyDouble(_ context.Context, _ uuid.UUID, clueID int64) (bool, error) {
	return s.ddClues[clueID], nil
}

func (s *fakeState) SetDD(_ context.Context, _ uuid.UUID, fields map[string]string) error {
	for k, v := range fields {
		s.dd[k] = v
	}
	return nil
}

func (s *fakeState) DD(context.Context, uuid.UUID) (map[string]string, error) {
	out := make(map[string]string, len(s.dd))
	for k, v := range s.dd {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) ClearDD(context.Context, uuid.UUID) error {
	s.dd = map[string]string{}
	return nil
}

func (s *fakeState) SetFJ(_ context.Context, _ uuid.UUID, fields map[string]string) error {
	for k, v := range fields {
		s.fj[k] = v
	}
	return nil
}

func (s *fakeState) FJ(context.Context, uuid.UUID) (map[string]string, error) {
	out := make(map[string]string, len(s.fj))
	for k, v := range s.fj {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) SetFJWager(_ context.Context, _ uuid.UUID, seat, wager int) error {
	s.fjWagers[seat] = wager
	return nil
}

func (s *fakeState) FJWagers(context.Context, uuid.UUID) (map[int]int, error) {
	out := make(map[int]int, len(s.fjWagers))
	for k, v := range s.fjWagers {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) SetFJAnswer(_ context.Context, _ uuid.UUID, seat int, answer string) error {
	s.fjAnswers[seat] = answer
	return nil
}

func (s *fakeState) SetFJJudgment(_ context.Context, _ uuid.UUID, seat int, correct bool) error {
	s.fjJudgments[seat] = correct
	return nil
}

func (s *fakeState) FJJudgments(context.Context, uuid.UUID) (map[int]bool, error) {
	out := make(map[int]bool, len(s.fjJudgments))
	for k, v := range s.fjJudgments {
		out[k] = v
	}
	return out, nil
}

func (s *fakeState) ClearFJ(context.Context, uuid.UUID) error {
	s.fj = map[string]string{}
	s.fjWagers = map[int]int{}
	s.fjAnswers = map[int]string{}
	s.fjJudgments = map[int]bool{}
	return nil
}

func (s *fakeState) Attempted(context.Context, uuid.UUID) ([]int, error) {
	return append([]int(nil), s.attempted...), nil
}

func (s *fakeState) AddAttempted(_ context.Context, _ uuid.UUID, seat int) error {
	for _, have := range s.attempted {
		if have == seat {
			return nil
		}
	}
	s.attempted = append(s.attempted, seat)
	return nil
}

func (s *fakeState) AcquireLock(context.Context, uuid.UUID) (string, error) {
	s.openLocks++
	s.lockSeq++
	return "lock-token", nil
}

func (s *fakeState) ReleaseLock(context.Context, uuid.UUID, string) error {
	s.openLocks--
	return nil
}

// fakeBuzzer hands back scripted results and counts control calls.
type fakeBuzzer struct {
	token   int64
	resets  int
	retries int
	results []buzzer.Result
	buzzes  []int
}

func (f *fakeBuzzer) HandleBuzz(_ context.Context, _ uuid.UUID, seat int, _ int64, _ string) (buzzer.Result, error) {
	f.buzzes = append(f.buzzes, seat)
	if len(f.results) == 0 {
		return buzzer.Result{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeBuzzer) Enable(context.Context, uuid.UUID) (int64, error) {
	f.token++
	return f.token, nil
}

func (f *fakeBuzzer) ClearForRetry(context.Context, uuid.UUID) (int64, error) {
	f.retries++
	f.token++
	return f.token, nil
}

func (f *fakeBuzzer) Reset(context.Context, uuid.UUID) error {
	f.resets++
	return nil
}

// fakeCatalog serves a fixed episode from memory.
type fakeCatalog struct {
	episodeID  int64
	clues      map[int64]*model.Clue
	categories map[int64]string
	finalCat   string
	finalClue  *model.Clue
	ddPicks    []int64
}

func (f *fakeCatalog) Clue(_ context.Context, clueID int64) (*model.Clue, string, error) {
	return f.clues[clueID], f.categories[clueID], nil
}

func (f *fakeCatalog) ClueBelongsToEpisode(_ context.Context, clueID, episodeID int64) (bool, error) {
	_, ok := f.clues[clueID]
	return ok && episodeID == f.episodeID, nil
}

func (f *fakeCatalog) FinalClue(_ context.Context, _ int64) (string, *model.Clue, error) {
	return f.finalCat, f.finalClue, nil
}

func (f *fakeCatalog) PickDailyDoubles(_ context.Context, _ int64) ([]int64, error) {
	return f.ddPicks, nil
}

type fakeGames struct {
	game   *model.Game
	rounds []model.Round
}

func (f *fakeGames) Get(context.Context, uuid.UUID) (*model.Game, error) { return f.game, nil }

func (f *fakeGames) MarkEnded(_ context.Context, _ uuid.UUID, status model.GameStatus) error {
	now := time.Now()
	f.game.Status = status
	f.game.EndedAt = &now
	return nil
}

func (f *fakeGames) UpdateRound(_ context.Context, _ uuid.UUID, round model.Round) error {
	f.game.CurrentRound = round
	f.rounds = append(f.rounds, round)
	return nil
}

type fakeRoster struct {
	participants []model.Participant
}

func (f *fakeRoster) ListByGame(context.Context, uuid.UUID) ([]model.Participant, error) {
	return f.participants, nil
}

func (f *fakeRoster) CountByGame(context.Context, uuid.UUID) (int, error) {
	return len(f.participants), nil
}

type mirrorCall struct {
	seat, score int
}

type resolveCall struct {
	clueID  int64
	winner  *int
	correct *bool
}

// fakeWriter records every persistence intent.
type fakeWriter struct {
	mirrors      []mirrorCall
	persisted    map[int]int
	persistCalls int
	resets       int
	finalWagers  map[int]int
	actions      []string
	reveals      []int64
	resolves     []resolveCall
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{persisted: map[int]int{}, finalWagers: map[int]int{}}
}

func (f *fakeWriter) MirrorScore(_ context.Context, _ uuid.UUID, seat, score int) {
	f.mirrors = append(f.mirrors, mirrorCall{seat: seat, score: score})
}

func (f *fakeWriter) PersistAll(_ context.Context, _ uuid.UUID, scores map[int]int) error {
	f.persistCalls++
	for seat, score := range scores {
		f.persisted[seat] = score
	}
	return nil
}

func (f *fakeWriter) ResetAll(context.Context, uuid.UUID) { f.resets++ }

func (f *fakeWriter) SetFinalWager(_ context.Context, _ uuid.UUID, seat, wager int) {
	f.finalWagers[seat] = wager
}

func (f *fakeWriter) RecordAction(_ uuid.UUID, _ int, actionType string, _ map[string]any, _ int64) {
	f.actions = append(f.actions, actionType)
}

func (f *fakeWriter) RecordClueReveal(_ uuid.UUID, clueID int64, _ string) {
	f.reveals = append(f.reveals, clueID)
}

func (f *fakeWriter) ResolveClueReveal(_ uuid.UUID, clueID int64, winner *int, correct *bool) {
	f.resolves = append(f.resolves, resolveCall{clueID: clueID, winner: winner, correct: correct})
}

type fixture struct {
	engine  *Engine
	state   *fakeState
	buzz    *fakeBuzzer
	catalog *fakeCatalog
	games   *fakeGames
	roster  *fakeRoster
	writer  *fakeWriter
	gameID  uuid.UUID
}

// newFixture materializes an active single-round game with the given
// number of seats. Clue 99 is the session's daily double.
func newFixture(t *testing.T, seats int) *fixture {
	t.Helper()
	const episodeID = 7

	names := []string{"Alice", "Bob", "Cara", "Dan", "Eve", "Finn"}
	roster := &fakeRoster{}
	for i := 0; i < seats; i++ {
		roster.participants = append(roster.participants, model.Participant{
			ID:         int64(i + 1),
			Seat:       i + 1,
			PlayerName: names[i],
		})
	}

	f := &fixture{
		state: newFakeState(),
		buzz:  &fakeBuzzer{},
		catalog: &fakeCatalog{
			episodeID: episodeID,
			clues: map[int64]*model.Clue{
				10:  {ID: 10, Value: 200, Question: "Q10", Answer: "A10"},
				20:  {ID: 20, Value: 400, Question: "Q20", Answer: "A20"},
				30:  {ID: 30, Value: 600, Question: "Q30", Answer: "A30"},
				99:  {ID: 99, Value: 800, Question: "Q99", Answer: "A99"},
				500: {ID: 500, Question: "FQ", Answer: "FA"},
			},
			categories: map[int64]string{
				10: "History", 20: "History", 30: "Science", 99: "Science", 500: "Finale",
			},
			finalCat:  "Finale",
			finalClue: &model.Clue{ID: 500, Question: "FQ", Answer: "FA"},
			ddPicks:   []int64{99},
		},
		games: &fakeGames{game: &model.Game{
			ID:           uuid.New(),
			EpisodeID:    episodeID,
			Status:       model.StatusActive,
			CurrentRound: model.RoundSingle,
		}},
		roster: roster,
		writer: newFakeWriter(),
	}
	f.gameID = f.games.game.ID
	f.engine = New(f.state, f.buzz, f.catalog, f.games, f.roster, f.writer)

	if err := f.engine.Materialize(context.Background(), f.gameID); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	return f
}

func mustReject(t *testing.T, err error, wantSub string) {
	t.Helper()
	var rej *RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v; want RejectError", err)
	}
	if wantSub != "" && !strings.Contains(rej.Message, wantSub) {
		t.Errorf("reject message = %q; want containing %q", rej.Message, wantSub)
	}
}

func (f *fixture) checkLocksReleased(t *testing.T) {
	t.Helper()
	if f.state.openLocks != 0 {
		t.Errorf("open advisory locks = %d; want 0", f.state.openLocks)
	}
}

func TestEngine_MaterializeOncePerGame(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if f.state.state["episode_id"] != "7" {
		t.Errorf("episode_id = %q; want 7", f.state.state["episode_id"])
	}
	if f.state.state["status"] != "active" || f.state.state["current_round"] != "single" {
		t.Errorf("state = %v; want active single", f.state.state)
	}
	for seat := 1; seat <= 3; seat++ {
		if got := f.state.scores[seat]; got != 0 {
			t.Errorf("seat %d score = %d; want 0", seat, got)
		}
	}
	if f.state.names[1] != "Alice" || f.state.names[3] != "Cara" {
		t.Errorf("names = %v; want seeded names", f.state.names)
	}
	if !f.state.ddClues[99] {
		t.Error("daily double 99 not stored")
	}

	// A second connect only refreshes the retention window.
	if err := f.engine.Materialize(ctx, f.gameID); err != nil {
		t.Fatalf("second Materialize() error = %v", err)
	}
	if f.state.touched != 1 {
		t.Errorf("touched = %d; want 1", f.state.touched)
	}
	f.checkLocksReleased(t)
}

func TestEngine_RevealClue(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	events, err := f.engine.RevealClue(ctx, f.gameID, 10)
	if err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "clue_revealed" {
		t.Fatalf("events = %v; want one clue_revealed", events)
	}
	clue, ok := events[0]["clue"].(map[string]any)
	if !ok {
		t.Fatal("clue_revealed missing clue payload")
	}
	if clue["question"] != "Q10" || clue["answer"] != "A10" || clue["category"] != "History" {
		t.Errorf("clue payload = %v; want Q10/A10/History", clue)
	}
	if f.state.state["current_clue"] != "10" {
		t.Errorf("current_clue = %q; want 10", f.state.state["current_clue"])
	}
	if f.buzz.resets != 1 {
		t.Errorf("buzzer resets = %d; want 1", f.buzz.resets)
	}
	if len(f.writer.reveals) != 1 || f.writer.reveals[0] != 10 {
		t.Errorf("recorded reveals = %v; want [10]", f.writer.reveals)
	}

	// A second reveal while the first is open is refused.
	_, err = f.engine.RevealClue(ctx, f.gameID, 20)
	mustReject(t, err, "already in play")

	// After returning to the board the same clue stays spent.
	if _, err := f.engine.NextClue(ctx, f.gameID); err != nil {
		t.Fatalf("NextClue() error = %v", err)
	}
	_, err = f.engine.RevealClue(ctx, f.gameID, 10)
	mustReject(t, err, "already revealed")

	_, err = f.engine.RevealClue(ctx, f.gameID, 777)
	mustReject(t, err, "Unknown clue")
	f.checkLocksReleased(t)
}

func TestEngine_EnableBuzzer(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.engine.EnableBuzzer(ctx, f.gameID)
	mustReject(t, err, "No clue in play")

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	events, err := f.engine.EnableBuzzer(ctx, f.gameID)
	if err != nil {
		t.Fatalf("EnableBuzzer() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "buzzer_enabled" {
		t.Fatalf("events = %v; want one buzzer_enabled", events)
	}
	if got := events[0]["unlock_token"].(int64); got != 1 {
		t.Errorf("unlock_token = %d; want 1", got)
	}
}

func TestEngine_EnableBuzzerDuringDailyDouble(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if _, err := f.engine.RevealClue(ctx, f.gameID, 99); err != nil {
		t.Fatalf("RevealClue(dd) error = %v", err)
	}
	_, err := f.engine.EnableBuzzer(ctx, f.gameID)
	mustReject(t, err, "Daily double")
}

func TestEngine_HandleBuzz(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	if _, err := f.engine.EnableBuzzer(ctx, f.gameID); err != nil {
		t.Fatalf("EnableBuzzer() error = %v", err)
	}

	f.buzz.results = []buzzer.Result{
		{Accepted: true, Position: 1, Winner: 1, ServerTimestampUS: 1_000_000},
		{Accepted: true, Position: 2, Winner: 1, ServerTimestampUS: 1_000_050},
	}

	first, err := f.engine.HandleBuzz(ctx, f.gameID, 1, 999, "1")
	if err != nil {
		t.Fatalf("HandleBuzz(1) error = %v", err)
	}
	if first[0]["position"] != 1 || first[0]["winner"] != 1 || first[0]["accepted"] != true {
		t.Errorf("first result = %v; want accepted position 1 winner 1", first[0])
	}

	second, err := f.engine.HandleBuzz(ctx, f.gameID, 2, 999, "1")
	if err != nil {
		t.Fatalf("HandleBuzz(2) error = %v", err)
	}
	if second[0]["position"] != 2 || second[0]["winner"] != 1 {
		t.Errorf("second result = %v; want position 2 winner 1", second[0])
	}

	_, err = f.engine.HandleBuzz(ctx, f.gameID, 9, 999, "1")
	mustReject(t, err, "Invalid player number")
}

func TestEngine_JudgeAnswerCorrect(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	events, err := f.engine.JudgeAnswer(ctx, f.gameID, 1, true, 200)
	if err != nil {
		t.Fatalf("JudgeAnswer() error = %v", err)
	}
	if len(events) != 2 || events[0].Type() != "answer_judged" || events[1].Type() != "return_to_board" {
		t.Fatalf("events = %v; want answer_judged then return_to_board", events)
	}
	if events[0]["new_score"] != 200 || events[0]["correct"] != true {
		t.Errorf("answer_judged = %v; want new_score 200 correct", events[0])
	}
	if got := events[1]["scores"].(map[string]int)["1"]; got != 200 {
		t.Errorf("board scores[1] = %d; want 200", got)
	}

	if f.state.state["current_player"] != "1" {
		t.Errorf("current_player = %q; want 1", f.state.state["current_player"])
	}
	if f.state.state["current_clue"] != "" {
		t.Errorf("current_clue = %q; want empty", f.state.state["current_clue"])
	}
	if len(f.writer.mirrors) != 1 || f.writer.mirrors[0] != (mirrorCall{seat: 1, score: 200}) {
		t.Errorf("mirrors = %v; want [{1 200}]", f.writer.mirrors)
	}
	if len(f.writer.resolves) != 1 {
		t.Fatalf("resolves = %v; want one", f.writer.resolves)
	}
	res := f.writer.resolves[0]
	if res.clueID != 10 || res.winner == nil || *res.winner != 1 || res.correct == nil || !*res.correct {
		t.Errorf("resolve = %+v; want clue 10 winner 1 correct", res)
	}
	f.checkLocksReleased(t)
}

func TestEngine_JudgeAnswerIncorrectReopens(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	events, err := f.engine.JudgeAnswer(ctx, f.gameID, 1, false, 200)
	if err != nil {
		t.Fatalf("JudgeAnswer() error = %v", err)
	}
	if len(events) != 2 || events[0].Type() != "answer_judged" || events[1].Type() != "buzzer_enabled" {
		t.Fatalf("events = %v; want answer_judged then buzzer_enabled", events)
	}
	if events[0]["new_score"] != -200 || events[0]["correct"] != false {
		t.Errorf("answer_judged = %v; want new_score -200 incorrect", events[0])
	}
	if f.buzz.retries != 1 {
		t.Errorf("clear-for-retry calls = %d; want 1", f.buzz.retries)
	}
	if len(f.state.attempted) != 1 || f.state.attempted[0] != 1 {
		t.Errorf("attempted = %v; want [1]", f.state.attempted)
	}
	// The clue stays open for the remaining seats.
	if f.state.state["current_clue"] != "10" {
		t.Errorf("current_clue = %q; want 10", f.state.state["current_clue"])
	}
	// No resolution was written yet.
	if len(f.writer.resolves) != 0 {
		t.Errorf("resolves = %v; want none", f.writer.resolves)
	}
}

func TestEngine_JudgeAnswerExhaustsClue(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	if _, err := f.engine.JudgeAnswer(ctx, f.gameID, 1, false, 200); err != nil {
		t.Fatalf("JudgeAnswer(1) error = %v", err)
	}
	events, err := f.engine.JudgeAnswer(ctx, f.gameID, 2, false, 200)
	if err != nil {
		t.Fatalf("JudgeAnswer(2) error = %v", err)
	}
	if len(events) != 2 || events[0].Type() != "answer_judged" || events[1].Type() != "return_to_board" {
		t.Fatalf("events = %v; want answer_judged then return_to_board", events)
	}
	if events[0]["clue_exhausted"] != true || events[0]["correct_answer"] != "A10" {
		t.Errorf("exhausted payload = %v; want clue_exhausted with answer A10", events[0])
	}
	if f.state.state["current_clue"] != "" {
		t.Errorf("current_clue = %q; want empty after exhaustion", f.state.state["current_clue"])
	}
	// The record closes unresolved in nobody's favor.
	if len(f.writer.resolves) != 1 {
		t.Fatalf("resolves = %v; want one", f.writer.resolves)
	}
	res := f.writer.resolves[0]
	if res.winner != nil || res.correct == nil || *res.correct {
		t.Errorf("resolve = %+v; want no winner, incorrect", res)
	}
	f.checkLocksReleased(t)
}

func TestEngine_JudgeAnswerWithoutClue(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.engine.JudgeAnswer(context.Background(), f.gameID, 1, true, 200)
	mustReject(t, err, "No clue in play")
}

func TestEngine_NextClueIdleIsHarmless(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	first, err := f.engine.NextClue(ctx, f.gameID)
	if err != nil {
		t.Fatalf("NextClue() error = %v", err)
	}
	second, err := f.engine.NextClue(ctx, f.gameID)
	if err != nil {
		t.Fatalf("second NextClue() error = %v", err)
	}
	for i, events := range [][]event.Event{first, second} {
		if len(events) != 1 || events[0].Type() != "return_to_board" {
			t.Fatalf("call %d events = %v; want one return_to_board", i+1, events)
		}
	}
	if got := second[0]["revealed_clues"].([]int64); len(got) != 0 {
		t.Errorf("revealed_clues = %v; want empty", got)
	}
}

func TestEngine_StartRoundDouble(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.state.scores[1] = 1000
	f.state.scores[2] = 300
	f.state.scores[3] = 600
	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}
	if _, err := f.engine.NextClue(ctx, f.gameID); err != nil {
		t.Fatalf("NextClue() error = %v", err)
	}

	events, err := f.engine.StartRound(ctx, f.gameID, "double")
	if err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "round_changed" {
		t.Fatalf("events = %v; want one round_changed", events)
	}
	if events[0]["round"] != "double" || events[0]["current_player"] != "2" {
		t.Errorf("round_changed = %v; want double with player 2", events[0])
	}
	if f.state.state["current_round"] != "double" || f.state.state["current_player"] != "2" {
		t.Errorf("state = %v; want double round, player 2", f.state.state)
	}
	if len(f.state.revealed) != 0 {
		t.Errorf("revealed = %v; want cleared on round change", f.state.revealed)
	}
	if f.games.game.CurrentRound != model.RoundDouble {
		t.Errorf("durable round = %q; want double", f.games.game.CurrentRound)
	}

	_, err = f.engine.StartRound(ctx, f.gameID, "triple")
	mustReject(t, err, "Unknown round")
}

func TestEngine_StartRoundDoubleTieBreaksLowSeat(t *testing.T) {
	f := newFixture(t, 3)
	f.state.scores[1] = 400
	f.state.scores[2] = 400
	f.state.scores[3] = 900

	events, err := f.engine.StartRound(context.Background(), f.gameID, "double")
	if err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}
	if events[0]["current_player"] != "1" {
		t.Errorf("current_player = %v; want 1 on tie", events[0]["current_player"])
	}
}

func TestEngine_ResetGameIsIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.state.scores[1] = 800
	f.state.scores[2] = -200
	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err != nil {
		t.Fatalf("RevealClue() error = %v", err)
	}

	events, err := f.engine.ResetGame(ctx, f.gameID)
	if err != nil {
		t.Fatalf("ResetGame() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "game_reset" {
		t.Fatalf("events = %v; want one game_reset", events)
	}
	scores := events[0]["scores"].(map[string]int)
	for seat, score := range scores {
		if score != 0 {
			t.Errorf("reset score[%s] = %d; want 0", seat, score)
		}
	}
	if names := events[0]["names"].(map[string]string); names["1"] != "Alice" {
		t.Errorf("reset names = %v; want player names carried", names)
	}
	if f.state.state["current_round"] != "single" || f.state.state["current_player"] != "" {
		t.Errorf("state = %v; want fresh single round", f.state.state)
	}
	if len(f.state.revealed) != 0 {
		t.Errorf("revealed = %v; want empty", f.state.revealed)
	}
	if f.writer.resets != 1 {
		t.Errorf("durable resets = %d; want 1", f.writer.resets)
	}

	again, err := f.engine.ResetGame(ctx, f.gameID)
	if err != nil {
		t.Fatalf("second ResetGame() error = %v", err)
	}
	if len(again) != 1 || again[0].Type() != "game_reset" {
		t.Fatalf("second reset events = %v; want one game_reset", again)
	}
	for seat, score := range f.state.scores {
		if score != 0 {
			t.Errorf("score[%d] after double reset = %d; want 0", seat, score)
		}
	}
	f.checkLocksReleased(t)
}

func TestEngine_AdjustScore(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	events, err := f.engine.AdjustScore(ctx, f.gameID, 2, -300)
	if err != nil {
		t.Fatalf("AdjustScore() error = %v", err)
	}
	if events[0].Type() != "score_adjusted" || events[0]["new_score"] != -300 {
		t.Errorf("events = %v; want score_adjusted new_score -300", events)
	}
	if f.state.scores[2] != -300 {
		t.Errorf("score = %d; want -300", f.state.scores[2])
	}
	if len(f.writer.mirrors) != 1 || f.writer.mirrors[0] != (mirrorCall{seat: 2, score: -300}) {
		t.Errorf("mirrors = %v; want [{2 -300}]", f.writer.mirrors)
	}

	_, err = f.engine.AdjustScore(ctx, f.gameID, 0, 100)
	mustReject(t, err, "Invalid player number")
}

func TestEngine_EndGameIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.state.scores[1] = 1200
	f.state.scores[2] = 400

	events, err := f.engine.EndGame(ctx, f.gameID)
	if err != nil {
		t.Fatalf("EndGame() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "game_completed" {
		t.Fatalf("events = %v; want one game_completed", events)
	}
	if got := events[0]["final_scores"].(map[string]int)["1"]; got != 1200 {
		t.Errorf("final_scores[1] = %d; want 1200", got)
	}
	if f.games.game.Status != model.StatusCompleted || f.games.game.EndedAt == nil {
		t.Errorf("durable game = %+v; want completed with end time", f.games.game)
	}
	if f.state.state["status"] != "completed" {
		t.Errorf("live status = %q; want completed", f.state.state["status"])
	}
	if f.writer.persisted[1] != 1200 || f.writer.persisted[2] != 400 {
		t.Errorf("persisted = %v; want live scores", f.writer.persisted)
	}

	// Ending an ended game changes nothing and stays silent.
	again, err := f.engine.EndGame(ctx, f.gameID)
	if err != nil {
		t.Fatalf("second EndGame() error = %v", err)
	}
	if again != nil {
		t.Errorf("second EndGame events = %v; want none", again)
	}
	if f.writer.persistCalls != 1 {
		t.Errorf("persist calls = %d; want 1", f.writer.persistCalls)
	}
	f.checkLocksReleased(t)
}

func TestEngine_AbandonGame(t *testing.T) {
	f := newFixture(t, 2)
	events, err := f.engine.AbandonGame(context.Background(), f.gameID)
	if err != nil {
		t.Fatalf("AbandonGame() error = %v", err)
	}
	if len(events) != 1 || events[0].Type() != "game_abandoned" {
		t.Fatalf("events = %v; want one game_abandoned", events)
	}
	if f.games.game.Status != model.StatusAbandoned {
		t.Errorf("durable status = %q; want abandoned", f.games.game.Status)
	}
}

func TestEngine_TerminalRejectsMutations(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	if _, err := f.engine.EndGame(ctx, f.gameID); err != nil {
		t.Fatalf("EndGame() error = %v", err)
	}

	if _, err := f.engine.RevealClue(ctx, f.gameID, 10); err == nil {
		t.Error("RevealClue on completed game succeeded; want reject")
	} else {
		mustReject(t, err, "Game already completed")
	}
	_, err := f.engine.HandleBuzz(ctx, f.gameID, 1, 0, "1")
	mustReject(t, err, "Game already completed")
	_, err = f.engine.StartRound(ctx, f.gameID, "double")
	mustReject(t, err, "Game already completed")
	_, err = f.engine.ResetGame(ctx, f.gameID)
	mustReject(t, err, "Game already completed")
}
