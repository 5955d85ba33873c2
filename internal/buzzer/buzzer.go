package buzzer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quizgrid/coordinator/internal/live"
)

// CooldownWindow is how long a seat is benched after a premature or
// stale-token buzz.
const CooldownWindow = 2 * time.Second

// Rejection codes carried in Result.Position.
const (
	RejectLocked    = -1 // locked, stale token, or duplicate buzz
	RejectCooldown  = -2
	RejectAttempted = -3
)

// Result is the outcome of one buzz. Rejections are normal results, not
// errors: Position carries the rejection code, Cooldown and
// CooldownRemaining tell the client how long it is benched.
type Result struct {
	Accepted          bool
	Position          int
	Winner            int // 0 while no winner is decided
	ServerTimestampUS int64
	Cooldown          bool
	CooldownRemaining float64
}

// Arbitrator decides buzzer races. Every decision for a game runs as a
// single scripted transaction in the live store, so two buzzes arriving
// microseconds apart still resolve to exactly one winner.
type Arbitrator struct {
	store *live.Store
	now   func() time.Time
}

// New creates an Arbitrator over the live store.
func New(store *live.Store) *Arbitrator {
	return &Arbitrator{store: store, now: time.Now}
}

// HandleBuzz runs the buzz transaction for one seat. The authoritative
// server timestamp is captured before the transaction and returned on
// every outcome. The client timestamp is advisory and never orders buzzes.
func (a *Arbitrator) HandleBuzz(ctx context.Context, gameID uuid.UUID, seat int, clientTS int64, token string) (Result, error) {
	now := a.now()
	serverTS := now.UnixMicro()
	nowSecs := strconv.FormatFloat(float64(serverTS)/1e6, 'f', 6, 64)

	keys := []string{
		live.BuzzerKey(gameID),
		live.BuzzerOrderKey(gameID),
		live.AttemptedKey(gameID),
		live.CooldownsKey(gameID),
	}
	raw, err := a.store.RunScript(ctx, buzzScript, keys,
		strconv.Itoa(seat),
		nowSecs,
		token,
		strconv.FormatInt(serverTS, 10),
		strconv.FormatFloat(CooldownWindow.Seconds(), 'f', -1, 64),
		int(live.TTL.Seconds()),
	)
	if err != nil {
		return Result{}, fmt.Errorf("handling buzz for game %s seat %d: %w", gameID, seat, err)
	}

	result, err := decodeReply(raw)
	if err != nil {
		return Result{}, fmt.Errorf("handling buzz for game %s seat %d: %w", gameID, seat, err)
	}
	result.ServerTimestampUS = serverTS

	slog.Debug("buzz handled",
		"game_id", gameID, "seat", seat,
		"accepted", result.Accepted, "position", result.Position,
		"client_ts", clientTS, "server_ts", serverTS)
	return result, nil
}

// Enable unlocks the buzzer under a freshly minted monotonic token and
// returns it. The caller broadcasts the token; only buzzes echoing it are
// accepted.
func (a *Arbitrator) Enable(ctx context.Context, gameID uuid.UUID) (int64, error) {
	raw, err := a.store.RunScript(ctx, enableScript,
		[]string{live.BuzzerKey(gameID)},
		strconv.FormatInt(a.now().UnixMicro(), 10),
		int(live.TTL.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("enabling buzzer for game %s: %w", gameID, err)
	}
	return decodeToken(raw)
}

// ClearForRetry wipes the buzz records after a wrong answer and re-enables
// under a fresh token, atomically. The attempted set is preserved so the
// seat that just missed cannot buzz again on this clue.
func (a *Arbitrator) ClearForRetry(ctx context.Context, gameID uuid.UUID) (int64, error) {
	raw, err := a.store.RunScript(ctx, clearRetryScript,
		[]string{live.BuzzerKey(gameID), live.BuzzerOrderKey(gameID)},
		strconv.FormatInt(a.now().UnixMicro(), 10),
		int(live.TTL.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("clearing buzzer for retry for game %s: %w", gameID, err)
	}
	return decodeToken(raw)
}

// Reset clears all per-clue buzz state, attempted seats included, and
// locks the buzzer. Runs when a clue is revealed and when play returns to
// the board.
func (a *Arbitrator) Reset(ctx context.Context, gameID uuid.UUID) error {
	_, err := a.store.RunScript(ctx, resetScript,
		[]string{live.BuzzerKey(gameID), live.BuzzerOrderKey(gameID), live.AttemptedKey(gameID)},
		int(live.TTL.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("resetting buzzer for game %s: %w", gameID, err)
	}
	return nil
}

func decodeReply(raw any) (Result, error) {
	vals, ok := raw.([]any)
	if !ok || len(vals) != 5 {
		return Result{}, fmt.Errorf("malformed buzz reply %v", raw)
	}

	nums := make([]int64, 4)
	for i := 0; i < 4; i++ {
		n, ok := vals[i].(int64)
		if !ok {
			return Result{}, fmt.Errorf("malformed buzz reply field %d: %v", i, vals[i])
		}
		nums[i] = n
	}
	remainingStr, ok := vals[4].(string)
	if !ok {
		return Result{}, fmt.Errorf("malformed buzz reply remaining: %v", vals[4])
	}
	remaining, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return Result{}, fmt.Errorf("malformed buzz reply remaining %q: %w", remainingStr, err)
	}

	return Result{
		Accepted:          nums[0] == 1,
		Position:          int(nums[1]),
		Winner:            int(nums[2]),
		Cooldown:          nums[3] == 1,
		CooldownRemaining: remaining,
	}, nil
}

func decodeToken(raw any) (int64, error) {
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("malformed token reply %v", raw)
	}
	token, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed token %q: %w", s, err)
	}
	return token, nil
}
