package live

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quizgrid/coordinator/internal/config"
)

// NewClient builds a Redis client from coordinator configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store is the ephemeral state store for live games. All keys are scoped
// by game id and carry a 24h expiry refreshed on every write.
type Store struct {
	rdb *redis.Client
}

// New creates a Store over an established Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// RunScript executes a server-side script against this store's client.
// Scripts see a consistent snapshot of all keys they touch.
func (s *Store) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	res, err := script.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("running script: %w", err)
	}
	return res, nil
}

// Exists reports whether the game has live state.
func (s *Store) Exists(ctx context.Context, gameID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, StateKey(gameID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking live state for game %s: %w", gameID, err)
	}
	return n > 0, nil
}

// Touch refreshes the expiry of the game's core keys. Called on read-heavy
// paths so an active session never expires mid-game.
func (s *Store) Touch(ctx context.Context, gameID uuid.UUID) error {
	pipe := s.rdb.Pipeline()
	for _, key := range []string{
		StateKey(gameID), ScoresKey(gameID), NamesKey(gameID),
		RevealedKey(gameID), DailyDoublesKey(gameID), BuzzerKey(gameID),
	} {
		pipe.Expire(ctx, key, TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touching game %s: %w", gameID, err)
	}
	return nil
}

// MaterializeGame writes the initial live snapshot in one round trip:
// the state hash, zeroed scores and seat names for the roster, the daily
// double set, and a locked buzzer.
func (s *Store) MaterializeGame(ctx context.Context, gameID uuid.UUID, state map[string]string, names map[int]string, ddClues []int64) error {
	pipe := s.rdb.TxPipeline()

	pipe.HSet(ctx, StateKey(gameID), state)
	for seat, name := range names {
		field := strconv.Itoa(seat)
		pipe.HSet(ctx, ScoresKey(gameID), field, 0)
		pipe.HSet(ctx, NamesKey(gameID), field, name)
	}
	if len(ddClues) > 0 {
		members := make([]any, len(ddClues))
		for i, id := range ddClues {
			members[i] = id
		}
		pipe.SAdd(ctx, DailyDoublesKey(gameID), members...)
	}
	pipe.HSet(ctx, BuzzerKey(gameID), "locked", "1")

	for _, key := range []string{
		StateKey(gameID), ScoresKey(gameID), NamesKey(gameID),
		DailyDoublesKey(gameID), BuzzerKey(gameID),
	} {
		pipe.Expire(ctx, key, TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("materializing game %s: %w", gameID, err)
	}
	return nil
}

// SetState updates fields of the game state hash.
func (s *Store) SetState(ctx context.Context, gameID uuid.UUID, fields map[string]string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, StateKey(gameID), fields)
	pipe.Expire(ctx, StateKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting state for game %s: %w", gameID, err)
	}
	return nil
}

// State returns the full game state hash. Empty map means no live state.
func (s *Store) State(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	state, err := s.rdb.HGetAll(ctx, StateKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading state for game %s: %w", gameID, err)
	}
	return state, nil
}

// SetScore sets a seat's score to an absolute value.
func (s *Store) SetScore(ctx context.Context, gameID uuid.UUID, seat, score int) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, ScoresKey(gameID), strconv.Itoa(seat), score)
	pipe.Expire(ctx, ScoresKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting score for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// IncrScore adds a signed delta to a seat's score and returns the new value.
func (s *Store) IncrScore(ctx context.Context, gameID uuid.UUID, seat, delta int) (int, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, ScoresKey(gameID), strconv.Itoa(seat), int64(delta))
	pipe.Expire(ctx, ScoresKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("adjusting score for game %s seat %d: %w", gameID, seat, err)
	}
	return int(incr.Val()), nil
}

// Scores returns all seat scores.
func (s *Store) Scores(ctx context.Context, gameID uuid.UUID) (map[int]int, error) {
	raw, err := s.rdb.HGetAll(ctx, ScoresKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading scores for game %s: %w", gameID, err)
	}
	scores := make(map[int]int, len(raw))
	for field, val := range raw {
		seat, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad seat field %q for game %s: %w", field, gameID, err)
		}
		score, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("bad score %q for game %s seat %d: %w", val, gameID, seat, err)
		}
		scores[seat] = score
	}
	return scores, nil
}

// SetName records a seat's display name.
func (s *Store) SetName(ctx context.Context, gameID uuid.UUID, seat int, name string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, NamesKey(gameID), strconv.Itoa(seat), name)
	pipe.Expire(ctx, NamesKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting name for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// Names returns all seat display names.
func (s *Store) Names(ctx context.Context, gameID uuid.UUID) (map[int]string, error) {
	raw, err := s.rdb.HGetAll(ctx, NamesKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading names for game %s: %w", gameID, err)
	}
	names := make(map[int]string, len(raw))
	for field, val := range raw {
		seat, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad seat field %q for game %s: %w", field, gameID, err)
		}
		names[seat] = val
	}
	return names, nil
}
