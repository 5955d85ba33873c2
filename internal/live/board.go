package live

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// AddRevealed marks a clue as used this session.
func (s *Store) AddRevealed(ctx context.Context, gameID uuid.UUID, clueID int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, RevealedKey(gameID), clueID)
	pipe.Expire(ctx, RevealedKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking clue %d revealed for game %s: %w", clueID, gameID, err)
	}
	return nil
}

// IsRevealed reports whether the clue was already used this session.
func (s *Store) IsRevealed(ctx context.Context, gameID uuid.UUID, clueID int64) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, RevealedKey(gameID), clueID).Result()
	if err != nil {
		return false, fmt.Errorf("checking revealed clue %d for game %s: %w", clueID, gameID, err)
	}
	return ok, nil
}

// Revealed returns all clue ids used this session.
func (s *Store) Revealed(ctx context.Context, gameID uuid.UUID) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, RevealedKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading revealed clues for game %s: %w", gameID, err)
	}
	return parseClueIDs(members)
}

// ClearRevealed empties the revealed set. Round transitions start every
// board fresh.
func (s *Store) ClearRevealed(ctx context.Context, gameID uuid.UUID) error {
	if err := s.rdb.Del(ctx, RevealedKey(gameID)).Err(); err != nil {
		return fmt.Errorf("clearing revealed clues for game %s: %w", gameID, err)
	}
	return nil
}

// SetDailyDoubles replaces the session's daily double clue set.
func (s *Store) SetDailyDoubles(ctx context.Context, gameID uuid.UUID, clueIDs []int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, DailyDoublesKey(gameID))
	if len(clueIDs) > 0 {
		members := make([]any, len(clueIDs))
		for i, id := range clueIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, DailyDoublesKey(gameID), members...)
		pipe.Expire(ctx, DailyDoublesKey(gameID), TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting daily doubles for game %s: %w", gameID, err)
	}
	return nil
}

// IsDailyDouble reports whether the clue is one of the session's daily
// doubles. The catalog's is_daily_double flag plays no part here.
func (s *Store) IsDailyDouble(ctx context.Context, gameID uuid.UUID, clueID int64) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, DailyDoublesKey(gameID), clueID).Result()
	if err != nil {
		return false, fmt.Errorf("checking daily double clue %d for game %s: %w", clueID, gameID, err)
	}
	return ok, nil
}

// DailyDoubles returns the session's daily double clue ids.
func (s *Store) DailyDoubles(ctx context.Context, gameID uuid.UUID) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, DailyDoublesKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading daily doubles for game %s: %w", gameID, err)
	}
	return parseClueIDs(members)
}

// SetDD updates the in-flight daily double hash.
func (s *Store) SetDD(ctx context.Context, gameID uuid.UUID, fields map[string]string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, DDKey(gameID), fields)
	pipe.Expire(ctx, DDKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting daily double state for game %s: %w", gameID, err)
	}
	return nil
}

// DD returns the in-flight daily double hash; empty map when none.
func (s *Store) DD(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, DDKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading daily double state for game %s: %w", gameID, err)
	}
	return fields, nil
}

// ClearDD removes the in-flight daily double hash.
func (s *Store) ClearDD(ctx context.Context, gameID uuid.UUID) error {
	if err := s.rdb.Del(ctx, DDKey(gameID)).Err(); err != nil {
		return fmt.Errorf("clearing daily double state for game %s: %w", gameID, err)
	}
	return nil
}

// SetFJ updates the final round hash.
func (s *Store) SetFJ(ctx context.Context, gameID uuid.UUID, fields map[string]string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, FJKey(gameID), fields)
	pipe.Expire(ctx, FJKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting final round state for game %s: %w", gameID, err)
	}
	return nil
}

// FJ returns the final round hash; empty map when the round has not begun.
func (s *Store) FJ(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, FJKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading final round state for game %s: %w", gameID, err)
	}
	return fields, nil
}

// SetFJWager records a seat's final wager.
func (s *Store) SetFJWager(ctx context.Context, gameID uuid.UUID, seat, wager int) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, FJWagersKey(gameID), strconv.Itoa(seat), wager)
	pipe.Expire(ctx, FJWagersKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting final wager for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// FJWagers returns all recorded final wagers by seat.
func (s *Store) FJWagers(ctx context.Context, gameID uuid.UUID) (map[int]int, error) {
	raw, err := s.rdb.HGetAll(ctx, FJWagersKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading final wagers for game %s: %w", gameID, err)
	}
	return parseSeatInts(raw, gameID, "wager")
}

// SetFJAnswer records a seat's final answer text.
func (s *Store) SetFJAnswer(ctx context.Context, gameID uuid.UUID, seat int, answer string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, FJAnswersKey(gameID), strconv.Itoa(seat), answer)
	pipe.Expire(ctx, FJAnswersKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting final answer for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// SetFJJudgment records the host's ruling on a seat's final answer.
func (s *Store) SetFJJudgment(ctx context.Context, gameID uuid.UUID, seat int, correct bool) error {
	val := "0"
	if correct {
		val = "1"
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, FJJudgmentsKey(gameID), strconv.Itoa(seat), val)
	pipe.Expire(ctx, FJJudgmentsKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting final judgment for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// FJJudgments returns all recorded final judgments by seat.
func (s *Store) FJJudgments(ctx context.Context, gameID uuid.UUID) (map[int]bool, error) {
	raw, err := s.rdb.HGetAll(ctx, FJJudgmentsKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading final judgments for game %s: %w", gameID, err)
	}
	judgments := make(map[int]bool, len(raw))
	for field, val := range raw {
		seat, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad seat field %q for game %s: %w", field, gameID, err)
		}
		judgments[seat] = val == "1"
	}
	return judgments, nil
}

// ClearFJ removes all final round keys.
func (s *Store) ClearFJ(ctx context.Context, gameID uuid.UUID) error {
	err := s.rdb.Del(ctx,
		FJKey(gameID), FJWagersKey(gameID), FJAnswersKey(gameID), FJJudgmentsKey(gameID),
	).Err()
	if err != nil {
		return fmt.Errorf("clearing final round state for game %s: %w", gameID, err)
	}
	return nil
}

// BuzzerState returns the raw buzzer hash. Mutations go through the
// arbitrator's scripts; this read feeds state snapshots.
func (s *Store) BuzzerState(ctx context.Context, gameID uuid.UUID) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, BuzzerKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading buzzer state for game %s: %w", gameID, err)
	}
	return fields, nil
}

// Attempted returns the seats that already attempted the current clue.
func (s *Store) Attempted(ctx context.Context, gameID uuid.UUID) ([]int, error) {
	members, err := s.rdb.SMembers(ctx, AttemptedKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading attempted seats for game %s: %w", gameID, err)
	}
	seats := make([]int, 0, len(members))
	for _, val := range members {
		seat, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("bad seat %q in attempted set for game %s: %w", val, gameID, err)
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

// AddAttempted marks a seat as having attempted the current clue.
func (s *Store) AddAttempted(ctx context.Context, gameID uuid.UUID, seat int) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, AttemptedKey(gameID), seat)
	pipe.Expire(ctx, AttemptedKey(gameID), TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking seat %d attempted for game %s: %w", seat, gameID, err)
	}
	return nil
}

func parseClueIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad clue id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseSeatInts(raw map[string]string, gameID uuid.UUID, what string) (map[int]int, error) {
	out := make(map[int]int, len(raw))
	for field, val := range raw {
		seat, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad seat field %q for game %s: %w", field, gameID, err)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("bad %s %q for game %s seat %d: %w", what, val, gameID, seat, err)
		}
		out[seat] = n
	}
	return out, nil
}
