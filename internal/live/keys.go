package live

import (
	"time"

	"github.com/google/uuid"
)

// TTL is the lifetime of every live key, refreshed on each write.
// Games are kept around for a day after the last activity, then expire.
const TTL = 24 * time.Hour

func gameKey(gameID uuid.UUID, suffix string) string {
	return "game:" + gameID.String() + ":" + suffix
}

// StateKey is the hash holding episode_id, status, current_round,
// current_clue and current_player.
func StateKey(gameID uuid.UUID) string { return gameKey(gameID, "state") }

// ScoresKey is the seat → score hash.
func ScoresKey(gameID uuid.UUID) string { return gameKey(gameID, "scores") }

// NamesKey is the seat → display name hash.
func NamesKey(gameID uuid.UUID) string { return gameKey(gameID, "names") }

// RevealedKey is the set of clue ids already used this session.
func RevealedKey(gameID uuid.UUID) string { return gameKey(gameID, "revealed") }

// DailyDoublesKey is the set of clue ids chosen as daily doubles at
// materialization. This set, not the catalog flag, decides the reveal path.
func DailyDoublesKey(gameID uuid.UUID) string { return gameKey(gameID, "dd_clues") }

// BuzzerKey is the buzzer hash: locked, unlock_token, count, winner and
// per-seat player_{n} timestamp fields.
func BuzzerKey(gameID uuid.UUID) string { return gameKey(gameID, "buzzer") }

// BuzzerOrderKey is the list of seats in accepted-buzz order.
func BuzzerOrderKey(gameID uuid.UUID) string { return gameKey(gameID, "buzzer:order") }

// AttemptedKey is the set of seats that already attempted the current clue.
func AttemptedKey(gameID uuid.UUID) string { return gameKey(gameID, "attempted") }

// CooldownsKey is the seat → last-buzz wall-clock seconds hash.
func CooldownsKey(gameID uuid.UUID) string { return gameKey(gameID, "cooldowns") }

// DDKey is the in-flight daily double hash: stage, player_number, wager,
// answer, clue_id.
func DDKey(gameID uuid.UUID) string { return gameKey(gameID, "dd") }

// FJKey is the final round hash: stage, clue_id, category.
func FJKey(gameID uuid.UUID) string { return gameKey(gameID, "fj") }

// FJWagersKey, FJAnswersKey and FJJudgmentsKey are seat-keyed hashes
// collected during the final round.
func FJWagersKey(gameID uuid.UUID) string    { return gameKey(gameID, "fj:wagers") }
func FJAnswersKey(gameID uuid.UUID) string   { return gameKey(gameID, "fj:answers") }
func FJJudgmentsKey(gameID uuid.UUID) string { return gameKey(gameID, "fj:judgments") }

func lockKey(gameID uuid.UUID) string { return gameKey(gameID, "lock") }
