package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxSeats is the largest number of contestants a session can hold.
const MaxSeats = 6

// ValidSeat reports whether n is a usable seat number.
func ValidSeat(n int) bool {
	return n >= 1 && n <= MaxSeats
}

// Participant is one contestant's row in a game session.
// Keyed by (game, seat); seat numbers are unique per game.
type Participant struct {
	ID         int64
	GameID     uuid.UUID
	PlayerName string
	Seat       int
	Score      int
	FinalWager *int
	JoinedAt   time.Time
}
