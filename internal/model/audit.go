package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one append-only entry in a game's action log.
// ServerTimestampUS is the authoritative microsecond timestamp captured
// by the coordinator; CreatedAt is wall-clock for human consumption.
type AuditEvent struct {
	ID                int64
	GameID            uuid.UUID
	ParticipantID     *int64
	ActionType        string
	Payload           map[string]any
	CreatedAt         time.Time
	ServerTimestampUS int64
}

// ClueReveal records that a clue was used in a session.
// Correct is tri-state: true, false, or nil while unresolved
// (no winner, or the clue was exhausted without a correct answer).
type ClueReveal struct {
	ID             int64
	GameID         uuid.UUID
	ClueID         int64
	RevealedBy     string
	BuzzWinnerSeat *int
	Correct        *bool
	RevealedAt     time.Time
}
