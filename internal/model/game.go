package model

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus represents the lifecycle state of a game session.
type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusActive    GameStatus = "active"
	StatusPaused    GameStatus = "paused"
	StatusCompleted GameStatus = "completed"
	StatusAbandoned GameStatus = "abandoned"
)

// Terminal reports whether the session has ended.
// Terminal sessions reject every state-mutating command except
// the idempotent end/abandon.
func (s GameStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Game represents a game session row in the database.
type Game struct {
	ID           uuid.UUID
	EpisodeID    int64
	HostName     string
	Status       GameStatus
	CurrentRound Round
	Settings     map[string]any
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}
