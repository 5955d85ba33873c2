package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizgrid/coordinator/internal/model"
)

// GameRepository manages game session rows.
type GameRepository struct {
	db *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository.
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// Create inserts a new game session row.
func (r *GameRepository) Create(ctx context.Context, g *model.Game) error {
	settings := g.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO games (id, episode_id, host_name, status, current_round, settings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.EpisodeID, g.HostName, string(g.Status), string(g.CurrentRound), settings, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating game %s: %w", g.ID, err)
	}
	return nil
}

// Get returns one game by id.
// Returns nil, nil if the game does not exist.
func (r *GameRepository) Get(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	var g model.Game
	err := r.db.QueryRow(ctx,
		`SELECT id, episode_id, host_name, status, current_round, settings, created_at, started_at, ended_at
		 FROM games WHERE id = $1`, id,
	).Scan(&g.ID, &g.EpisodeID, &g.HostName, &g.Status, &g.CurrentRound, &g.Settings, &g.CreatedAt, &g.StartedAt, &g.EndedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying game %s: %w", id, err)
	}
	return &g, nil
}

// MarkStarted moves the game to active and stamps started_at.
func (r *GameRepository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE games SET status = 'active', started_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("marking game %s started: %w", id, err)
	}
	return nil
}

// MarkEnded moves the game to a terminal status and stamps ended_at.
func (r *GameRepository) MarkEnded(ctx context.Context, id uuid.UUID, status model.GameStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE games SET status = $1, ended_at = $2 WHERE id = $3`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("marking game %s ended: %w", id, err)
	}
	return nil
}

// UpdateRound mirrors the authoritative live round into the game row.
func (r *GameRepository) UpdateRound(ctx context.Context, id uuid.UUID, round model.Round) error {
	_, err := r.db.Exec(ctx,
		`UPDATE games SET current_round = $1 WHERE id = $2`,
		string(round), id,
	)
	if err != nil {
		return fmt.Errorf("updating round for game %s: %w", id, err)
	}
	return nil
}
