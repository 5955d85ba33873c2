package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizgrid/coordinator/internal/model"
)

// ErrGameFull is returned by Join when all six seats are taken.
var ErrGameFull = errors.New("game is full")

// ParticipantRepository manages contestant rows.
type ParticipantRepository struct {
	db *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// ListByGame returns all participants of a game ordered by seat.
func (r *ParticipantRepository) ListByGame(ctx context.Context, gameID uuid.UUID) ([]model.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, game_id, player_name, seat, score, final_wager, joined_at
		 FROM game_participants
		 WHERE game_id = $1
		 ORDER BY seat`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying participants for game %s: %w", gameID, err)
	}
	defer rows.Close()

	participants := make([]model.Participant, 0, model.MaxSeats)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.GameID, &p.PlayerName, &p.Seat, &p.Score, &p.FinalWager, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participant rows: %w", err)
	}
	return participants, nil
}

// CountByGame returns the roster size of a game.
func (r *ParticipantRepository) CountByGame(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_participants WHERE game_id = $1`, gameID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting participants for game %s: %w", gameID, err)
	}
	return n, nil
}

// Join adds a player to the game on the next free seat.
// The same player name rejoins into the existing seat; created reports
// whether a new row was inserted. Returns ErrGameFull when no seat is free.
func (r *ParticipantRepository) Join(ctx context.Context, gameID uuid.UUID, playerName string) (*model.Participant, bool, error) {
	// Rejoin path: the name already holds a seat.
	existing, err := r.getByName(ctx, gameID, playerName)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	// Concurrent joins race on the same seat number; the unique index
	// rejects the loser, which retries on the next seat.
	for attempt := 0; attempt < model.MaxSeats; attempt++ {
		seat, err := r.nextFreeSeat(ctx, gameID)
		if err != nil {
			return nil, false, err
		}
		if seat > model.MaxSeats {
			return nil, false, ErrGameFull
		}

		var p model.Participant
		err = r.db.QueryRow(ctx,
			`INSERT INTO game_participants (game_id, player_name, seat, score, joined_at)
			 VALUES ($1, $2, $3, 0, $4)
			 ON CONFLICT (game_id, seat) DO NOTHING
			 RETURNING id, game_id, player_name, seat, score, final_wager, joined_at`,
			gameID, playerName, seat, time.Now(),
		).Scan(&p.ID, &p.GameID, &p.PlayerName, &p.Seat, &p.Score, &p.FinalWager, &p.JoinedAt)
		if err == pgx.ErrNoRows {
			continue // seat taken between the read and the insert
		}
		if err != nil {
			return nil, false, fmt.Errorf("joining game %s as %q: %w", gameID, playerName, err)
		}
		slog.Info("participant joined", "game_id", gameID, "player", playerName, "seat", p.Seat)
		return &p, true, nil
	}
	return nil, false, ErrGameFull
}

func (r *ParticipantRepository) getByName(ctx context.Context, gameID uuid.UUID, playerName string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.QueryRow(ctx,
		`SELECT id, game_id, player_name, seat, score, final_wager, joined_at
		 FROM game_participants
		 WHERE game_id = $1 AND player_name = $2`,
		gameID, playerName,
	).Scan(&p.ID, &p.GameID, &p.PlayerName, &p.Seat, &p.Score, &p.FinalWager, &p.JoinedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant %q in game %s: %w", playerName, gameID, err)
	}
	return &p, nil
}

func (r *ParticipantRepository) nextFreeSeat(ctx context.Context, gameID uuid.UUID) (int, error) {
	var seat int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(seat), 0) + 1 FROM game_participants WHERE game_id = $1`, gameID,
	).Scan(&seat)
	if err != nil {
		return 0, fmt.Errorf("finding free seat in game %s: %w", gameID, err)
	}
	return seat, nil
}

// UpdateScore sets the participant's score to the authoritative live value.
func (r *ParticipantRepository) UpdateScore(ctx context.Context, gameID uuid.UUID, seat, score int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_participants SET score = $1 WHERE game_id = $2 AND seat = $3`,
		score, gameID, seat,
	)
	if err != nil {
		return fmt.Errorf("updating score for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}

// PersistScores writes a full seat→score snapshot in one transaction.
func (r *ParticipantRepository) PersistScores(ctx context.Context, gameID uuid.UUID, scores map[int]int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for seat, score := range scores {
		if _, err := tx.Exec(ctx,
			`UPDATE game_participants SET score = $1 WHERE game_id = $2 AND seat = $3`,
			score, gameID, seat,
		); err != nil {
			return fmt.Errorf("persisting score for game %s seat %d: %w", gameID, seat, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for game %s: %w", gameID, err)
	}
	return nil
}

// ResetScores zeroes every seat's score and clears final wagers.
func (r *ParticipantRepository) ResetScores(ctx context.Context, gameID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_participants SET score = 0, final_wager = NULL WHERE game_id = $1`,
		gameID,
	)
	if err != nil {
		return fmt.Errorf("resetting scores for game %s: %w", gameID, err)
	}
	return nil
}

// SetFinalWager records a seat's final-round wager.
func (r *ParticipantRepository) SetFinalWager(ctx context.Context, gameID uuid.UUID, seat, wager int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_participants SET final_wager = $1 WHERE game_id = $2 AND seat = $3`,
		wager, gameID, seat,
	)
	if err != nil {
		return fmt.Errorf("setting final wager for game %s seat %d: %w", gameID, seat, err)
	}
	return nil
}
