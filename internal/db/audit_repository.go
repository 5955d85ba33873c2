package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository appends to the game action log and clue reveal records.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertAction appends one audit event. seat 0 means no participant;
// otherwise the participant id is resolved from the seat.
func (r *AuditRepository) InsertAction(ctx context.Context, gameID uuid.UUID, seat int, actionType string, payload map[string]any, serverTimestampUS int64) error {
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_actions (game_id, participant_id, action_type, payload, created_at, server_timestamp_us)
		 VALUES ($1,
		         CASE WHEN $2 > 0 THEN (SELECT id FROM game_participants WHERE game_id = $1 AND seat = $2) END,
		         $3, $4, $5, $6)`,
		gameID, seat, actionType, payload, time.Now(), serverTimestampUS,
	)
	if err != nil {
		return fmt.Errorf("inserting action %q for game %s: %w", actionType, gameID, err)
	}
	return nil
}

// InsertClueReveal records that a clue was put in play.
// Re-reveals of the same clue are ignored; the engine guards against them
// anyway via the revealed set.
func (r *AuditRepository) InsertClueReveal(ctx context.Context, gameID uuid.UUID, clueID int64, revealedBy string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO clue_reveals (game_id, clue_id, revealed_by, revealed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (game_id, clue_id) DO NOTHING`,
		gameID, clueID, revealedBy, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting clue reveal for game %s clue %d: %w", gameID, clueID, err)
	}
	return nil
}

// ResolveClueReveal closes a reveal record with the buzz winner and the
// judgment. Either may be nil: a clue exhausted with no correct answer keeps
// correct = NULL.
func (r *AuditRepository) ResolveClueReveal(ctx context.Context, gameID uuid.UUID, clueID int64, winnerSeat *int, correct *bool) error {
	_, err := r.db.Exec(ctx,
		`UPDATE clue_reveals SET buzz_winner_seat = $1, correct = $2
		 WHERE game_id = $3 AND clue_id = $4`,
		winnerSeat, correct, gameID, clueID,
	)
	if err != nil {
		return fmt.Errorf("resolving clue reveal for game %s clue %d: %w", gameID, clueID, err)
	}
	return nil
}

// SumScoreDeltas reconstructs a seat's score from the audit log.
// Every score-changing action records a signed "delta" and the seat it
// applies to in its payload.
func (r *AuditRepository) SumScoreDeltas(ctx context.Context, gameID uuid.UUID, seat int) (int, error) {
	var sum int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM((payload->>'delta')::int), 0)
		 FROM game_actions
		 WHERE game_id = $1
		   AND payload ? 'delta'
		   AND (payload->>'player_number')::int = $2`,
		gameID, seat,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing score deltas for game %s seat %d: %w", gameID, seat, err)
	}
	return sum, nil
}
