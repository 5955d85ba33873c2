// Package scorekeeper mirrors authoritative live scores into the durable
// store and appends the audit trail. Mirror writes are synchronous with
// asynchronous retry on failure; audit writes never block a handler.
package scorekeeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ParticipantStore is the durable side of score mirroring.
// *db.ParticipantRepository satisfies it.
type ParticipantStore interface {
	UpdateScore(ctx context.Context, gameID uuid.UUID, seat, score int) error
	PersistScores(ctx context.Context, gameID uuid.UUID, scores map[int]int) error
	ResetScores(ctx context.Context, gameID uuid.UUID) error
	SetFinalWager(ctx context.Context, gameID uuid.UUID, seat, wager int) error
}

// AuditStore is the append-only action log. *db.AuditRepository satisfies it.
type AuditStore interface {
	InsertAction(ctx context.Context, gameID uuid.UUID, seat int, actionType string, payload map[string]any, serverTimestampUS int64) error
	InsertClueReveal(ctx context.Context, gameID uuid.UUID, clueID int64, revealedBy string) error
	ResolveClueReveal(ctx context.Context, gameID uuid.UUID, clueID int64, winnerSeat *int, correct *bool) error
}

// Config sizes the writer's queues and workers.
type Config struct {
	QueueSize     int
	Workers       int
	RetryInterval time.Duration
}

// writeTimeout bounds each durable write issued by a worker. Workers run
// on detached contexts so a client disconnect cannot abort a write midway.
const writeTimeout = 5 * time.Second

type auditJob struct {
	label string
	run   func(ctx context.Context) error
}

type retryKey struct {
	gameID uuid.UUID
	seat   int
}

type retryJob struct {
	key   retryKey
	score int
	// settled marks a successful sync write: any queued retry for the
	// key is stale and must not overwrite the newer durable value.
	settled bool
}

// Writer is the score and audit writer for all games.
type Writer struct {
	participants ParticipantStore
	audit        AuditStore

	auditCh       chan auditJob
	retryCh       chan retryJob
	workers       int
	retryInterval time.Duration
}

// New creates a Writer. Zero config fields fall back to working defaults.
func New(participants ParticipantStore, audit AuditStore, cfg Config) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Writer{
		participants:  participants,
		audit:         audit,
		auditCh:       make(chan auditJob, cfg.QueueSize),
		retryCh:       make(chan retryJob, 256),
		workers:       cfg.Workers,
		retryInterval: cfg.RetryInterval,
	}
}

// Run starts the audit workers and the score retry loop. Blocks until ctx
// is canceled; queued audit events are drained before returning.
func (w *Writer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			return w.auditLoop(ctx)
		})
	}
	g.Go(func() error {
		return w.retryLoop(ctx)
	})
	return g.Wait()
}

// MirrorScore writes a seat's authoritative score to its participant row.
// Failures are logged and retried in the background; the live score stays
// authoritative until reconciled, so the caller never fails on this.
func (w *Writer) MirrorScore(ctx context.Context, gameID uuid.UUID, seat, score int) {
	key := retryKey{gameID: gameID, seat: seat}
	if err := w.participants.UpdateScore(ctx, gameID, seat, score); err != nil {
		slog.Error("score mirror failed, scheduling retry",
			"game_id", gameID, "seat", seat, "score", score, "error", err)
		select {
		case w.retryCh <- retryJob{key: key, score: score}:
		default:
			slog.Error("score retry queue full, dropping",
				"game_id", gameID, "seat", seat, "score", score)
		}
		return
	}
	// Success invalidates any older queued retry for this seat.
	select {
	case w.retryCh <- retryJob{key: key, settled: true}:
	default:
	}
}

// PersistAll snapshots every seat's score into the durable store.
// Runs at game completion, termination, and final round wrap-up.
func (w *Writer) PersistAll(ctx context.Context, gameID uuid.UUID, scores map[int]int) error {
	return w.participants.PersistScores(ctx, gameID, scores)
}

// ResetAll zeroes every durable score and clears final wagers.
func (w *Writer) ResetAll(ctx context.Context, gameID uuid.UUID) {
	if err := w.participants.ResetScores(ctx, gameID); err != nil {
		slog.Error("durable score reset failed", "game_id", gameID, "error", err)
	}
}

// SetFinalWager mirrors a final round wager onto the participant row.
func (w *Writer) SetFinalWager(ctx context.Context, gameID uuid.UUID, seat, wager int) {
	if err := w.participants.SetFinalWager(ctx, gameID, seat, wager); err != nil {
		slog.Error("final wager mirror failed",
			"game_id", gameID, "seat", seat, "wager", wager, "error", err)
	}
}

// RecordAction appends an audit event. Never blocks: when the queue is
// full the event is dropped and logged.
func (w *Writer) RecordAction(gameID uuid.UUID, seat int, actionType string, payload map[string]any, serverTimestampUS int64) {
	w.enqueue(auditJob{
		label: actionType,
		run: func(ctx context.Context) error {
			return w.audit.InsertAction(ctx, gameID, seat, actionType, payload, serverTimestampUS)
		},
	})
}

// RecordClueReveal appends the clue-reveal record.
func (w *Writer) RecordClueReveal(gameID uuid.UUID, clueID int64, revealedBy string) {
	w.enqueue(auditJob{
		label: "clue_reveal",
		run: func(ctx context.Context) error {
			return w.audit.InsertClueReveal(ctx, gameID, clueID, revealedBy)
		},
	})
}

// ResolveClueReveal closes a clue-reveal record with its outcome.
func (w *Writer) ResolveClueReveal(gameID uuid.UUID, clueID int64, winnerSeat *int, correct *bool) {
	w.enqueue(auditJob{
		label: "clue_reveal_resolve",
		run: func(ctx context.Context) error {
			return w.audit.ResolveClueReveal(ctx, gameID, clueID, winnerSeat, correct)
		},
	})
}

func (w *Writer) enqueue(job auditJob) {
	select {
	case w.auditCh <- job:
	default:
		slog.Warn("audit queue full, dropping event", "action", job.label)
	}
}

func (w *Writer) auditLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case job := <-w.auditCh:
			w.runJob(job)
		}
	}
}

// drain flushes whatever is queued at shutdown.
func (w *Writer) drain() {
	for {
		select {
		case job := <-w.auditCh:
			w.runJob(job)
		default:
			return
		}
	}
}

func (w *Writer) runJob(job auditJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := job.run(ctx); err != nil {
		slog.Error("audit write failed", "action", job.label, "error", err)
	}
}

// retryLoop collects failed score mirrors and re-attempts them on a
// ticker. A newer score for the same seat supersedes the queued one.
func (w *Writer) retryLoop(ctx context.Context) error {
	pending := make(map[retryKey]int)
	ticker := time.NewTicker(w.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-w.retryCh:
			if job.settled {
				delete(pending, job.key)
			} else {
				pending[job.key] = job.score
			}
		case <-ticker.C:
			for key, score := range pending {
				writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				err := w.participants.UpdateScore(writeCtx, key.gameID, key.seat, score)
				cancel()
				if err != nil {
					slog.Error("score mirror retry failed",
						"game_id", key.gameID, "seat", key.seat, "error", err)
					continue
				}
				slog.Info("score mirror reconciled",
					"game_id", key.gameID, "seat", key.seat, "score", score)
				delete(pending, key)
			}
		}
	}
}
