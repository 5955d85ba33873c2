package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizgrid/coordinator/internal/model"
)

// EpisodeRepository provides read-only access to the episode catalog.
type EpisodeRepository struct {
	db *pgxpool.Pool
}

// NewEpisodeRepository creates a new EpisodeRepository.
func NewEpisodeRepository(db *pgxpool.Pool) *EpisodeRepository {
	return &EpisodeRepository{db: db}
}

// List returns all episodes ordered by season and episode number.
func (r *EpisodeRepository) List(ctx context.Context) ([]model.Episode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, season, episode_number, air_date, title
		 FROM episodes
		 ORDER BY season, episode_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	defer rows.Close()

	episodes := make([]model.Episode, 0, 32)
	for rows.Next() {
		var ep model.Episode
		if err := rows.Scan(&ep.ID, &ep.Season, &ep.EpisodeNumber, &ep.AirDate, &ep.Title); err != nil {
			return nil, fmt.Errorf("scanning episode row: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episode rows: %w", err)
	}
	return episodes, nil
}

// Get returns one episode by id.
// Returns nil, nil if the episode does not exist.
func (r *EpisodeRepository) Get(ctx context.Context, id int64) (*model.Episode, error) {
	var ep model.Episode
	err := r.db.QueryRow(ctx,
		`SELECT id, season, episode_number, air_date, title
		 FROM episodes WHERE id = $1`, id,
	).Scan(&ep.ID, &ep.Season, &ep.EpisodeNumber, &ep.AirDate, &ep.Title)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying episode %d: %w", id, err)
	}
	return &ep, nil
}

// CategoriesForRound returns the categories of one round with their clues,
// both ordered by board position.
func (r *EpisodeRepository) CategoriesForRound(ctx context.Context, episodeID int64, round model.Round) ([]model.Category, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.episode_id, c.name, c.round_type, c.position,
		        cl.id, cl.category_id, cl.value, cl.question, cl.answer, cl.position, cl.is_daily_double
		 FROM categories c
		 JOIN clues cl ON cl.category_id = c.id
		 WHERE c.episode_id = $1 AND c.round_type = $2
		 ORDER BY c.position, cl.position`,
		episodeID, string(round),
	)
	if err != nil {
		return nil, fmt.Errorf("querying categories for episode %d round %s: %w", episodeID, round, err)
	}
	defer rows.Close()

	var categories []model.Category
	byID := make(map[int64]int)
	for rows.Next() {
		var cat model.Category
		var clue model.Clue
		if err := rows.Scan(
			&cat.ID, &cat.EpisodeID, &cat.Name, &cat.RoundType, &cat.Position,
			&clue.ID, &clue.CategoryID, &clue.Value, &clue.Question, &clue.Answer, &clue.Position, &clue.DailyDouble,
		); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		idx, ok := byID[cat.ID]
		if !ok {
			categories = append(categories, cat)
			idx = len(categories) - 1
			byID[cat.ID] = idx
		}
		categories[idx].Clues = append(categories[idx].Clues, clue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}
	return categories, nil
}

// GetClue returns one clue by id together with its category name.
// Returns nil, "", nil if the clue does not exist.
func (r *EpisodeRepository) GetClue(ctx context.Context, clueID int64) (*model.Clue, string, error) {
	var (
		clue     model.Clue
		category string
	)
	err := r.db.QueryRow(ctx,
		`SELECT cl.id, cl.category_id, cl.value, cl.question, cl.answer, cl.position, cl.is_daily_double, c.name
		 FROM clues cl
		 JOIN categories c ON c.id = cl.category_id
		 WHERE cl.id = $1`, clueID,
	).Scan(&clue.ID, &clue.CategoryID, &clue.Value, &clue.Question, &clue.Answer, &clue.Position, &clue.DailyDouble, &category)
	if err == pgx.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("querying clue %d: %w", clueID, err)
	}
	return &clue, category, nil
}

// ClueInEpisode reports whether the clue belongs to the given episode.
func (r *EpisodeRepository) ClueInEpisode(ctx context.Context, clueID, episodeID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM clues cl
		    JOIN categories c ON c.id = cl.category_id
		    WHERE cl.id = $1 AND c.episode_id = $2
		 )`, clueID, episodeID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking clue %d in episode %d: %w", clueID, episodeID, err)
	}
	return ok, nil
}

// ClueIDsByCategory returns the clue ids of one round grouped by category.
// Used to select daily double positions at game materialization.
func (r *EpisodeRepository) ClueIDsByCategory(ctx context.Context, episodeID int64, round model.Round) (map[int64][]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, cl.id
		 FROM categories c
		 JOIN clues cl ON cl.category_id = c.id
		 WHERE c.episode_id = $1 AND c.round_type = $2
		 ORDER BY c.position, cl.position`,
		episodeID, string(round),
	)
	if err != nil {
		return nil, fmt.Errorf("querying clue ids for episode %d round %s: %w", episodeID, round, err)
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var catID, clueID int64
		if err := rows.Scan(&catID, &clueID); err != nil {
			return nil, fmt.Errorf("scanning clue id row: %w", err)
		}
		out[catID] = append(out[catID], clueID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clue id rows: %w", err)
	}
	return out, nil
}

// FinalClue returns the final-round category name and its single clue.
// Returns "", nil, nil when the episode has no final round.
func (r *EpisodeRepository) FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error) {
	var category string
	var clue model.Clue
	err := r.db.QueryRow(ctx,
		`SELECT c.name, cl.id, cl.category_id, cl.value, cl.question, cl.answer, cl.position, cl.is_daily_double
		 FROM categories c
		 JOIN clues cl ON cl.category_id = c.id
		 WHERE c.episode_id = $1 AND c.round_type = 'final'
		 LIMIT 1`, episodeID,
	).Scan(&category, &clue.ID, &clue.CategoryID, &clue.Value, &clue.Question, &clue.Answer, &clue.Position, &clue.DailyDouble)
	if err == pgx.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("querying final clue for episode %d: %w", episodeID, err)
	}
	return category, &clue, nil
}
