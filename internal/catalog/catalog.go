package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/quizgrid/coordinator/internal/model"
)

// ClueSource is the slice of the durable store the catalog reads from.
// *db.EpisodeRepository satisfies it.
type ClueSource interface {
	GetClue(ctx context.Context, clueID int64) (*model.Clue, string, error)
	ClueInEpisode(ctx context.Context, clueID, episodeID int64) (bool, error)
	ClueIDsByCategory(ctx context.Context, episodeID int64, round model.Round) (map[int64][]int64, error)
	FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error)
}

// Service is the clue read side of the game engine plus the per-session
// daily double selection.
type Service struct {
	source ClueSource
}

// New creates a catalog Service over a clue source.
func New(source ClueSource) *Service {
	return &Service{source: source}
}

// Clue returns one clue and its category name, nil when unknown.
func (s *Service) Clue(ctx context.Context, clueID int64) (*model.Clue, string, error) {
	return s.source.GetClue(ctx, clueID)
}

// ClueBelongsToEpisode reports whether a clue id is part of the episode.
// Reveals of clues from other episodes are rejected on this check.
func (s *Service) ClueBelongsToEpisode(ctx context.Context, clueID, episodeID int64) (bool, error) {
	return s.source.ClueInEpisode(ctx, clueID, episodeID)
}

// FinalClue returns the final category name and its single clue.
func (s *Service) FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error) {
	return s.source.FinalClue(ctx, episodeID)
}

// PickDailyDoubles selects the session's daily doubles: one uniformly
// random single-round clue and one clue from each of two distinct
// double-round categories. Episodes with thin boards yield fewer picks.
func (s *Service) PickDailyDoubles(ctx context.Context, episodeID int64) ([]int64, error) {
	picks := make([]int64, 0, 3)

	singles, err := s.source.ClueIDsByCategory(ctx, episodeID, model.RoundSingle)
	if err != nil {
		return nil, fmt.Errorf("picking daily doubles for episode %d: %w", episodeID, err)
	}
	var singleIDs []int64
	for _, ids := range singles {
		singleIDs = append(singleIDs, ids...)
	}
	if len(singleIDs) > 0 {
		picks = append(picks, singleIDs[rand.IntN(len(singleIDs))])
	}

	doubles, err := s.source.ClueIDsByCategory(ctx, episodeID, model.RoundDouble)
	if err != nil {
		return nil, fmt.Errorf("picking daily doubles for episode %d: %w", episodeID, err)
	}
	catIDs := make([]int64, 0, len(doubles))
	for catID := range doubles {
		catIDs = append(catIDs, catID)
	}
	rand.Shuffle(len(catIDs), func(i, j int) { catIDs[i], catIDs[j] = catIDs[j], catIDs[i] })
	for i := 0; i < len(catIDs) && i < 2; i++ {
		ids := doubles[catIDs[i]]
		picks = append(picks, ids[rand.IntN(len(ids))])
	}

	return picks, nil
}
