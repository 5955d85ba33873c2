package catalog

import (
	"context"
	"testing"

	"github.com/quizgrid/coordinator/internal/model"
)

// fakeSource serves a fixed board layout from memory.
type fakeSource struct {
	singlesByCat map[int64][]int64
	doublesByCat map[int64][]int64
}

func (f *fakeSource) GetClue(ctx context.Context, clueID int64) (*model.Clue, string, error) {
	return nil, "", nil
}
func (f *fakeSource) ClueInEpisode(ctx context.Context, clueID, episodeID int64) (bool, error) {
	return false, nil
}
func (f *fakeSource) FinalClue(ctx context.Context, episodeID int64) (string, *model.Clue, error) {
	return "", nil, nil
}

func (f *fakeSource) ClueIDsByCategory(ctx context.Context, episodeID int64, round model.Round) (map[int64][]int64, error) {
	if round == model.RoundSingle {
		return f.singlesByCat, nil
	}
	return f.doublesByCat, nil
}

func TestPickDailyDoubles(t *testing.T) {
	source := &fakeSource{
		singlesByCat: map[int64][]int64{
			1: {101, 102, 103},
			2: {104, 105},
		},
		doublesByCat: map[int64][]int64{
			3: {201, 202},
			4: {203, 204},
			5: {205},
		},
	}
	svc := New(source)
	ctx := context.Background()

	singleSet := map[int64]bool{101: true, 102: true, 103: true, 104: true, 105: true}
	catOf := map[int64]int64{
		201: 3, 202: 3, 203: 4, 204: 4, 205: 5,
	}

	// The picks are random; the shape never is. A few dozen rounds cover
	// the shuffle paths.
	for i := 0; i < 50; i++ {
		picks, err := svc.PickDailyDoubles(ctx, 1)
		if err != nil {
			t.Fatalf("PickDailyDoubles() error = %v", err)
		}
		if len(picks) != 3 {
			t.Fatalf("PickDailyDoubles() returned %d picks; want 3", len(picks))
		}
		if !singleSet[picks[0]] {
			t.Errorf("first pick %d is not a single-round clue", picks[0])
		}
		firstCat, ok := catOf[picks[1]]
		if !ok {
			t.Fatalf("second pick %d is not a double-round clue", picks[1])
		}
		secondCat, ok := catOf[picks[2]]
		if !ok {
			t.Fatalf("third pick %d is not a double-round clue", picks[2])
		}
		if firstCat == secondCat {
			t.Errorf("double picks %d and %d share category %d; want distinct", picks[1], picks[2], firstCat)
		}
	}
}

func TestPickDailyDoublesThinBoard(t *testing.T) {
	source := &fakeSource{
		singlesByCat: map[int64][]int64{},
		doublesByCat: map[int64][]int64{3: {201}},
	}
	svc := New(source)

	picks, err := svc.PickDailyDoubles(context.Background(), 1)
	if err != nil {
		t.Fatalf("PickDailyDoubles() error = %v", err)
	}
	if len(picks) != 1 || picks[0] != 201 {
		t.Errorf("PickDailyDoubles() = %v; want just [201] on a thin board", picks)
	}
}
