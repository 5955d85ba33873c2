package rest

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/quizgrid/coordinator/internal/model"
)

// episodeListView is the lightweight catalog row; the board only ships
// on the detail endpoint.
type episodeListView struct {
	ID            int64      `json:"id"`
	Season        int        `json:"season"`
	EpisodeNumber int        `json:"episode_number"`
	AirDate       *time.Time `json:"air_date,omitempty"`
	Title         string     `json:"title"`
}

type episodeDetailView struct {
	episodeListView
	Rounds roundsView `json:"rounds"`
}

type roundsView struct {
	Single []categoryView `json:"single"`
	Double []categoryView `json:"double"`
	Final  *finalView     `json:"final,omitempty"`
}

type categoryView struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Position int        `json:"position"`
	Clues    []clueView `json:"clues"`
}

type clueView struct {
	ID       int64  `json:"id"`
	Value    int    `json:"value"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Position int    `json:"position"`
}

type finalView struct {
	Category string   `json:"category"`
	Clue     clueView `json:"clue"`
}

func (a *API) listEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := a.episodes.List(r.Context())
	if err != nil {
		slog.Error("listing episodes", "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	views := make([]episodeListView, 0, len(episodes))
	for _, ep := range episodes {
		views = append(views, listView(ep))
	}
	render.JSON(w, r, views)
}

func (a *API) getEpisode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "episodeID"), 10, 64)
	if err != nil {
		apiError(w, r, http.StatusBadRequest, "Invalid episode id")
		return
	}

	ctx := r.Context()
	episode, err := a.episodes.Get(ctx, id)
	if err != nil {
		slog.Error("looking up episode", "episode_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if episode == nil {
		apiError(w, r, http.StatusNotFound, "Episode not found")
		return
	}

	view := episodeDetailView{episodeListView: listView(*episode)}

	for _, round := range []model.Round{model.RoundSingle, model.RoundDouble} {
		categories, err := a.episodes.CategoriesForRound(ctx, id, round)
		if err != nil {
			slog.Error("loading board", "episode_id", id, "round", round, "error", err)
			apiError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		views := make([]categoryView, 0, len(categories))
		for _, cat := range categories {
			views = append(views, catView(cat))
		}
		if round == model.RoundSingle {
			view.Rounds.Single = views
		} else {
			view.Rounds.Double = views
		}
	}

	finalCategory, finalClue, err := a.episodes.FinalClue(ctx, id)
	if err != nil {
		slog.Error("loading final clue", "episode_id", id, "error", err)
		apiError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if finalClue != nil {
		view.Rounds.Final = &finalView{Category: finalCategory, Clue: cView(*finalClue)}
	}

	render.JSON(w, r, view)
}

func listView(ep model.Episode) episodeListView {
	return episodeListView{
		ID:            ep.ID,
		Season:        ep.Season,
		EpisodeNumber: ep.EpisodeNumber,
		AirDate:       ep.AirDate,
		Title:         ep.Title,
	}
}

func catView(cat model.Category) categoryView {
	v := categoryView{
		ID:       cat.ID,
		Name:     cat.Name,
		Position: cat.Position,
		Clues:    make([]clueView, 0, len(cat.Clues)),
	}
	for _, clue := range cat.Clues {
		v.Clues = append(v.Clues, cView(clue))
	}
	return v
}

func cView(clue model.Clue) clueView {
	return clueView{
		ID:       clue.ID,
		Value:    clue.Value,
		Question: clue.Question,
		Answer:   clue.Answer,
		Position: clue.Position,
	}
}
