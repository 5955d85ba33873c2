package rest

import (
	"encoding/json"
	"net/http"
	"testing"
)

func decodeArray(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var v []map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return v
}

func TestListEpisodes(t *testing.T) {
	f := newAPIFixture(t)

	status, data := f.request(t, "GET", "/api/episodes", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %s)", status, data)
	}

	episodes := decodeArray(t, data)
	if len(episodes) != 2 {
		t.Fatalf("episodes = %d, want 2", len(episodes))
	}

	first := episodes[0]
	if first["id"] != float64(7) {
		t.Errorf("id = %v, want 7", first["id"])
	}
	if first["season"] != float64(1) || first["episode_number"] != float64(3) {
		t.Errorf("season/episode = %v/%v, want 1/3", first["season"], first["episode_number"])
	}
	if first["title"] != "Season 1 Episode 3" {
		t.Errorf("title = %v", first["title"])
	}
	if first["air_date"] == nil {
		t.Error("air_date missing for episode 7")
	}
	if _, ok := first["rounds"]; ok {
		t.Error("list row carries the full board")
	}

	// No air date recorded for episode 8, so the field is omitted.
	if _, ok := episodes[1]["air_date"]; ok {
		t.Errorf("air_date = %v for episode 8, want omitted", episodes[1]["air_date"])
	}
}

func TestGetEpisode_FullBoard(t *testing.T) {
	f := newAPIFixture(t)

	status, data := f.request(t, "GET", "/api/episodes/7", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %s)", status, data)
	}

	episode := decodeObject(t, data)
	if episode["id"] != float64(7) {
		t.Errorf("id = %v, want 7", episode["id"])
	}

	rounds := episode["rounds"].(map[string]any)

	single := rounds["single"].([]any)
	if len(single) != 2 {
		t.Fatalf("single round categories = %d, want 2", len(single))
	}
	history := single[0].(map[string]any)
	if history["name"] != "History" {
		t.Errorf("category name = %v, want History", history["name"])
	}
	clues := history["clues"].([]any)
	if len(clues) != 2 {
		t.Fatalf("History clues = %d, want 2", len(clues))
	}
	clue := clues[0].(map[string]any)
	if clue["id"] != float64(10) || clue["value"] != float64(200) {
		t.Errorf("clue id/value = %v/%v, want 10/200", clue["id"], clue["value"])
	}
	if clue["question"] != "Q10" || clue["answer"] != "A10" {
		t.Errorf("clue text = %v / %v", clue["question"], clue["answer"])
	}

	double := rounds["double"].([]any)
	if len(double) != 1 {
		t.Fatalf("double round categories = %d, want 1", len(double))
	}
	if name := double[0].(map[string]any)["name"]; name != "Opera" {
		t.Errorf("double category = %v, want Opera", name)
	}

	final := rounds["final"].(map[string]any)
	if final["category"] != "Finale" {
		t.Errorf("final category = %v, want Finale", final["category"])
	}
	if q := final["clue"].(map[string]any)["question"]; q != "FQ" {
		t.Errorf("final question = %v, want FQ", q)
	}
}

func TestGetEpisode_WithoutFinal(t *testing.T) {
	f := newAPIFixture(t)

	status, data := f.request(t, "GET", "/api/episodes/8", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %s)", status, data)
	}

	rounds := decodeObject(t, data)["rounds"].(map[string]any)
	if _, ok := rounds["final"]; ok {
		t.Errorf("final = %v, want omitted", rounds["final"])
	}
	if single := rounds["single"].([]any); len(single) != 0 {
		t.Errorf("single round = %v, want empty", single)
	}
}

func TestGetEpisode_Errors(t *testing.T) {
	f := newAPIFixture(t)

	status, data := f.request(t, "GET", "/api/episodes/42", "")
	checkError(t, status, data, http.StatusNotFound, "Episode not found")

	status, data = f.request(t, "GET", "/api/episodes/abc", "")
	checkError(t, status, data, http.StatusBadRequest, "Invalid episode id")
}
