package match

import (
	"testing"

	"github.com/Nialit/ymx/internal/models"
)

func TestRankOrdersByScore(t *testing.T) {
	items := []models.LibraryTrack{
		lib("sp1", "Completely Unrelated", "X"),
		lib("sp2", "War Pigs", "Black Sabbath"),
		lib("sp3", "War Pigs (Live)", "Black Sabbath"),
	}

	best, candidates := Rank(items, "War Pigs")
	if best == nil {
		t.Fatal("expected a best candidate")
	}
	if best.ID != "sp2" || best.TitleScore != 1.0 {
		t.Errorf("unexpected best: %+v", best)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].TitleScore > candidates[i-1].TitleScore {
			t.Errorf("candidates not in descending order: %+v", candidates)
		}
	}
}

func TestRankDeduplicatesKeepingMaxScore(t *testing.T) {
	items := []models.LibraryTrack{
		lib("sp1", "Totally Different", "X"),
		lib("sp1", "War Pigs", "Black Sabbath"),
	}

	best, candidates := Rank(items, "War Pigs")
	if len(candidates) != 1 {
		t.Fatalf("expected deduplication by id, got %d", len(candidates))
	}
	if best.TitleScore != 1.0 {
		t.Errorf("expected max score kept for duplicate id, got %v", best.TitleScore)
	}
}

func TestRankTruncatesToStoredLimit(t *testing.T) {
	var items []models.LibraryTrack
	for i := 0; i < 10; i++ {
		items = append(items, lib("sp"+string(rune('a'+i)), "War Pigs", "Black Sabbath"))
	}

	_, candidates := Rank(items, "War Pigs")
	if len(candidates) != CandidatesToStore {
		t.Errorf("expected %d candidates, got %d", CandidatesToStore, len(candidates))
	}
}

func TestRankEmptyResults(t *testing.T) {
	best, candidates := Rank(nil, "War Pigs")
	if best != nil || candidates != nil {
		t.Errorf("expected nil for empty results, got %+v %+v", best, candidates)
	}
}

func TestScoreResultsUsesTransliteratedQuery(t *testing.T) {
	items := []models.LibraryTrack{
		lib("sp1", "Gruppa Krovi", "Kino"),
	}

	scored := ScoreResults(items, "Группа крови")
	if len(scored) != 1 {
		t.Fatalf("expected 1 scored candidate, got %d", len(scored))
	}
	if scored[0].TitleScore < 0.9 {
		t.Errorf("expected transliterated comparison to score high, got %v", scored[0].TitleScore)
	}
}
