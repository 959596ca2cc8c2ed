package match

import (
	"math"
	"sort"

	"github.com/Nialit/ymx/internal/models"
)

// CandidatesToStore bounds the ranked candidate list returned by Rank and
// stored on unmatched records for manual resolution.
const CandidatesToStore = 5

// ScoreResults scores raw search results by title similarity against the
// query title. When the query title is Cyrillic the transliterated form is
// also compared and the higher score kept.
func ScoreResults(items []models.LibraryTrack, title string) []models.Candidate {
	translitTitle, hasTranslit := Transliterate(title)

	scored := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		score := Similarity(title, item.Title)
		if hasTranslit {
			score = math.Max(score, Similarity(translitTitle, item.Title))
		}
		scored = append(scored, models.Candidate{
			ID:         item.ID,
			URI:        item.URI,
			Title:      item.Title,
			Artists:    item.Artists,
			TitleScore: round3(score),
		})
	}
	return scored
}

// Rank deduplicates scored candidates by target id (keeping the highest
// score seen per id), orders them by descending score and truncates to
// CandidatesToStore. The head of the ranked list is returned as best; the
// caller decides acceptance against its threshold.
func Rank(items []models.LibraryTrack, title string) (best *models.Candidate, candidates []models.Candidate) {
	seen := make(map[string]int)
	for _, c := range ScoreResults(items, title) {
		if i, ok := seen[c.ID]; ok {
			if c.TitleScore > candidates[i].TitleScore {
				candidates[i] = c
			}
			continue
		}
		seen[c.ID] = len(candidates)
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TitleScore > candidates[j].TitleScore
	})

	if len(candidates) > CandidatesToStore {
		candidates = candidates[:CandidatesToStore]
	}

	return &candidates[0], candidates
}
