package match

import (
	"math"

	"github.com/Nialit/ymx/internal/models"
)

// DefaultThreshold is the minimum similarity score for an automatic match.
// It applies uniformly to title, artist and combined scores.
const DefaultThreshold = 0.7

// Prematch matches source tracks against an indexed target-library snapshot
// without any remote calls.
//
// Two-phase lookup per track:
//  1. exact normalized-title match via the title index (title score 1.0 by
//     construction), confirmed by artist similarity >= threshold
//  2. fallback: fuzzy scoring within the track's artist buckets, requiring
//     min(title score, artist score) >= threshold so that a near-perfect
//     title on the wrong artist (or vice versa) never matches
//
// Phase 1 resolves the large majority of tracks in O(1); phase 2 costs
// O(artist bucket), never the whole library.
//
// Returns the matched records (provenance library_prematch) and the tracks
// neither phase could place, preserving input order.
func Prematch(tracks []models.SourceTrack, ix *LibraryIndex, threshold float64) (matched []models.MatchRecord, unmatched []models.SourceTrack) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	for _, t := range tracks {
		if hit, artistScore, ok := titleLookup(t, ix, threshold); ok {
			matched = append(matched, prematchRecord(t, hit, 1.0, artistScore))
			continue
		}

		if hit, titleScore, artistScore, ok := artistBucketLookup(t, ix, threshold); ok {
			matched = append(matched, prematchRecord(t, hit, titleScore, artistScore))
		} else {
			unmatched = append(unmatched, t)
		}
	}

	return matched, unmatched
}

// titleLookup is phase 1: exact title match with artist confirmation.
func titleLookup(t models.SourceTrack, ix *LibraryIndex, threshold float64) (models.LibraryTrack, float64, bool) {
	var best models.LibraryTrack
	bestScore := 0.0
	found := false

	for _, key := range TitleKeys(t.Title) {
		for _, track := range ix.TitleBucket(key) {
			score := artistSimilarity(t, track)
			if score >= threshold && score > bestScore {
				best = track
				bestScore = score
				found = true
			}
		}
	}

	return best, bestScore, found
}

// artistBucketLookup is phase 2: fuzzy title scoring within the source
// track's artist buckets. Both scores must clear the threshold
// independently.
func artistBucketLookup(t models.SourceTrack, ix *LibraryIndex, threshold float64) (models.LibraryTrack, float64, float64, bool) {
	var candidates []models.LibraryTrack
	seen := make(map[string]bool)
	for _, key := range sourceArtistKeys(t) {
		for _, track := range ix.ArtistBucket(key) {
			if !seen[track.ID] {
				seen[track.ID] = true
				candidates = append(candidates, track)
			}
		}
	}

	var best models.LibraryTrack
	bestCombined, bestTitle, bestArtist := 0.0, 0.0, 0.0
	found := false

	for _, track := range candidates {
		titleScore := titleSimilarity(t, track)
		artistScore := artistSimilarity(t, track)
		combined := math.Min(titleScore, artistScore)
		if combined >= threshold && combined > bestCombined {
			best = track
			bestCombined = combined
			bestTitle = titleScore
			bestArtist = artistScore
			found = true
		}
	}

	return best, bestTitle, bestArtist, found
}

// sourceArtistKeys returns the lookup keys for a source track's primary
// artist only; secondary artists are too noisy to bucket on.
func sourceArtistKeys(t models.SourceTrack) []string {
	artist := t.PrimaryArtist()
	keys := []string{Normalize(artist)}
	if tr, ok := Transliterate(artist); ok {
		keys = appendUnique(keys, Normalize(tr))
	}
	return keys
}

// titleSimilarity scores a source title against a target title, trying the
// transliterated source form and keeping the higher score.
func titleSimilarity(t models.SourceTrack, track models.LibraryTrack) float64 {
	score := Similarity(t.Title, track.Title)
	if tr, ok := Transliterate(t.Title); ok {
		score = math.Max(score, Similarity(tr, track.Title))
	}
	return score
}

// artistSimilarity scores the source primary artist against every target
// artist name, over original and transliterated forms of both sides, and
// returns the max.
func artistSimilarity(t models.SourceTrack, track models.LibraryTrack) float64 {
	sourceForms := []string{t.PrimaryArtist()}
	if tr, ok := Transliterate(t.PrimaryArtist()); ok {
		sourceForms = append(sourceForms, tr)
	}

	targetNames := models.SplitArtists(track.Artists)
	targetForms := append([]string{}, targetNames...)
	for _, name := range targetNames {
		if tr, ok := Transliterate(name); ok {
			targetForms = append(targetForms, tr)
		}
	}

	best := 0.0
	for _, sf := range sourceForms {
		for _, tf := range targetForms {
			best = math.Max(best, Similarity(sf, tf))
		}
	}
	return best
}

// ArtistScore scores a source track's primary artist against a
// comma-separated target artist list, over original and transliterated
// forms of both sides.
func ArtistScore(t models.SourceTrack, targetArtists string) float64 {
	return round3(artistSimilarity(t, models.LibraryTrack{Artists: targetArtists}))
}

func prematchRecord(t models.SourceTrack, hit models.LibraryTrack, titleScore, artistScore float64) models.MatchRecord {
	return models.MatchRecord{
		SourceID:      t.ID,
		SourceTitle:   t.Title,
		SourceArtists: t.Artists,
		TargetID:      hit.ID,
		TargetURI:     hit.URI,
		TargetTitle:   hit.Title,
		TargetArtists: hit.Artists,
		TitleScore:    round3(titleScore),
		ArtistScore:   round3(artistScore),
		Provenance:    models.ProvenancePrematch,
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
