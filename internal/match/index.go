package match

import (
	"github.com/Nialit/ymx/internal/models"
)

// LibraryIndex holds two inverted indexes over a target-library snapshot:
// by normalized title and by normalized artist name. Every entry is
// reachable through both its original-script keys and, for Cyrillic text,
// the transliterated keys, so the prematcher never has to special-case
// script. Buckets keep insertion order; a multi-artist track legitimately
// appears in several artist buckets.
//
// The index is immutable once built and is rebuilt from a fresh snapshot on
// every reconciliation run.
type LibraryIndex struct {
	titles  map[string][]models.LibraryTrack
	artists map[string][]models.LibraryTrack
	size    int
}

// BuildIndex builds a LibraryIndex from a target-library snapshot.
func BuildIndex(snapshot []models.LibraryTrack) *LibraryIndex {
	ix := &LibraryIndex{
		titles:  make(map[string][]models.LibraryTrack),
		artists: make(map[string][]models.LibraryTrack),
		size:    len(snapshot),
	}

	for _, track := range snapshot {
		for _, key := range TitleKeys(track.Title) {
			ix.titles[key] = append(ix.titles[key], track)
		}
		for _, key := range ArtistKeys(track.Artists) {
			ix.artists[key] = append(ix.artists[key], track)
		}
	}

	return ix
}

// Size returns the number of snapshot entries the index was built from.
func (ix *LibraryIndex) Size() int { return ix.size }

// TitleBucket returns the entries indexed under the given normalized title key.
func (ix *LibraryIndex) TitleBucket(key string) []models.LibraryTrack {
	return ix.titles[key]
}

// ArtistBucket returns the entries indexed under the given normalized artist key.
func (ix *LibraryIndex) ArtistBucket(key string) []models.LibraryTrack {
	return ix.artists[key]
}

// TitleKeys returns the set of normalized lookup keys for a title: the
// original form plus the transliterated form when the title is Cyrillic.
func TitleKeys(title string) []string {
	keys := []string{Normalize(title)}
	if t, ok := Transliterate(title); ok {
		keys = appendUnique(keys, Normalize(t))
	}
	return keys
}

// ArtistKeys returns the set of normalized lookup keys across every name in
// a comma-separated artist string, including transliterated forms.
func ArtistKeys(artists string) []string {
	var keys []string
	for _, name := range models.SplitArtists(artists) {
		keys = appendUnique(keys, Normalize(name))
		if t, ok := Transliterate(name); ok {
			keys = appendUnique(keys, Normalize(t))
		}
	}
	return keys
}

func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
