package match

import (
	"testing"

	"github.com/Nialit/ymx/internal/models"
)

func lib(id, title, artists string) models.LibraryTrack {
	return models.LibraryTrack{ID: id, URI: "spotify:track:" + id, Title: title, Artists: artists}
}

func TestBuildIndexTitleLookup(t *testing.T) {
	ix := BuildIndex([]models.LibraryTrack{
		lib("1", "War Pigs", "Black Sabbath"),
		lib("2", "War Pigs (Live)", "Black Sabbath"),
	})

	if ix.Size() != 2 {
		t.Errorf("expected size 2, got %d", ix.Size())
	}

	bucket := ix.TitleBucket(Normalize("War Pigs"))
	if len(bucket) != 1 || bucket[0].ID != "1" {
		t.Errorf("unexpected title bucket: %+v", bucket)
	}
}

func TestBuildIndexMultiArtistBuckets(t *testing.T) {
	ix := BuildIndex([]models.LibraryTrack{
		lib("1", "Under Pressure", "Queen, David Bowie"),
	})

	for _, artist := range []string{"Queen", "David Bowie"} {
		bucket := ix.ArtistBucket(Normalize(artist))
		if len(bucket) != 1 || bucket[0].ID != "1" {
			t.Errorf("expected track in bucket %q, got %+v", artist, bucket)
		}
	}
}

func TestBuildIndexTransliteratedKeys(t *testing.T) {
	ix := BuildIndex([]models.LibraryTrack{
		lib("1", "Группа крови", "Кино"),
	})

	// The Cyrillic entry is reachable through its transliterated keys too.
	if bucket := ix.TitleBucket("gruppa krovi"); len(bucket) != 1 {
		t.Errorf("expected transliterated title key, got %+v", bucket)
	}
	if bucket := ix.ArtistBucket("kino"); len(bucket) != 1 {
		t.Errorf("expected transliterated artist key, got %+v", bucket)
	}
	// And through the original script.
	if bucket := ix.TitleBucket(Normalize("Группа крови")); len(bucket) != 1 {
		t.Errorf("expected original-script title key, got %+v", bucket)
	}
}

func TestArtistKeysDeduplicates(t *testing.T) {
	keys := ArtistKeys("Queen, queen")
	if len(keys) != 1 {
		t.Errorf("expected deduplicated keys, got %v", keys)
	}
}

func TestTitleKeysLatinHasSingleKey(t *testing.T) {
	keys := TitleKeys("Bohemian Rhapsody")
	if len(keys) != 1 || keys[0] != "bohemian rhapsody" {
		t.Errorf("unexpected keys: %v", keys)
	}
}
