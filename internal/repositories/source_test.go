package repositories

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Nialit/ymx/internal/shared"
)

func TestLoadSourceTracks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likes.json")
	content := `[
		{"id": "1", "title": "Song A", "artists": "Artist A"},
		{"id": "2", "title": "Song B", "artists": "Artist B, Artist C"}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	tracks, err := LoadSourceTracks(path)
	if err != nil {
		t.Fatalf("LoadSourceTracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[1].PrimaryArtist() != "Artist B" {
		t.Errorf("expected primary artist Artist B, got %q", tracks[1].PrimaryArtist())
	}
}

func TestLoadSourceTracksMissingFile(t *testing.T) {
	_, err := LoadSourceTracks(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadSourcePlaylists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlists.json")
	content := `[
		{"playlist_id": "p1", "name": "Road Trip", "tracks": [{"id": "1", "title": "Song A", "artists": "Artist A"}]}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	playlists, err := LoadSourcePlaylists(path)
	if err != nil {
		t.Fatalf("LoadSourcePlaylists failed: %v", err)
	}
	if len(playlists) != 1 || playlists[0].Name != "Road Trip" || len(playlists[0].Tracks) != 1 {
		t.Errorf("unexpected playlists: %+v", playlists)
	}
}

func TestLoadSourcePlaylistsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlists.json")
	if err := os.WriteFile(path, []byte("{oops"), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	_, err := LoadSourcePlaylists(path)
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
