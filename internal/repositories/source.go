package repositories

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/shared"
)

// LoadSourceTracks reads the liked-tracks export file. Unlike the ledger
// files, a missing or malformed export is an error: without it there is
// nothing to reconcile.
func LoadSourceTracks(path string) ([]models.SourceTrack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read likes export %s: %v", shared.ErrInvalidInput, path, err)
	}

	var tracks []models.SourceTrack
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("%w: failed to parse likes export %s: %v", shared.ErrInvalidInput, path, err)
	}
	return tracks, nil
}

// LoadSourcePlaylists reads the playlists export file.
func LoadSourcePlaylists(path string) ([]models.SourcePlaylist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read playlists export %s: %v", shared.ErrInvalidInput, path, err)
	}

	var playlists []models.SourcePlaylist
	if err := json.Unmarshal(data, &playlists); err != nil {
		return nil, fmt.Errorf("%w: failed to parse playlists export %s: %v", shared.ErrInvalidInput, path, err)
	}
	return playlists, nil
}
