package repositories

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Nialit/ymx/internal/models"
)

const (
	poolFile    = "playlist_match_pool.json"
	mappingFile = "playlist_mapping.json"
)

// PlaylistStore persists the playlist sync pool and the playlist mapping
// under the same data directory as the ledger.
//
// The pool maps source track id to a match outcome shared across all
// playlists; a nil entry means "looked up, confirmed no match" and keeps the
// track from being searched again. The mapping records, per source playlist
// name, the mirrored target playlist and the add-only watermark of already
// synced source ids.
type PlaylistStore struct {
	dir string
}

// NewPlaylistStore creates the data directory if needed and returns a store
// rooted there.
func NewPlaylistStore(dir string) (*PlaylistStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &PlaylistStore{dir: dir}, nil
}

// LoadPool reads the playlist match pool. Missing or malformed files read
// as an empty pool.
func (s *PlaylistStore) LoadPool() map[string]*models.PoolEntry {
	pool := make(map[string]*models.PoolEntry)
	readJSONFile(filepath.Join(s.dir, poolFile), &pool)
	return pool
}

// SavePool persists the playlist match pool atomically.
func (s *PlaylistStore) SavePool(pool map[string]*models.PoolEntry) error {
	return writeJSON(s.dir, filepath.Join(s.dir, poolFile), pool)
}

// LoadMapping reads the playlist mapping keyed by source playlist name.
// Missing or malformed files read as an empty mapping.
func (s *PlaylistStore) LoadMapping() map[string]models.PlaylistMapping {
	mapping := make(map[string]models.PlaylistMapping)
	readJSONFile(filepath.Join(s.dir, mappingFile), &mapping)
	return mapping
}

// SaveMapping persists the playlist mapping atomically.
func (s *PlaylistStore) SaveMapping(mapping map[string]models.PlaylistMapping) error {
	return writeJSON(s.dir, filepath.Join(s.dir, mappingFile), mapping)
}

func readJSONFile(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}
