package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nialit/ymx/internal/models"
)

// libraryTableDDL is applied on every open; CREATE TABLE IF NOT EXISTS makes
// it a no-op once the schema exists.
const libraryTableDDL = `
	CREATE TABLE IF NOT EXISTS library_tracks (
		spotify_id TEXT PRIMARY KEY,
		spotify_uri TEXT NOT NULL,
		title TEXT NOT NULL,
		artists TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)
`

// LibraryCache mirrors the most recent target-library snapshot in SQLite so
// a run can rebuild its prematch index without refetching every page.
type LibraryCache struct {
	db *sql.DB
}

// NewLibraryCache wraps a database connection and ensures the schema exists.
func NewLibraryCache(db *sql.DB) (*LibraryCache, error) {
	if _, err := db.Exec(libraryTableDDL); err != nil {
		return nil, fmt.Errorf("failed to create library_tracks table: %w", err)
	}
	return &LibraryCache{db: db}, nil
}

// Put upserts a page of snapshot tracks in one transaction.
func (c *LibraryCache) Put(tracks []models.LibraryTrack) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO library_tracks (spotify_id, spotify_uri, title, artists, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(spotify_id) DO UPDATE SET
			spotify_uri = excluded.spotify_uri,
			title = excluded.title,
			artists = excluded.artists,
			fetched_at = excluded.fetched_at
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, err := stmt.Exec(t.ID, t.URI, t.Title, t.Artists, now); err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot page: %w", err)
	}
	return nil
}

// All returns every cached snapshot track.
func (c *LibraryCache) All() ([]models.LibraryTrack, error) {
	rows, err := c.db.Query(`SELECT spotify_id, spotify_uri, title, artists FROM library_tracks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query library cache: %w", err)
	}
	defer rows.Close()

	var tracks []models.LibraryTrack
	for rows.Next() {
		var t models.LibraryTrack
		if err := rows.Scan(&t.ID, &t.URI, &t.Title, &t.Artists); err != nil {
			return nil, fmt.Errorf("failed to scan cached track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Count returns the number of cached snapshot tracks.
func (c *LibraryCache) Count() (int, error) {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM library_tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count library cache: %w", err)
	}
	return count, nil
}

// LastFetched returns when the cache was last written, or the zero time for
// an empty cache.
func (c *LibraryCache) LastFetched() (time.Time, error) {
	var fetched sql.NullTime
	if err := c.db.QueryRow(`SELECT MAX(fetched_at) FROM library_tracks`).Scan(&fetched); err != nil {
		return time.Time{}, fmt.Errorf("failed to read fetch time: %w", err)
	}
	if !fetched.Valid {
		return time.Time{}, nil
	}
	return fetched.Time, nil
}

// Clear drops every cached snapshot track, forcing the next run to refetch.
func (c *LibraryCache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM library_tracks`); err != nil {
		return fmt.Errorf("failed to clear library cache: %w", err)
	}
	return nil
}
