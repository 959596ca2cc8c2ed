package models

import "strings"

// Provenance records which matching phase produced a MatchRecord.
type Provenance string

const (
	ProvenancePrematch  Provenance = "library_prematch"
	ProvenanceSearch    Provenance = "api_search"
	ProvenanceManual    Provenance = "manual_resolve"
	ProvenanceCrossref  Provenance = "favs_crossref"
	ProvenanceCrosslike Provenance = "playlist_crosslike"
)

// Unmatched reason codes. ReasonMismatch carries the best score seen,
// formatted as "title_mismatch best=0.62".
const (
	ReasonNoResults = "no_results"
	ReasonMismatch  = "title_mismatch"
	ReasonAPIError  = "api_error"
)

// SourceTrack is one liked track from the Yandex Music export.
// Artists is a comma-separated list; the first name is the primary artist.
type SourceTrack struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artists string `json:"artists"`
}

// PrimaryArtist returns the first artist name from the comma-separated list.
func (t SourceTrack) PrimaryArtist() string {
	return FirstArtist(t.Artists)
}

// FirstArtist extracts the first artist name from a comma-separated string.
func FirstArtist(artists string) string {
	name, _, _ := strings.Cut(artists, ",")
	return strings.TrimSpace(name)
}

// SplitArtists splits a comma-separated artist string into trimmed names.
func SplitArtists(artists string) []string {
	parts := strings.Split(artists, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, strings.TrimSpace(p))
	}
	return names
}

// SourcePlaylist is one playlist from the Yandex Music export.
type SourcePlaylist struct {
	ID     string        `json:"playlist_id"`
	Name   string        `json:"name"`
	Tracks []SourceTrack `json:"tracks"`
}

// LibraryTrack is one track from the target (Spotify) catalog: a library
// snapshot entry or a raw search result, before any scoring.
type LibraryTrack struct {
	ID      string `json:"spotify_id"`
	URI     string `json:"spotify_uri"`
	Title   string `json:"spotify_name"`
	Artists string `json:"spotify_artists"`
}

// Candidate is a scored LibraryTrack: the result of comparing a target track
// against a source title. Candidates are stored on unmatched records for
// manual resolution.
type Candidate struct {
	ID         string  `json:"spotify_id"`
	URI        string  `json:"spotify_uri"`
	Title      string  `json:"spotify_name"`
	Artists    string  `json:"spotify_artists"`
	TitleScore float64 `json:"title_score"`
}

// MatchRecord is the reconciliation outcome for one source track. A record
// with a TargetID is matched; one without carries a reason code and, when
// available, candidates for manual resolution.
//
// Source title/artists are denormalized so the operator can review records
// without the export file at hand.
type MatchRecord struct {
	SourceID      string      `json:"yandex_id"`
	SourceTitle   string      `json:"yandex_title"`
	SourceArtists string      `json:"yandex_artists"`
	TargetID      string      `json:"spotify_id,omitempty"`
	TargetURI     string      `json:"spotify_uri,omitempty"`
	TargetTitle   string      `json:"spotify_name,omitempty"`
	TargetArtists string      `json:"spotify_artists,omitempty"`
	TitleScore    float64     `json:"title_score,omitempty"`
	ArtistScore   float64     `json:"artist_score,omitempty"`
	Provenance    Provenance  `json:"source,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Candidates    []Candidate `json:"candidates,omitempty"`

	// ArtistMet marks a rejected record whose artist has a confirmed match
	// elsewhere in the ledger.
	ArtistMet bool `json:"artist_met_on_spotify,omitempty"`
}

// Matched reports whether the record carries a target id.
func (r MatchRecord) Matched() bool { return r.TargetID != "" }

// Source rebuilds the SourceTrack the record was produced from, for
// re-running the prematcher over rejected or pending records.
func (r MatchRecord) Source() SourceTrack {
	return SourceTrack{ID: r.SourceID, Title: r.SourceTitle, Artists: r.SourceArtists}
}

// PoolEntry is one matched (or explicitly unmatched) playlist track in the
// playlist sync pool. An unmatched entry keeps its ranked candidates for
// manual resolution; a nil entry means "confirmed no match".
type PoolEntry struct {
	TargetID    string      `json:"spotify_id,omitempty"`
	TargetURI   string      `json:"spotify_uri,omitempty"`
	TitleScore  float64     `json:"title_score,omitempty"`
	ArtistScore float64     `json:"artist_score,omitempty"`
	Provenance  Provenance  `json:"source,omitempty"`
	Candidates  []Candidate `json:"candidates,omitempty"`
}

// Matched reports whether the entry carries a target id.
func (e *PoolEntry) Matched() bool { return e != nil && e.TargetID != "" }

// PlaylistMapping records which Spotify playlist mirrors a source playlist
// and which source track ids have already been added (the add-only
// watermark).
type PlaylistMapping struct {
	SourceName       string   `json:"yandex_name"`
	TargetPlaylistID string   `json:"spotify_playlist_id"`
	SyncedTrackIDs   []string `json:"last_synced_track_ids"`
}
