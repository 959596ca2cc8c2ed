package tasks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
)

// fakePlaylistWriter records playlist creation and track additions.
type fakePlaylistWriter struct {
	created []string
	added   map[string][]string
	nextID  int
}

func (f *fakePlaylistWriter) CreatePlaylist(ctx context.Context, name string) (string, error) {
	f.nextID++
	id := "pl" + string(rune('0'+f.nextID))
	f.created = append(f.created, name)
	return id, nil
}

func (f *fakePlaylistWriter) AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	if f.added == nil {
		f.added = make(map[string][]string)
	}
	f.added[playlistID] = append(f.added[playlistID], uris...)
	return nil
}

func newTestPlaylistEngine(t *testing.T, search *fakeSearch, writer *fakeWriter, pw *fakePlaylistWriter) (*PlaylistEngine, *repositories.LedgerStore, *repositories.PlaylistStore) {
	t.Helper()

	dir := t.TempDir()
	ledger, err := repositories.NewLedgerStore(dir)
	if err != nil {
		t.Fatalf("NewLedgerStore failed: %v", err)
	}
	store, err := repositories.NewPlaylistStore(dir)
	if err != nil {
		t.Fatalf("NewPlaylistStore failed: %v", err)
	}

	logger := shared.NewLogger(io.Discard)
	engine := NewPlaylistEngine(search, writer, pw, ledger, store, nil, logger, 0)
	return engine, ledger, store
}

func TestSyncReusesLikesConfirmations(t *testing.T) {
	search := &fakeSearch{}
	pw := &fakePlaylistWriter{}
	engine, ledger, store := newTestPlaylistEngine(t, search, &fakeWriter{}, pw)

	confirmed := []models.MatchRecord{
		{SourceID: "1", SourceTitle: "Song A", TargetID: "sp1", TargetURI: "spotify:track:sp1", TitleScore: 0.95, Provenance: models.ProvenanceSearch},
	}
	if err := ledger.SaveConfirmed(confirmed); err != nil {
		t.Fatalf("SaveConfirmed failed: %v", err)
	}

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	summary, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(search.calls) != 0 {
		t.Errorf("confirmed track must not be searched again, got %v", search.calls)
	}
	if summary.PoolMatched != 1 {
		t.Errorf("expected 1 pool match, got %d", summary.PoolMatched)
	}

	pool := store.LoadPool()
	if entry := pool["1"]; !entry.Matched() || entry.Provenance != models.ProvenanceCrossref {
		t.Errorf("expected favs_crossref pool entry, got %+v", entry)
	}
}

func TestSyncSearchesUnknownTracksOnce(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.LibraryTrack{
		"Song B": {libTrack("sp2", "Song B", "B")},
	}}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})

	track := models.SourceTrack{ID: "2", Title: "Song B", Artists: "B"}
	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{track}},
		{ID: "p2", Name: "Other", Tracks: []models.SourceTrack{track}},
	}

	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(search.calls) != 1 {
		t.Errorf("track in two playlists must be searched once, got %v", search.calls)
	}

	pool := store.LoadPool()
	if entry := pool["2"]; !entry.Matched() || entry.Provenance != models.ProvenanceSearch {
		t.Errorf("expected api_search pool entry, got %+v", entry)
	}
}

func TestSyncPoolsConfirmedNoMatch(t *testing.T) {
	search := &fakeSearch{}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "9", Title: "Nothing", Artists: "X"}}},
	}

	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	pool := store.LoadPool()
	entry, present := pool["9"]
	if !present || entry.Matched() {
		t.Errorf("expected nil pool entry for no-match, got %+v (present=%v)", entry, present)
	}

	// Second sync: the nil entry suppresses a repeat search.
	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if len(search.calls) != 1 {
		t.Errorf("pooled no-match must not be searched again, got %v", search.calls)
	}
}

func TestSyncPrematchesFromLibrarySnapshot(t *testing.T) {
	search := &fakeSearch{}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})
	engine.Pager = &fakePager{pages: [][]models.LibraryTrack{{
		libTrack("sp1", "Song A", "A"),
	}}}

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(search.calls) != 0 {
		t.Errorf("track in the library must not be searched, got %v", search.calls)
	}
	pool := store.LoadPool()
	if entry := pool["1"]; !entry.Matched() || entry.Provenance != models.ProvenancePrematch {
		t.Errorf("expected library_prematch pool entry, got %+v", entry)
	}
}

func TestSyncPoolKeepsCandidatesForResolution(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.LibraryTrack{
		"Song A": {libTrack("sp9", "Completely Different Song", "Someone Else")},
	}}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	pool := store.LoadPool()
	entry := pool["1"]
	if entry.Matched() {
		t.Fatalf("low-score result must not match, got %+v", entry)
	}
	if entry == nil || len(entry.Candidates) != 1 || entry.Candidates[0].ID != "sp9" {
		t.Errorf("expected candidates kept for manual resolution, got %+v", entry)
	}
}

func TestSyncPoolRetriesShortRateLimit(t *testing.T) {
	oldSlack := rateLimitSlack
	rateLimitSlack = time.Millisecond
	t.Cleanup(func() { rateLimitSlack = oldSlack })

	search := &fakeSearch{
		results: map[string][]models.LibraryTrack{
			"Song A": {libTrack("sp1", "Song A", "A")},
		},
		errs: map[string]error{
			"Song A": &services.APIError{Kind: services.KindRateLimited, RetryAfter: time.Millisecond},
		},
	}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	if _, err := engine.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(search.calls) != 2 {
		t.Errorf("expected one retry after short rate limit, got %d calls", len(search.calls))
	}
	if entry := store.LoadPool()["1"]; !entry.Matched() {
		t.Errorf("expected retried search to fill the pool, got %+v", entry)
	}
}

func TestResolvePoolAppliesSelection(t *testing.T) {
	engine, _, store := newTestPlaylistEngine(t, &fakeSearch{}, &fakeWriter{}, &fakePlaylistWriter{})

	pool := map[string]*models.PoolEntry{
		"1": {Candidates: []models.Candidate{
			{ID: "sp1", URI: "spotify:track:sp1", Title: "Song A", Artists: "A", TitleScore: 0.6},
		}},
	}
	if err := store.SavePool(pool); err != nil {
		t.Fatalf("SavePool failed: %v", err)
	}

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	source := &scriptedDecisions{choices: []Choice{{Decision: DecisionSelect, Candidate: 0}}}
	summary, err := engine.ResolvePool(context.Background(), nil, playlists, source)
	if err != nil {
		t.Fatalf("ResolvePool failed: %v", err)
	}
	if summary.Accepted != 1 {
		t.Errorf("expected 1 accepted, got %+v", summary)
	}

	entry := store.LoadPool()["1"]
	if !entry.Matched() || entry.Provenance != models.ProvenanceManual {
		t.Errorf("expected manual pool match persisted, got %+v", entry)
	}
}

func TestResolvePoolNoMatchIsNotOfferedAgain(t *testing.T) {
	engine, _, store := newTestPlaylistEngine(t, &fakeSearch{}, &fakeWriter{}, &fakePlaylistWriter{})

	pool := map[string]*models.PoolEntry{
		"1": {Candidates: []models.Candidate{{ID: "sp1", TitleScore: 0.6}}},
	}
	if err := store.SavePool(pool); err != nil {
		t.Fatalf("SavePool failed: %v", err)
	}

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	source := &scriptedDecisions{choices: []Choice{{Decision: DecisionNoMatch}}}
	if _, err := engine.ResolvePool(context.Background(), nil, playlists, source); err != nil {
		t.Fatalf("ResolvePool failed: %v", err)
	}

	// Second session offers nothing, and sync never re-searches the track.
	source2 := &scriptedDecisions{}
	summary, err := engine.ResolvePool(context.Background(), nil, playlists, source2)
	if err != nil {
		t.Fatalf("second ResolvePool failed: %v", err)
	}
	if summary.Offered != 0 {
		t.Errorf("resolved no-match entry must not be offered again, offered %v", source2.offered)
	}

	search := &fakeSearch{}
	engine2 := NewPlaylistEngine(search, &fakeWriter{}, &fakePlaylistWriter{}, mustLedger(t), store, nil, shared.NewLogger(io.Discard), 0)
	if _, err := engine2.Sync(context.Background(), nil, playlists); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(search.calls) != 0 {
		t.Errorf("resolved no-match entry must not be re-searched, got %v", search.calls)
	}
}

func mustLedger(t *testing.T) *repositories.LedgerStore {
	t.Helper()
	store, err := repositories.NewLedgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLedgerStore failed: %v", err)
	}
	return store
}

func TestSyncHonorsSearchLimit(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.LibraryTrack{
		"Song A": {libTrack("sp1", "Song A", "A")},
		"Song B": {libTrack("sp2", "Song B", "B")},
	}}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, &fakePlaylistWriter{})
	engine.SearchLimit = 1

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{
			{ID: "1", Title: "Song A", Artists: "A"},
			{ID: "2", Title: "Song B", Artists: "B"},
		}},
	}

	summary, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if summary.NewSearches != 1 {
		t.Errorf("expected 1 search under the limit, got %d", summary.NewSearches)
	}
	pool := store.LoadPool()
	if _, present := pool["2"]; present {
		t.Errorf("track past the limit must stay out of the pool, got %+v", pool["2"])
	}
}

func TestSyncCrossLikesNewMatches(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.LibraryTrack{
		"Song B": {libTrack("sp2", "Song B", "B")},
	}}
	writer := &fakeWriter{}
	engine, ledger, _ := newTestPlaylistEngine(t, search, writer, &fakePlaylistWriter{})

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "2", Title: "Song B", Artists: "B"}}},
	}

	summary, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if summary.CrossLiked != 1 {
		t.Errorf("expected 1 cross-liked track, got %d", summary.CrossLiked)
	}
	if len(writer.batches) != 1 || writer.batches[0][0] != "sp2" {
		t.Errorf("expected library save for cross-liked track, got %v", writer.batches)
	}

	state := ledger.Load()
	if len(state.Confirmed) != 1 || state.Confirmed[0].Provenance != models.ProvenanceCrosslike {
		t.Errorf("expected playlist_crosslike confirmation, got %+v", state.Confirmed)
	}
}

func TestSyncCrossLikeSkipsKnownTargets(t *testing.T) {
	writer := &fakeWriter{}
	engine, ledger, _ := newTestPlaylistEngine(t, &fakeSearch{}, writer, &fakePlaylistWriter{})

	if err := ledger.SaveConfirmed([]models.MatchRecord{
		{SourceID: "1", TargetID: "sp1", TargetURI: "spotify:track:sp1", Provenance: models.ProvenanceSearch},
	}); err != nil {
		t.Fatalf("SaveConfirmed failed: %v", err)
	}

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	summary, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if summary.CrossLiked != 0 || len(writer.batches) != 0 {
		t.Errorf("already-confirmed target must not be re-liked: %+v %v", summary, writer.batches)
	}
}

func TestSyncMirrorsAddOnly(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.LibraryTrack{
		"Song A": {libTrack("sp1", "Song A", "A")},
		"Song B": {libTrack("sp2", "Song B", "B")},
	}}
	pw := &fakePlaylistWriter{}
	engine, _, store := newTestPlaylistEngine(t, search, &fakeWriter{}, pw)

	playlists := []models.SourcePlaylist{
		{ID: "p1", Name: "Mix", Tracks: []models.SourceTrack{{ID: "1", Title: "Song A", Artists: "A"}}},
	}

	summary, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if summary.NewPlaylists != 1 || summary.TracksAdded != 1 {
		t.Errorf("unexpected first sync summary: %+v", summary)
	}
	if len(pw.created) != 1 || pw.created[0] != "Mix" {
		t.Errorf("expected playlist Mix created, got %v", pw.created)
	}

	// Grow the source playlist; only the new track is appended.
	playlists[0].Tracks = append(playlists[0].Tracks, models.SourceTrack{ID: "2", Title: "Song B", Artists: "B"})

	summary2, err := engine.Sync(context.Background(), nil, playlists)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if summary2.NewPlaylists != 0 {
		t.Errorf("playlist must be reused via mapping, got %d new", summary2.NewPlaylists)
	}
	if summary2.TracksAdded != 1 {
		t.Errorf("expected only the new track added, got %d", summary2.TracksAdded)
	}

	mapping := store.LoadMapping()
	m := mapping["Mix"]
	if len(m.SyncedTrackIDs) != 2 {
		t.Errorf("expected watermark of 2 ids, got %v", m.SyncedTrackIDs)
	}

	var total int
	for _, uris := range pw.added {
		total += len(uris)
	}
	if total != 2 {
		t.Errorf("expected 2 playlist additions across syncs, got %d", total)
	}
}
