package tasks

import (
	"context"
	"fmt"

	"github.com/Nialit/ymx/internal/match"
	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// poolSaveEvery bounds how much pool progress one crash can lose.
const poolSaveEvery = 25

// PlaylistSummary is the outcome of one playlist sync pass.
type PlaylistSummary struct {
	Playlists    int `json:"playlists"`
	PoolSize     int `json:"pool_size"`
	PoolMatched  int `json:"pool_matched"`
	NewSearches  int `json:"new_searches"`
	CrossLiked   int `json:"cross_liked"`
	TracksAdded  int `json:"tracks_added"`
	NewPlaylists int `json:"new_playlists"`
}

// PlaylistEngine mirrors source playlists onto the target service. Matching
// goes through a shared pool so a track appearing in five playlists is
// searched once; matches already confirmed by a likes run are reused
// without any remote call.
type PlaylistEngine struct {
	search    services.SearchProvider
	writer    services.LibraryWriter
	playlists services.PlaylistWriter
	ledger    *repositories.LedgerStore
	store     *repositories.PlaylistStore
	limiter   *rate.Limiter
	logger    *log.Logger
	threshold float64

	// SearchLimit caps new remote searches during pool fill, 0 for
	// unlimited. Pool entries past the cap are filled on a later run.
	SearchLimit int

	// Pager enables the library-prematch phase of the pool fill: the
	// snapshot is fetched and pool tracks already in the library match
	// without a remote search. Left nil, pool fill goes straight to search.
	Pager    services.LibraryPager
	Cache    *repositories.LibraryCache
	PageSize int
}

// NewPlaylistEngine wires a playlist engine from its collaborators.
func NewPlaylistEngine(
	search services.SearchProvider,
	writer services.LibraryWriter,
	playlists services.PlaylistWriter,
	ledger *repositories.LedgerStore,
	store *repositories.PlaylistStore,
	limiter *rate.Limiter,
	logger *log.Logger,
	threshold float64,
) *PlaylistEngine {
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}
	return &PlaylistEngine{
		search:    search,
		writer:    writer,
		playlists: playlists,
		ledger:    ledger,
		store:     store,
		limiter:   limiter,
		logger:    logger,
		threshold: threshold,
	}
}

// Sync runs the full playlist pass: fill the match pool, cross-like matched
// tracks into the library, then mirror each playlist add-only.
func (e *PlaylistEngine) Sync(ctx context.Context, progress chan<- ProgressUpdate, playlists []models.SourcePlaylist) (*PlaylistSummary, error) {
	summary := &PlaylistSummary{Playlists: len(playlists)}

	pool := e.store.LoadPool()
	if err := e.fillPool(ctx, progress, playlists, pool, summary); err != nil {
		return summary, err
	}

	if err := e.crossLike(ctx, progress, playlists, pool, summary); err != nil {
		return summary, err
	}

	if err := e.mirror(ctx, progress, playlists, pool, summary); err != nil {
		return summary, err
	}

	summary.PoolSize = len(pool)
	for _, entry := range pool {
		if entry.Matched() {
			summary.PoolMatched++
		}
	}
	return summary, nil
}

// fillPool resolves every playlist track not yet in the pool: first by
// reusing likes-run confirmations, then by prematching against the library
// snapshot, then by remote search. A below-threshold search result is pooled
// unmatched with its candidates kept for manual resolution, so it is never
// searched again.
func (e *PlaylistEngine) fillPool(ctx context.Context, progress chan<- ProgressUpdate, playlists []models.SourcePlaylist, pool map[string]*models.PoolEntry, summary *PlaylistSummary) error {
	confirmed := e.ledger.Load().ConfirmedBySource()

	var todo []models.SourceTrack
	seen := make(map[string]bool)
	for _, pl := range playlists {
		for _, t := range pl.Tracks {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			if _, done := pool[t.ID]; done {
				continue
			}
			if rec, ok := confirmed[t.ID]; ok && rec.Matched() {
				pool[t.ID] = &models.PoolEntry{
					TargetID:    rec.TargetID,
					TargetURI:   rec.TargetURI,
					TitleScore:  rec.TitleScore,
					ArtistScore: rec.ArtistScore,
					Provenance:  models.ProvenanceCrossref,
				}
				continue
			}
			todo = append(todo, t)
		}
	}
	e.savePool(pool)

	todo, err := e.prematchPool(ctx, progress, todo, pool)
	if err != nil {
		e.savePool(pool)
		return err
	}

	sinceSave := 0
	for i, t := range todo {
		if err := ctx.Err(); err != nil {
			e.savePool(pool)
			return err
		}

		sendProgress(progress, poolUpdate(i+1, len(todo), t))

		if e.SearchLimit > 0 && summary.NewSearches >= e.SearchLimit {
			e.logger.Info("pool search limit reached", "limit", e.SearchLimit)
			break
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.savePool(pool)
				return err
			}
		}

		results, err := searchWithRetry(ctx, e.search, e.logger, progress, t, match.CandidatesToStore)
		summary.NewSearches++
		switch {
		case err == nil:
		case services.Forbidden(err):
			e.savePool(pool)
			return fmt.Errorf("%w: %v", shared.ErrRunHalted, err)
		case isHalting(err):
			e.savePool(pool)
			return err
		default:
			e.logger.Warn("pool search failed", "track", t.Title, "err", err)
			continue
		}

		best, candidates := match.Rank(results, t.Title)
		if best == nil || best.TitleScore < e.threshold {
			pool[t.ID] = &models.PoolEntry{Candidates: candidates}
			sinceSave++
			continue
		}

		pool[t.ID] = &models.PoolEntry{
			TargetID:    best.ID,
			TargetURI:   best.URI,
			TitleScore:  best.TitleScore,
			ArtistScore: match.ArtistScore(t, best.Artists),
			Provenance:  models.ProvenanceSearch,
		}
		sinceSave++

		if sinceSave >= poolSaveEvery {
			e.savePool(pool)
			sinceSave = 0
		}
	}

	e.savePool(pool)
	return nil
}

// prematchPool matches pool tracks against the library snapshot before any
// remote search, returning the tracks that still need one.
func (e *PlaylistEngine) prematchPool(ctx context.Context, progress chan<- ProgressUpdate, todo []models.SourceTrack, pool map[string]*models.PoolEntry) ([]models.SourceTrack, error) {
	if e.Pager == nil || len(todo) == 0 {
		return todo, nil
	}

	snap := NewSnapshotter(e.Pager, e.Cache, e.logger, e.PageSize)
	snap.KnownIDs = e.ledger.Load().ConfirmedTargetIDs()

	snapshot, err := snap.Fetch(ctx, progress)
	if err != nil {
		return todo, err
	}
	if e.Cache != nil {
		if snapshot, err = e.Cache.All(); err != nil {
			return todo, err
		}
	}

	ix := match.BuildIndex(snapshot)
	prematched, unmatched := match.Prematch(todo, ix, e.threshold)
	for _, rec := range prematched {
		pool[rec.SourceID] = &models.PoolEntry{
			TargetID:    rec.TargetID,
			TargetURI:   rec.TargetURI,
			TitleScore:  rec.TitleScore,
			ArtistScore: rec.ArtistScore,
			Provenance:  models.ProvenancePrematch,
		}
	}
	if len(prematched) > 0 {
		e.savePool(pool)
	}
	return unmatched, nil
}

// crossLike saves matched playlist tracks that the likes ledger does not
// cover yet, so a playlist track also becomes a library track. New
// confirmations carry the playlist_crosslike provenance.
func (e *PlaylistEngine) crossLike(ctx context.Context, progress chan<- ProgressUpdate, playlists []models.SourcePlaylist, pool map[string]*models.PoolEntry, summary *PlaylistSummary) error {
	ledger := e.ledger.Load()
	knownTargets := ledger.ConfirmedTargetIDs()
	knownSources := ledger.DoneIDs()

	var records []models.MatchRecord
	seen := make(map[string]bool)
	for _, pl := range playlists {
		for _, t := range pl.Tracks {
			entry := pool[t.ID]
			if !entry.Matched() || seen[t.ID] || knownSources[t.ID] || knownTargets[entry.TargetID] {
				continue
			}
			seen[t.ID] = true
			records = append(records, models.MatchRecord{
				SourceID:      t.ID,
				SourceTitle:   t.Title,
				SourceArtists: t.Artists,
				TargetID:      entry.TargetID,
				TargetURI:     entry.TargetURI,
				TitleScore:    entry.TitleScore,
				ArtistScore:   entry.ArtistScore,
				Provenance:    models.ProvenanceCrosslike,
			})
		}
	}

	if len(records) == 0 {
		return nil
	}

	if err := e.ledger.SavePending(records); err != nil {
		return err
	}

	for start := 0; start < len(records); start += services.MaxSaveBatch {
		end := min(start+services.MaxSaveBatch, len(records))
		ids := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			ids = append(ids, r.TargetID)
		}
		if err := e.writer.SaveTracks(ctx, ids); err != nil {
			if services.Forbidden(err) {
				return fmt.Errorf("%w: %v", shared.ErrRunHalted, err)
			}
			return err
		}
	}

	ledger.Confirmed = append(ledger.Confirmed, records...)
	if err := e.ledger.SaveConfirmed(ledger.Confirmed); err != nil {
		return err
	}
	if err := e.ledger.ClearPending(); err != nil {
		return err
	}

	summary.CrossLiked = len(records)
	sendProgress(progress, crossLikeUpdate(len(records)))
	return nil
}

// mirror creates missing target playlists and appends tracks past each
// playlist's watermark. Sync is add-only: removals and reorders on either
// side are never propagated.
func (e *PlaylistEngine) mirror(ctx context.Context, progress chan<- ProgressUpdate, playlists []models.SourcePlaylist, pool map[string]*models.PoolEntry, summary *PlaylistSummary) error {
	mapping := e.store.LoadMapping()

	for i, pl := range playlists {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, ok := mapping[pl.Name]
		if !ok || m.TargetPlaylistID == "" {
			id, err := e.playlists.CreatePlaylist(ctx, pl.Name)
			if err != nil {
				return fmt.Errorf("%w: failed to create playlist %q: %v", shared.ErrAPIRequest, pl.Name, err)
			}
			m = models.PlaylistMapping{SourceName: pl.Name, TargetPlaylistID: id}
			mapping[pl.Name] = m
			if err := e.store.SaveMapping(mapping); err != nil {
				return err
			}
			summary.NewPlaylists++
			e.logger.Info("created playlist", "name", pl.Name, "id", id)
		}

		synced := make(map[string]bool, len(m.SyncedTrackIDs))
		for _, id := range m.SyncedTrackIDs {
			synced[id] = true
		}

		var newIDs []string
		var uris []string
		for _, t := range pl.Tracks {
			if synced[t.ID] {
				continue
			}
			entry := pool[t.ID]
			if !entry.Matched() {
				continue
			}
			newIDs = append(newIDs, t.ID)
			uris = append(uris, entry.TargetURI)
		}

		for start := 0; start < len(uris); start += services.MaxPlaylistBatch {
			end := min(start+services.MaxPlaylistBatch, len(uris))
			if err := e.playlists.AddPlaylistTracks(ctx, m.TargetPlaylistID, uris[start:end]); err != nil {
				return fmt.Errorf("%w: failed to add tracks to %q: %v", shared.ErrAPIRequest, pl.Name, err)
			}
		}

		if len(newIDs) > 0 {
			m.SyncedTrackIDs = append(m.SyncedTrackIDs, newIDs...)
			mapping[pl.Name] = m
			if err := e.store.SaveMapping(mapping); err != nil {
				return err
			}
		}

		summary.TracksAdded += len(newIDs)
		sendProgress(progress, syncPlaylistUpdate(i+1, len(playlists), pl.Name, len(newIDs)))
	}

	return nil
}

// ResolvePool offers unmatched pool entries that carry candidates to the
// decision source and applies the verdicts. Every verdict is written to the
// pool file before the next entry is offered. Matches accepted here are
// picked up by the next sync pass for cross-liking and mirroring.
func (e *PlaylistEngine) ResolvePool(ctx context.Context, progress chan<- ProgressUpdate, playlists []models.SourcePlaylist, source DecisionSource) (*ResolveSummary, error) {
	pool := e.store.LoadPool()
	summary := &ResolveSummary{}

	offerable := 0
	seen := make(map[string]bool)
	for _, pl := range playlists {
		for _, t := range pl.Tracks {
			if entry := pool[t.ID]; !seen[t.ID] && entry != nil && !entry.Matched() && len(entry.Candidates) > 0 {
				offerable++
			}
			seen[t.ID] = true
		}
	}

	step := 0
	clear(seen)
	for _, pl := range playlists {
		for _, t := range pl.Tracks {
			entry := pool[t.ID]
			if seen[t.ID] || entry == nil || entry.Matched() || len(entry.Candidates) == 0 {
				continue
			}
			seen[t.ID] = true

			rec := models.MatchRecord{
				SourceID:      t.ID,
				SourceTitle:   t.Title,
				SourceArtists: t.Artists,
				Reason:        models.ReasonMismatch,
				Candidates:    entry.Candidates,
			}

			step++
			summary.Offered++
			sendProgress(progress, resolveUpdate(step, offerable, rec))

			choice, err := source.Decide(ctx, rec)
			if err != nil {
				return summary, err
			}

			switch choice.Decision {
			case DecisionSelect:
				if choice.Candidate < 0 || choice.Candidate >= len(entry.Candidates) {
					return summary, fmt.Errorf("candidate index %d out of range", choice.Candidate)
				}
				c := entry.Candidates[choice.Candidate]
				pool[t.ID] = &models.PoolEntry{
					TargetID:    c.ID,
					TargetURI:   c.URI,
					TitleScore:  c.TitleScore,
					ArtistScore: match.ArtistScore(t, c.Artists),
					Provenance:  models.ProvenanceManual,
				}
				if err := e.store.SavePool(pool); err != nil {
					return summary, err
				}
				summary.Accepted++
			case DecisionNoMatch:
				// Dropping the candidates keeps the entry out of future
				// sessions without reopening it to search.
				pool[t.ID] = &models.PoolEntry{}
				if err := e.store.SavePool(pool); err != nil {
					return summary, err
				}
				summary.NoMatch++
			case DecisionQuit:
				summary.Skipped++
				return summary, nil
			default:
				summary.Skipped++
			}
		}
	}

	return summary, nil
}

func (e *PlaylistEngine) savePool(pool map[string]*models.PoolEntry) {
	if err := e.store.SavePool(pool); err != nil {
		e.logger.Error("failed to persist match pool", "err", err)
	}
}
