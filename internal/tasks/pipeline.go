package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nialit/ymx/internal/match"
	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// rateLimitWaitCap bounds how long a rate-limit retry will wait in place.
// A Retry-After above this means the write quota is gone for the day;
// waiting in-process would just burn the terminal, so the run persists its
// state and halts instead.
const rateLimitWaitCap = 60 * time.Second

// rateLimitSlack is added on top of the server's Retry-After before the
// single in-place retry. Variable so tests can shorten the wait.
var rateLimitSlack = 5 * time.Second

// Options tunes a reconciliation run.
type Options struct {
	Threshold      float64 // minimum similarity for an automatic match
	BatchSize      int     // pending tracks per bulk library write
	PageSize       int     // snapshot page size
	Limit          int     // max remote searches this run, 0 for unlimited
	CandidateLimit int     // search results requested per track

	// ForceFullFetch disables the snapshot early-stop heuristic and
	// refetches the whole library.
	ForceFullFetch bool

	// CachedOnly skips the snapshot fetch and prematches against the
	// library cache alone. Useful offline or when quota is tight.
	CachedOnly bool
}

func (o *Options) applyDefaults() {
	if o.Threshold <= 0 {
		o.Threshold = match.DefaultThreshold
	}
	if o.BatchSize <= 0 || o.BatchSize > services.MaxSaveBatch {
		o.BatchSize = services.MaxSaveBatch
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = match.CandidatesToStore
	}
}

// Summary is the outcome of one reconciliation run.
type Summary struct {
	RunID      string `json:"run_id"`
	Total      int    `json:"total"`
	Skipped    int    `json:"skipped"`
	Prematched int    `json:"prematched"`
	Searched   int    `json:"searched"`
	Matched    int    `json:"matched"`
	Rejected   int    `json:"rejected"`
	Confirmed  int    `json:"confirmed"`
	Halted     bool   `json:"halted,omitempty"`
}

// Engine orchestrates a crash-safe reconciliation run: resume any pending
// batch, refresh the library snapshot, prematch locally, search the catalog
// for the rest, and flush matches to the library in batches.
//
// Every state transition is persisted before the remote side effect it
// gates, so a crash at any point resumes without duplicated effects.
type Engine struct {
	search  services.SearchProvider
	writer  services.LibraryWriter
	pager   services.LibraryPager
	store   *repositories.LedgerStore
	cache   *repositories.LibraryCache
	limiter *rate.Limiter
	logger  *log.Logger
	opts    Options
}

// NewEngine wires a pipeline engine from its collaborators.
func NewEngine(
	search services.SearchProvider,
	writer services.LibraryWriter,
	pager services.LibraryPager,
	store *repositories.LedgerStore,
	cache *repositories.LibraryCache,
	limiter *rate.Limiter,
	logger *log.Logger,
	opts Options,
) *Engine {
	opts.applyDefaults()
	return &Engine{
		search:  search,
		writer:  writer,
		pager:   pager,
		store:   store,
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		opts:    opts,
	}
}

// Run executes one reconciliation pass over the source tracks. Tracks are
// processed in reverse export order (oldest likes first) so interrupted runs
// make monotonic progress from the same end.
//
// A cancelled context persists all in-memory state (unapplied matches land
// in the pending partition) before returning, so Ctrl-C is always safe.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate, tracks []models.SourceTrack) (*Summary, error) {
	summary := &Summary{RunID: shared.GenerateID(), Total: len(tracks)}
	ledger := e.store.Load()

	// Re-apply the pending batch from a previous crash before anything
	// else. The bulk write is idempotent so a batch that half-applied
	// last time applies cleanly now.
	if len(ledger.Pending) > 0 {
		e.logger.Info("resuming pending batch", "count", len(ledger.Pending))
		sendProgress(progress, resumePendingUpdate(len(ledger.Pending)))
		if err := e.flush(ctx, ledger, ledger.Pending); err != nil {
			summary.Halted = true
			return summary, err
		}
		ledger.Pending = nil
	}

	snapshot, err := e.fetchSnapshot(ctx, ledger, progress)
	if err != nil {
		summary.Halted = true
		return summary, e.persistAndHalt(ctx, ledger, nil, err)
	}
	ix := match.BuildIndex(snapshot)
	e.logger.Info("library index built", "tracks", ix.Size())

	done := ledger.DoneIDs()
	var remaining []models.SourceTrack
	for i := len(tracks) - 1; i >= 0; i-- {
		if done[tracks[i].ID] {
			summary.Skipped++
			continue
		}
		remaining = append(remaining, tracks[i])
	}

	// Rejected records get another prematch look: the snapshot may have
	// grown since they were rejected.
	rejectedSources := make([]models.SourceTrack, 0, len(ledger.Rejected))
	for _, r := range ledger.Rejected {
		rejectedSources = append(rejectedSources, r.Source())
	}

	prematched, unmatched := match.Prematch(remaining, ix, e.opts.Threshold)
	recovered, _ := match.Prematch(rejectedSources, ix, e.opts.Threshold)

	if len(recovered) > 0 {
		recoveredIDs := make(map[string]bool, len(recovered))
		for _, r := range recovered {
			recoveredIDs[r.SourceID] = true
		}
		ledger.DropRejected(recoveredIDs)
		prematched = append(prematched, recovered...)
	}

	// Prematch hits are already in the target library; confirming them is
	// a pure ledger write, no bulk call needed.
	if len(prematched) > 0 {
		ledger.Confirmed = append(ledger.Confirmed, prematched...)
		if err := e.store.SaveConfirmed(ledger.Confirmed); err != nil {
			return summary, err
		}
		if err := e.store.SaveRejected(ledger.Rejected); err != nil {
			return summary, err
		}
	}
	summary.Prematched = len(prematched)
	sendProgress(progress, prematchUpdate(len(prematched), len(unmatched)))

	var batch []models.MatchRecord
	for i, t := range unmatched {
		if err := ctx.Err(); err != nil {
			summary.Halted = true
			return summary, e.persistAndHalt(ctx, ledger, batch, err)
		}
		if e.opts.Limit > 0 && summary.Searched >= e.opts.Limit {
			e.logger.Info("search limit reached", "limit", e.opts.Limit)
			break
		}

		sendProgress(progress, searchTrackUpdate(i+1, len(unmatched), t))

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				summary.Halted = true
				return summary, e.persistAndHalt(ctx, ledger, batch, err)
			}
		}

		results, err := searchWithRetry(ctx, e.search, e.logger, progress, t, e.opts.CandidateLimit)
		summary.Searched++

		switch {
		case err == nil:
		case services.Forbidden(err):
			e.logger.Error("write quota or permission lost", "err", err)
			summary.Halted = true
			return summary, e.persistAndHalt(ctx, ledger, batch, fmt.Errorf("%w: %v", shared.ErrRunHalted, err))
		case isHalting(err):
			summary.Halted = true
			return summary, e.persistAndHalt(ctx, ledger, batch, err)
		default:
			// Transient search failure rejects just this track; a later
			// run retries it via the rejected partition.
			e.logger.Warn("search failed", "track", t.Title, "err", err)
			if err := e.reject(ledger, rejectRecord(t, models.ReasonAPIError, nil)); err != nil {
				return summary, err
			}
			summary.Rejected++
			continue
		}

		record, ok := e.evaluate(t, results)
		if !ok {
			if err := e.reject(ledger, record); err != nil {
				return summary, err
			}
			summary.Rejected++
			continue
		}

		batch = append(batch, record)
		summary.Matched++

		if len(batch) >= e.opts.BatchSize {
			if err := e.flush(ctx, ledger, batch); err != nil {
				summary.Halted = true
				return summary, err
			}
			batch = nil
			sendProgress(progress, flushUpdate(e.opts.BatchSize, len(ledger.Confirmed)))
		}
	}

	if len(batch) > 0 {
		if err := e.flush(ctx, ledger, batch); err != nil {
			summary.Halted = true
			return summary, err
		}
		sendProgress(progress, flushUpdate(len(batch), len(ledger.Confirmed)))
	}

	markArtistsMet(ledger)
	if err := e.store.SaveRejected(ledger.Rejected); err != nil {
		return summary, err
	}

	summary.Confirmed = len(ledger.Confirmed)
	return summary, nil
}

// reject appends a record to the rejected partition and writes it out
// immediately. Rejections carry no side effect, so persisting each one is
// cheap and a crash never loses stored candidates.
func (e *Engine) reject(ledger *repositories.Ledger, record models.MatchRecord) error {
	ledger.Rejected = append(ledger.Rejected, record)
	return e.store.SaveRejected(ledger.Rejected)
}

// markArtistsMet flags rejected records whose artist has at least one
// confirmed match, a hint that the track itself is what the catalog lacks.
func markArtistsMet(ledger *repositories.Ledger) {
	matched := make(map[string]bool)
	for _, r := range ledger.Confirmed {
		for _, a := range models.SplitArtists(r.SourceArtists) {
			if a != "" {
				matched[a] = true
			}
		}
	}

	for i, r := range ledger.Rejected {
		met := false
		for _, a := range models.SplitArtists(r.SourceArtists) {
			if matched[a] {
				met = true
				break
			}
		}
		ledger.Rejected[i].ArtistMet = met
	}
}

// FlushPending re-applies the pending partition without running the rest of
// the pipeline. Returns how many records were promoted.
func (e *Engine) FlushPending(ctx context.Context) (int, error) {
	ledger := e.store.Load()
	if len(ledger.Pending) == 0 {
		return 0, nil
	}

	count := len(ledger.Pending)
	if err := e.flush(ctx, ledger, ledger.Pending); err != nil {
		return 0, err
	}
	return count, nil
}

// fetchSnapshot refreshes the library mirror and returns the full cached
// snapshot for indexing.
func (e *Engine) fetchSnapshot(ctx context.Context, ledger *repositories.Ledger, progress chan<- ProgressUpdate) ([]models.LibraryTrack, error) {
	if e.opts.CachedOnly && e.cache != nil {
		return e.cache.All()
	}

	snap := NewSnapshotter(e.pager, e.cache, e.logger, e.opts.PageSize)
	snap.KnownIDs = ledger.ConfirmedTargetIDs()
	snap.ForceFull = e.opts.ForceFullFetch

	fetched, err := snap.Fetch(ctx, progress)
	if err != nil {
		return nil, err
	}

	if e.cache == nil {
		return fetched, nil
	}
	// The cache holds the union of this fetch and everything fetched
	// before an early stop, so index from it rather than the page list.
	return e.cache.All()
}

// evaluate ranks raw search results against the source track and decides
// acceptance. Returns the match record and true on acceptance; on rejection
// the record carries the reason and ranked candidates.
func (e *Engine) evaluate(t models.SourceTrack, results []models.LibraryTrack) (models.MatchRecord, bool) {
	best, candidates := match.Rank(results, t.Title)
	if best == nil {
		return rejectRecord(t, models.ReasonNoResults, nil), false
	}

	if best.TitleScore < e.opts.Threshold {
		reason := fmt.Sprintf("%s best=%.2f", models.ReasonMismatch, best.TitleScore)
		return rejectRecord(t, reason, candidates), false
	}

	return models.MatchRecord{
		SourceID:      t.ID,
		SourceTitle:   t.Title,
		SourceArtists: t.Artists,
		TargetID:      best.ID,
		TargetURI:     best.URI,
		TargetTitle:   best.Title,
		TargetArtists: best.Artists,
		TitleScore:    best.TitleScore,
		ArtistScore:   match.ArtistScore(t, best.Artists),
		Provenance:    models.ProvenanceSearch,
	}, true
}

// searchWithRetry runs one catalog search, absorbing a single short
// rate-limit wait. A Retry-After above rateLimitWaitCap, or a second
// rate limit on the retry, halts the run.
func searchWithRetry(ctx context.Context, search services.SearchProvider, logger *log.Logger, progress chan<- ProgressUpdate, t models.SourceTrack, limit int) ([]models.LibraryTrack, error) {
	results, err := search.SearchTracks(ctx, t.Title, t.PrimaryArtist(), limit)
	retryAfter, limited := services.RateLimited(err)
	if !limited {
		return results, err
	}

	if retryAfter > rateLimitWaitCap {
		return nil, fmt.Errorf("%w: rate limited for %s, likely out of quota", shared.ErrRunHalted, retryAfter)
	}

	wait := retryAfter + rateLimitSlack
	logger.Warn("rate limited", "wait", wait)
	sendProgress(progress, rateLimitUpdate(fmt.Sprintf("Rate limited, waiting %s...", wait)))
	if err := sleepCtx(ctx, wait); err != nil {
		return nil, err
	}

	results, err = search.SearchTracks(ctx, t.Title, t.PrimaryArtist(), limit)
	if _, limited := services.RateLimited(err); limited {
		return nil, fmt.Errorf("%w: still rate limited after retry", shared.ErrRunHalted)
	}
	return results, err
}

// flush applies a batch of matched records: persist them as pending, issue
// the bulk library write, promote to confirmed, clear pending. The ordering
// is what makes a crash at any point recoverable.
func (e *Engine) flush(ctx context.Context, ledger *repositories.Ledger, batch []models.MatchRecord) error {
	if len(batch) == 0 {
		return nil
	}

	if err := e.store.SavePending(batch); err != nil {
		return err
	}

	for start := 0; start < len(batch); start += services.MaxSaveBatch {
		end := min(start+services.MaxSaveBatch, len(batch))
		ids := make([]string, 0, end-start)
		for _, r := range batch[start:end] {
			ids = append(ids, r.TargetID)
		}

		if err := e.saveWithRetry(ctx, ids); err != nil {
			// Pending is on disk; the next run re-applies it.
			if services.Forbidden(err) {
				err = fmt.Errorf("%w: %v", shared.ErrRunHalted, err)
			}
			if saveErr := e.store.SaveConfirmed(ledger.Confirmed); saveErr != nil {
				e.logger.Error("failed to persist confirmed during halt", "err", saveErr)
			}
			if saveErr := e.store.SaveRejected(ledger.Rejected); saveErr != nil {
				e.logger.Error("failed to persist rejected during halt", "err", saveErr)
			}
			return err
		}
	}

	ledger.Confirmed = append(ledger.Confirmed, batch...)
	if err := e.store.SaveConfirmed(ledger.Confirmed); err != nil {
		return err
	}
	return e.store.ClearPending()
}

// saveWithRetry issues one bulk library write, absorbing a single short
// rate-limit wait the same way searchWithRetry does.
func (e *Engine) saveWithRetry(ctx context.Context, ids []string) error {
	err := e.writer.SaveTracks(ctx, ids)
	retryAfter, limited := services.RateLimited(err)
	if !limited {
		return err
	}

	if retryAfter > rateLimitWaitCap {
		return fmt.Errorf("%w: rate limited for %s, likely out of quota", shared.ErrRunHalted, retryAfter)
	}

	wait := retryAfter + rateLimitSlack
	e.logger.Warn("rate limited on bulk write", "wait", wait)
	if err := sleepCtx(ctx, wait); err != nil {
		return err
	}

	err = e.writer.SaveTracks(ctx, ids)
	if _, limited := services.RateLimited(err); limited {
		return fmt.Errorf("%w: still rate limited after retry", shared.ErrRunHalted)
	}
	return err
}

// persistAndHalt writes every in-memory partition to disk, parking any
// unapplied batch in pending, then returns cause. An interrupt gets one
// drain attempt first, detached from the cancelled context, so Ctrl-C
// applies what is already matched instead of deferring it to the next run.
func (e *Engine) persistAndHalt(ctx context.Context, ledger *repositories.Ledger, batch []models.MatchRecord, cause error) error {
	if errors.Is(cause, context.Canceled) && len(batch) > 0 {
		if err := e.flush(context.WithoutCancel(ctx), ledger, batch); err == nil {
			batch = nil
		} else {
			e.logger.Warn("interrupt drain failed, batch parked in pending", "err", err)
		}
	}

	markArtistsMet(ledger)
	if err := e.store.SaveConfirmed(ledger.Confirmed); err != nil {
		e.logger.Error("failed to persist confirmed during halt", "err", err)
	}
	if err := e.store.SaveRejected(ledger.Rejected); err != nil {
		e.logger.Error("failed to persist rejected during halt", "err", err)
	}
	if len(batch) > 0 {
		if err := e.store.SavePending(batch); err != nil {
			e.logger.Error("failed to persist pending during halt", "err", err)
		}
	}
	return cause
}

// isHalting reports whether err already carries run-halt semantics.
func isHalting(err error) bool {
	return errors.Is(err, shared.ErrRunHalted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func rejectRecord(t models.SourceTrack, reason string, candidates []models.Candidate) models.MatchRecord {
	return models.MatchRecord{
		SourceID:      t.ID,
		SourceTitle:   t.Title,
		SourceArtists: t.Artists,
		Reason:        reason,
		Candidates:    candidates,
	}
}
