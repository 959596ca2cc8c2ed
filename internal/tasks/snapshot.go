package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
	"github.com/charmbracelet/log"
)

// earlyStopRatio is the fraction of a snapshot page that must already be
// known (confirmed in a previous run) before the fetch stops early. Pages
// arrive newest-first, so once a page is almost entirely known everything
// past it was seen before.
const earlyStopRatio = 0.9

// Snapshotter fetches the target library a page at a time, mirroring every
// page into the SQLite cache as it goes. A crash mid-fetch loses nothing:
// the cache upserts by track id and the next run simply refetches.
type Snapshotter struct {
	pager    services.LibraryPager
	cache    *repositories.LibraryCache
	logger   *log.Logger
	pageSize int

	// KnownIDs are target ids confirmed in previous runs, used for the
	// early-stop heuristic. ForceFull disables early stop entirely.
	KnownIDs  map[string]bool
	ForceFull bool
}

// NewSnapshotter creates a snapshot fetcher over the given pager and cache.
func NewSnapshotter(pager services.LibraryPager, cache *repositories.LibraryCache, logger *log.Logger, pageSize int) *Snapshotter {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Snapshotter{
		pager:    pager,
		cache:    cache,
		logger:   logger,
		pageSize: pageSize,
	}
}

// Fetch pulls library pages until exhausted or until the early-stop
// heuristic fires, returning everything fetched. A rate-limited page waits
// out the Retry-After and continues; fetching is read-only so there is no
// state to protect by halting.
func (s *Snapshotter) Fetch(ctx context.Context, progress chan<- ProgressUpdate) ([]models.LibraryTrack, error) {
	var all []models.LibraryTrack
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		page, hasMore, err := s.pager.LibraryPage(ctx, offset, s.pageSize)
		if retryAfter, ok := services.RateLimited(err); ok {
			wait := retryAfter + rateLimitSlack
			s.logger.Warn("rate limited during snapshot fetch", "wait", wait)
			sendProgress(progress, rateLimitUpdate(fmt.Sprintf("Rate limited, waiting %s...", wait)))
			if err := sleepCtx(ctx, wait); err != nil {
				return all, err
			}
			continue
		}
		if err != nil {
			return all, fmt.Errorf("%w: snapshot page at offset %d: %v", shared.ErrAPIRequest, offset, err)
		}

		if s.cache != nil {
			if err := s.cache.Put(page); err != nil {
				return all, err
			}
		}

		all = append(all, page...)
		offset += s.pageSize
		sendProgress(progress, snapshotPageUpdate(len(all), hasMore))

		if !hasMore {
			return all, nil
		}

		if !s.ForceFull && s.pageKnown(page) {
			s.logger.Info("snapshot early stop", "fetched", len(all))
			sendProgress(progress, snapshotEarlyStopUpdate(len(all)))
			return all, nil
		}
	}
}

// pageKnown reports whether at least earlyStopRatio of the page was
// confirmed in a previous run.
func (s *Snapshotter) pageKnown(page []models.LibraryTrack) bool {
	if len(page) == 0 || len(s.KnownIDs) == 0 {
		return false
	}
	known := 0
	for _, t := range page {
		if s.KnownIDs[t.ID] {
			known++
		}
	}
	return float64(known)/float64(len(page)) >= earlyStopRatio
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
