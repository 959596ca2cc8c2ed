package tasks

import (
	"fmt"

	"github.com/Nialit/ymx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ResumePending Phase = iota
	FetchSnapshot
	PrematchLibrary
	SearchCatalog
	FlushBatch
	ResolvePending
	MatchPool
	CrossLike
	SyncPlaylists
)

func (p Phase) String() string {
	switch p {
	case ResumePending:
		return "resume_pending"
	case FetchSnapshot:
		return "fetch_snapshot"
	case PrematchLibrary:
		return "prematch_library"
	case SearchCatalog:
		return "search_catalog"
	case FlushBatch:
		return "flush_batch"
	case ResolvePending:
		return "resolve_pending"
	case MatchPool:
		return "match_pool"
	case CrossLike:
		return "cross_like"
	case SyncPlaylists:
		return "sync_playlists"
	default:
		return ""
	}
}

func resumePendingUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResumePending,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Re-applying %d pending tracks from the previous run...", count),
	}
}

func snapshotPageUpdate(fetched int, hasMore bool) ProgressUpdate {
	msg := fmt.Sprintf("Fetched %d library tracks...", fetched)
	if !hasMore {
		msg = fmt.Sprintf("Library snapshot complete: %d tracks", fetched)
	}
	return ProgressUpdate{
		Phase:   FetchSnapshot,
		Step:    fetched,
		Total:   fetched,
		Message: msg,
	}
}

func snapshotEarlyStopUpdate(fetched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSnapshot,
		Step:    fetched,
		Total:   fetched,
		Message: fmt.Sprintf("Stopping snapshot early after %d tracks (remainder already known)", fetched),
	}
}

func prematchUpdate(matched, remaining int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrematchLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Prematched %d tracks against the library, %d left for search", matched, remaining),
	}
}

func searchTrackUpdate(step, total int, t models.SourceTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchCatalog,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, t.PrimaryArtist(), t.Title),
	}
}

func flushUpdate(count, confirmed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FlushBatch,
		Step:    confirmed,
		Total:   confirmed,
		Message: fmt.Sprintf("Saved batch of %d tracks (%d confirmed total)", count, confirmed),
	}
}

func rateLimitUpdate(message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchCatalog,
		Step:    0,
		Total:   0,
		Message: message,
	}
}

func resolveUpdate(step, total int, r models.MatchRecord) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvePending,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, r.SourceArtists, r.SourceTitle),
	}
}

func poolUpdate(step, total int, t models.SourceTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MatchPool,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, t.PrimaryArtist(), t.Title),
	}
}

func crossLikeUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CrossLike,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Liked %d playlist tracks not yet in the library", count),
	}
}

func syncPlaylistUpdate(step, total int, name string, added int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: +%d tracks", step, total, name, added),
	}
}
