package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nialit/ymx/internal/models"
)

// SearchProvider issues keyword queries against the target catalog.
type SearchProvider interface {
	// SearchTracks runs one combined title+artist query and returns up to
	// limit raw (unscored) results.
	SearchTracks(ctx context.Context, title, artist string, limit int) ([]models.LibraryTrack, error)
}

// LibraryWriter applies the "save to library" side effect in bulk.
//
// Implementations cap ids per call at MaxSaveBatch. Saving an id that is
// already in the library must be a no-op: the pipeline re-applies pending
// ids after a crash and relies on idempotency to avoid duplicate effects.
type LibraryWriter interface {
	SaveTracks(ctx context.Context, ids []string) error
}

// LibraryPager fetches the target library a page at a time.
type LibraryPager interface {
	// LibraryPage returns one page of the user's saved tracks and whether
	// more pages follow.
	LibraryPage(ctx context.Context, offset, limit int) ([]models.LibraryTrack, bool, error)
}

// PlaylistWriter creates playlists and appends tracks to them.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name string) (string, error)
	// AddPlaylistTracks appends URIs to a playlist, capped at
	// MaxPlaylistBatch per call.
	AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error
}

// ErrorKind classifies a remote call failure for retry policy.
type ErrorKind int

const (
	// KindTransient covers network errors and 5xx responses: no retry,
	// persist state and halt.
	KindTransient ErrorKind = iota
	// KindRateLimited carries a Retry-After duration: wait and retry once.
	KindRateLimited
	// KindForbidden covers 403 / write-quota exhaustion: requires operator
	// action, persist and halt.
	KindForbidden
)

// APIError is the classified outcome of a failed remote call. Retry policy
// downstream is a pure function of Kind and RetryAfter; no call site
// inspects response objects.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	case KindForbidden:
		return fmt.Sprintf("forbidden (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("remote call failed (status %d): %s", e.StatusCode, e.Message)
	}
}

// RateLimited reports whether err is a rate-limit outcome and returns the
// wait duration the remote asked for.
func RateLimited(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// Forbidden reports whether err is a permanent authorization/quota failure.
func Forbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindForbidden
}
