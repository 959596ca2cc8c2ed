package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nialit/ymx/internal/shared"
)

func newTestService(t *testing.T, handler http.Handler) *SpotifyService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewSpotifyService(shared.SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
	})
	if err != nil {
		t.Fatalf("NewSpotifyService failed: %v", err)
	}

	if err := svc.Authenticate(context.Background(), shared.SpotifyConfig{AccessToken: "token"}); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	svc.baseURL = server.URL
	return svc
}

func TestNewSpotifyServiceRequiresCredentials(t *testing.T) {
	_, err := NewSpotifyService(shared.SpotifyConfig{})
	if !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSearchTracks(t *testing.T) {
	var gotQuery string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"items": []map[string]any{
					{
						"id":   "sp1",
						"name": "War Pigs",
						"uri":  "spotify:track:sp1",
						"artists": []map[string]any{
							{"id": "a1", "name": "Black Sabbath"},
						},
					},
				},
			},
		})
	}))

	results, err := svc.SearchTracks(context.Background(), "War Pigs", "Black Sabbath", 5)
	if err != nil {
		t.Fatalf("SearchTracks failed: %v", err)
	}

	if gotQuery != "track:War Pigs artist:Black Sabbath" {
		t.Errorf("unexpected query: %q", gotQuery)
	}
	if len(results) != 1 || results[0].ID != "sp1" || results[0].Artists != "Black Sabbath" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestLibraryPage(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/tracks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		next := "https://api.spotify.com/v1/me/tracks?offset=50"
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"track": map[string]any{
					"id":   "sp1",
					"name": "War Pigs",
					"uri":  "spotify:track:sp1",
					"artists": []map[string]any{
						{"name": "Black Sabbath"},
					},
				}},
				{"track": map[string]any{"id": "", "name": "ghost local file"}},
			},
			"next": next,
		})
	}))

	page, hasMore, err := svc.LibraryPage(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("LibraryPage failed: %v", err)
	}
	if !hasMore {
		t.Error("expected more pages")
	}
	if len(page) != 1 {
		t.Errorf("expected local-file entry dropped, got %d items", len(page))
	}
}

func TestSaveTracks(t *testing.T) {
	var gotMethod, gotPath, gotURIs string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotURIs = r.URL.Query().Get("uris")
		w.WriteHeader(http.StatusOK)
	}))

	if err := svc.SaveTracks(context.Background(), []string{"sp1", "sp2"}); err != nil {
		t.Fatalf("SaveTracks failed: %v", err)
	}

	if gotMethod != http.MethodPut || gotPath != "/me/library" {
		t.Errorf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotURIs != "spotify:track:sp1,spotify:track:sp2" {
		t.Errorf("unexpected uris: %q", gotURIs)
	}
}

func TestSaveTracksRejectsOversizeBatch(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversize batch must not reach the API")
	}))

	ids := make([]string, MaxSaveBatch+1)
	for i := range ids {
		ids[i] = "sp"
	}

	err := svc.SaveTracks(context.Background(), ids)
	if !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSaveTracksEmptyIsNoop(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty batch must not reach the API")
	}))

	if err := svc.SaveTracks(context.Background(), nil); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
}

func TestRateLimitClassification(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := svc.SearchTracks(context.Background(), "x", "y", 5)
	retryAfter, limited := RateLimited(err)
	if !limited {
		t.Fatalf("expected rate-limited classification, got %v", err)
	}
	if retryAfter != 30*time.Second {
		t.Errorf("expected Retry-After of 30s, got %s", retryAfter)
	}
}

func TestRateLimitDefaultRetryAfter(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := svc.SearchTracks(context.Background(), "x", "y", 5)
	retryAfter, limited := RateLimited(err)
	if !limited || retryAfter != defaultRetryAfter {
		t.Errorf("expected default Retry-After, got %s (%v)", retryAfter, err)
	}
}

func TestForbiddenClassification(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	err := svc.SaveTracks(context.Background(), []string{"sp1"})
	if !Forbidden(err) {
		t.Errorf("expected forbidden classification, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := svc.SearchTracks(context.Background(), "x", "y", 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindTransient {
		t.Errorf("expected transient classification, got %v", err)
	}
	if _, limited := RateLimited(err); limited {
		t.Error("transient error must not classify as rate limited")
	}
	if Forbidden(err) {
		t.Error("transient error must not classify as forbidden")
	}
}

func TestCreatePlaylistFetchesUserOnce(t *testing.T) {
	var profileCalls int
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me":
			profileCalls++
			json.NewEncoder(w).Encode(map[string]any{"id": "user1"})
		case strings.HasPrefix(r.URL.Path, "/users/user1/playlists"):
			json.NewEncoder(w).Encode(map[string]any{"id": "pl1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	for i := 0; i < 2; i++ {
		id, err := svc.CreatePlaylist(context.Background(), "Mix")
		if err != nil {
			t.Fatalf("CreatePlaylist failed: %v", err)
		}
		if id != "pl1" {
			t.Errorf("unexpected playlist id %q", id)
		}
	}

	if profileCalls != 1 {
		t.Errorf("expected user profile cached after first call, got %d fetches", profileCalls)
	}
}

func TestUnauthenticatedRequestFails(t *testing.T) {
	svc, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("NewSpotifyService failed: %v", err)
	}

	_, err = svc.SearchTracks(context.Background(), "x", "y", 5)
	if !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}
