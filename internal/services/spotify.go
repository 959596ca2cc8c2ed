// Spotify Web API implementation of the provider interfaces.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxSaveBatch is the hard cap on track URIs per PUT /me/library call.
	MaxSaveBatch = 40
	// MaxPlaylistBatch is the hard cap on URIs per playlist-add call.
	MaxPlaylistBatch = 100

	// Conservative wait when a 429 response carries no Retry-After header.
	defaultRetryAfter = 60 * time.Second
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifySavedTrack `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Next   *string             `json:"next"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyService implements SearchProvider, LibraryWriter, LibraryPager and
// PlaylistWriter against the Spotify Web API. Uses [oauth2] for token
// handling.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	baseURL    string
	userID     string
}

var (
	_ SearchProvider = (*SpotifyService)(nil)
	_ LibraryWriter  = (*SpotifyService)(nil)
	_ LibraryPager   = (*SpotifyService)(nil)
	_ PlaylistWriter = (*SpotifyService)(nil)
)

// NewSpotifyService creates a Spotify service from the configured OAuth2
// credentials.
func NewSpotifyService(creds shared.SpotifyConfig) (*SpotifyService, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-library-read",
			"user-library-modify",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

// Authenticate installs a token from the configured credentials. A refresh
// token yields a self-refreshing client; a bare access token is used as-is.
func (s *SpotifyService) Authenticate(ctx context.Context, creds shared.SpotifyConfig) error {
	switch {
	case creds.RefreshToken != "":
		s.token = &oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		}
		s.httpClient = s.config.Client(ctx, s.token)
	case creds.AccessToken != "":
		s.token = &oauth2.Token{AccessToken: creds.AccessToken}
		s.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(s.token))
	default:
		return fmt.Errorf("%w: spotify access_token or refresh_token required", shared.ErrMissingCredentials)
	}
	return nil
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (s *SpotifyService) Name() string { return "Spotify" }

// doRequest performs an authenticated request and decodes the JSON response
// into result. Non-2xx responses are classified into an [APIError].
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body any, result any) error {
	if s.token == nil {
		return shared.ErrNotAuthenticated
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// classifyResponse maps an error response onto the APIError taxonomy,
// extracting Retry-After for 429s.
func classifyResponse(resp *http.Response) *APIError {
	apiErr := &APIError{
		Kind:       KindTransient,
		StatusCode: resp.StatusCode,
		Message:    resp.Request.URL.Path,
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = defaultRetryAfter
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case http.StatusForbidden:
		apiErr.Kind = KindForbidden
	}

	return apiErr
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchTracks runs one combined "track:<title> artist:<artist>" query and
// returns the raw results.
func (s *SpotifyService) SearchTracks(ctx context.Context, title, artist string, limit int) ([]models.LibraryTrack, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("track:%s artist:%s", title, artist))
	query.Set("type", "track")
	query.Set("limit", strconv.Itoa(limit))

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, "/search", query, nil, &response); err != nil {
		return nil, err
	}

	items := make([]models.LibraryTrack, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		items = append(items, toLibraryTrack(t))
	}
	return items, nil
}

// LibraryPage returns one page of the user's saved tracks.
func (s *SpotifyService) LibraryPage(ctx context.Context, offset, limit int) ([]models.LibraryTrack, bool, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, "/me/tracks", query, nil, &response); err != nil {
		return nil, false, err
	}

	items := make([]models.LibraryTrack, 0, len(response.Items))
	for _, saved := range response.Items {
		if saved.Track.ID == "" {
			continue
		}
		items = append(items, toLibraryTrack(saved.Track))
	}

	return items, response.Next != nil, nil
}

// SaveTracks saves tracks to the user's library via PUT /me/library.
// URIs are passed as a query parameter, at most MaxSaveBatch per call.
// Saving an already-saved id is a no-op on the Spotify side.
func (s *SpotifyService) SaveTracks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxSaveBatch {
		return fmt.Errorf("%w: at most %d ids per save call", shared.ErrInvalidArgument, MaxSaveBatch)
	}

	uris := make([]string, len(ids))
	for i, id := range ids {
		uris[i] = "spotify:track:" + id
	}

	query := url.Values{}
	query.Set("uris", strings.Join(uris, ","))

	return s.doRequest(ctx, http.MethodPut, "/me/library", query, nil, nil)
}

// CreatePlaylist creates a playlist for the authenticated user and returns
// its id.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name string) (string, error) {
	if s.userID == "" {
		user, err := s.UserProfile(ctx)
		if err != nil {
			return "", err
		}
		s.userID = user.ID
	}

	body := map[string]any{"name": name, "public": false}
	var created struct {
		ID string `json:"id"`
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(s.userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddPlaylistTracks appends track URIs to a playlist, at most
// MaxPlaylistBatch per call.
func (s *SpotifyService) AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	if len(uris) > MaxPlaylistBatch {
		return fmt.Errorf("%w: at most %d uris per add call", shared.ErrInvalidArgument, MaxPlaylistBatch)
	}

	body := map[string]any{"uris": uris}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPost, endpoint, nil, body, nil)
}

func toLibraryTrack(t SpotifyTrack) models.LibraryTrack {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return models.LibraryTrack{
		ID:      t.ID,
		URI:     t.URI,
		Title:   t.Name,
		Artists: strings.Join(names, ", "),
	}
}
