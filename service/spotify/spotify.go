// Package spotify is a minimal client for the Spotify Web API calls
// aux needs: currently-playing, recently-played and playlist creation.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// ErrUnauthorized reports that the platform rejected the access token.
// The resolver reacts with exactly one refresh and retry.
var ErrUnauthorized = errors.New("spotify: unauthorized")

const defaultBaseURL = "https://api.spotify.com/v1"

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	baseURL    string
}

// NewClient creates a client with a bounded per-request timeout and a
// conservative request rate.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		logger:     log.New(os.Stdout, "spotify: ", log.LstdFlags|log.Lmsgprefix),
		baseURL:    defaultBaseURL,
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader) (*http.Response, error) {
	const op errs.Op = "spotify.do"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.E(op, errs.Platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errs.E(op, errs.Platform, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures look the same to callers.
		return nil, errs.E(op, errs.Platform, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}

	return resp, nil
}

type trackItem struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	DurationMs int64 `json:"duration_ms"`
}

func (t *trackItem) artistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// CurrentlyPlaying fetches the user's currently playing track, or nil
// when nothing is playing (204, paused playback, or a non-track item).
func (c *Client) CurrentlyPlaying(ctx context.Context, token string) (*models.Song, error) {
	const op errs.Op = "spotify.CurrentlyPlaying"

	resp, err := c.do(ctx, http.MethodGet, "/me/player/currently-playing", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// No track playing
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errs.E(op, errs.Platform, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body))
	}

	var response struct {
		IsPlaying  bool       `json:"is_playing"`
		ProgressMs int64      `json:"progress_ms"`
		Item       *trackItem `json:"item"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errs.E(op, errs.Platform, err)
	}

	if !response.IsPlaying || response.Item == nil {
		return nil, nil
	}

	return &models.Song{
		Name:      response.Item.Name,
		Artist:    response.Item.artistNames(),
		URL:       response.Item.ExternalURLs.Spotify,
		LengthMs:  response.Item.DurationMs,
		ElapsedMs: response.ProgressMs,
		Timestamp: time.Now().UTC(),
	}, nil
}

// RecentlyPlayed fetches the user's most recently played tracks.
func (c *Client) RecentlyPlayed(ctx context.Context, token string, limit int) ([]*models.Song, error) {
	const op errs.Op = "spotify.RecentlyPlayed"

	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/me/player/recently-played?limit=%d", limit), token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errs.E(op, errs.Platform, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body))
	}

	var response struct {
		Items []struct {
			Track    trackItem `json:"track"`
			PlayedAt time.Time `json:"played_at"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errs.E(op, errs.Platform, err)
	}

	songs := make([]*models.Song, 0, len(response.Items))
	for _, item := range response.Items {
		songs = append(songs, &models.Song{
			Name:      item.Track.Name,
			Artist:    item.Track.artistNames(),
			URL:       item.Track.ExternalURLs.Spotify,
			LengthMs:  item.Track.DurationMs,
			ElapsedMs: 0,
			Timestamp: item.PlayedAt,
		})
	}

	return songs, nil
}

// Profile returns the Spotify user id for the token's owner.
func (c *Client) Profile(ctx context.Context, token string) (string, error) {
	const op errs.Op = "spotify.Profile"

	resp, err := c.do(ctx, http.MethodGet, "/me", token, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errs.E(op, errs.Platform, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body))
	}

	var profile struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", errs.E(op, errs.Platform, err)
	}

	return profile.ID, nil
}

// CreatePlaylist creates a private playlist with the given track URIs
// and returns the playlist id.
func (c *Client) CreatePlaylist(ctx context.Context, token, name string, trackURIs []string) (string, error) {
	const op errs.Op = "spotify.CreatePlaylist"

	userID, err := c.Profile(ctx, token)
	if err != nil {
		return "", err
	}

	createBody, _ := json.Marshal(map[string]any{
		"name":   name,
		"public": false,
	})

	resp, err := c.do(ctx, http.MethodPost, "/users/"+userID+"/playlists", token, bytes.NewReader(createBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errs.E(op, errs.Platform, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body))
	}

	var playlist struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&playlist); err != nil {
		return "", errs.E(op, errs.Platform, err)
	}

	if len(trackURIs) > 0 {
		addBody, _ := json.Marshal(map[string]any{"uris": trackURIs})
		addResp, err := c.do(ctx, http.MethodPost, "/playlists/"+playlist.ID+"/tracks", token, bytes.NewReader(addBody))
		if err != nil {
			return "", err
		}
		defer addResp.Body.Close()

		if addResp.StatusCode != http.StatusCreated && addResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(addResp.Body)
			return "", errs.E(op, errs.Platform, fmt.Errorf("spotify API error (%d): %s", addResp.StatusCode, body))
		}
	}

	c.logger.Printf("created playlist %s with %d tracks", playlist.ID, len(trackURIs))

	return playlist.ID, nil
}
