package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aux-fm/auxio/errs"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(5 * time.Second).WithBaseURL(server.URL)
	return client, server
}

func trackJSON(name, artist, id string, durationMs int64) map[string]any {
	return map[string]any{
		"name":          name,
		"artists":       []map[string]any{{"name": artist}},
		"external_urls": map[string]any{"spotify": "https://open.spotify.com/track/" + id},
		"duration_ms":   durationMs,
	}
}

// ===== CurrentlyPlaying =====

func TestCurrentlyPlaying(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/player/currently-playing" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Expected bearer header, got '%s'", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"is_playing":  true,
			"progress_ms": 43000,
			"item":        trackJSON("Everything In Its Right Place", "Radiohead", "abc123", 251000),
		})
	}))
	defer server.Close()

	song, err := client.CurrentlyPlaying(context.Background(), "tok")
	if err != nil {
		t.Fatalf("CurrentlyPlaying failed: %v", err)
	}
	if song == nil {
		t.Fatal("Expected a song, got nil")
	}
	if song.Name != "Everything In Its Right Place" {
		t.Errorf("Expected track name, got '%s'", song.Name)
	}
	if song.Artist != "Radiohead" {
		t.Errorf("Expected artist, got '%s'", song.Artist)
	}
	if song.URL != "https://open.spotify.com/track/abc123" {
		t.Errorf("Unexpected URL '%s'", song.URL)
	}
	if song.LengthMs != 251000 || song.ElapsedMs != 43000 {
		t.Errorf("Expected 251000/43000 ms, got %d/%d", song.LengthMs, song.ElapsedMs)
	}
}

func TestCurrentlyPlayingJoinsArtists(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		item := trackJSON("Where's Your Head At", "Basement Jaxx", "xyz", 200000)
		item["artists"] = []map[string]any{{"name": "Basement Jaxx"}, {"name": "Gary Numan"}}
		json.NewEncoder(w).Encode(map[string]any{"is_playing": true, "item": item})
	}))
	defer server.Close()

	song, err := client.CurrentlyPlaying(context.Background(), "tok")
	if err != nil {
		t.Fatalf("CurrentlyPlaying failed: %v", err)
	}
	if song.Artist != "Basement Jaxx, Gary Numan" {
		t.Errorf("Expected joined artists, got '%s'", song.Artist)
	}
}

func TestCurrentlyPlayingNothing(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "204 no content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
		},
		{
			name: "paused playback",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"is_playing": false,
					"item":       trackJSON("Paused", "Someone", "p1", 100000),
				})
			},
		},
		{
			name: "non-track item",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"is_playing": true, "item": nil})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := newTestClient(tc.handler)
			defer server.Close()

			song, err := client.CurrentlyPlaying(context.Background(), "tok")
			if err != nil {
				t.Fatalf("CurrentlyPlaying failed: %v", err)
			}
			if song != nil {
				t.Errorf("Expected nil song, got %+v", song)
			}
		})
	}
}

func TestUnauthorizedSentinel(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := client.CurrentlyPlaying(context.Background(), "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	_, err = client.RecentlyPlayed(context.Background(), "stale", 1)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestServerErrorIsPlatform(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := client.CurrentlyPlaying(context.Background(), "tok")
	if !errs.Is(errs.Platform, err) {
		t.Errorf("Expected Platform error, got %v", err)
	}
}

// ===== RecentlyPlayed =====

func TestRecentlyPlayed(t *testing.T) {
	playedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("Expected limit=1, got '%s'", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"track": trackJSON("Teardrop", "Massive Attack", "td1", 330000), "played_at": playedAt},
			},
		})
	}))
	defer server.Close()

	songs, err := client.RecentlyPlayed(context.Background(), "tok", 1)
	if err != nil {
		t.Fatalf("RecentlyPlayed failed: %v", err)
	}
	if len(songs) != 1 {
		t.Fatalf("Expected 1 song, got %d", len(songs))
	}
	if songs[0].Name != "Teardrop" {
		t.Errorf("Expected 'Teardrop', got '%s'", songs[0].Name)
	}
	if !songs[0].Timestamp.Equal(playedAt) {
		t.Errorf("Expected timestamp %v, got %v", playedAt, songs[0].Timestamp)
	}
	if songs[0].ElapsedMs != 0 {
		t.Errorf("Expected zero elapsed for history entry, got %d", songs[0].ElapsedMs)
	}
}

// ===== CreatePlaylist =====

func TestCreatePlaylist(t *testing.T) {
	var addedURIs []string

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			json.NewEncoder(w).Encode(map[string]any{"id": "spotify-user"})
		case "/users/spotify-user/playlists":
			var body struct {
				Name   string `json:"name"`
				Public bool   `json:"public"`
			}
			raw, _ := io.ReadAll(r.Body)
			json.Unmarshal(raw, &body)
			if body.Name != "aux #7" {
				t.Errorf("Expected playlist name 'aux #7', got '%s'", body.Name)
			}
			if body.Public {
				t.Error("Expected private playlist")
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": "pl-1"})
		case "/playlists/pl-1/tracks":
			var body struct {
				URIs []string `json:"uris"`
			}
			raw, _ := io.ReadAll(r.Body)
			json.Unmarshal(raw, &body)
			addedURIs = body.URIs
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"snapshot_id":"snap"}`)
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	uris := []string{"spotify:track:a", "spotify:track:b"}
	id, err := client.CreatePlaylist(context.Background(), "tok", "aux #7", uris)
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}
	if id != "pl-1" {
		t.Errorf("Expected playlist id 'pl-1', got '%s'", id)
	}
	if len(addedURIs) != 2 {
		t.Errorf("Expected 2 URIs added, got %v", addedURIs)
	}
}
