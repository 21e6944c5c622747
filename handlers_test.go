package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/identity"
	"github.com/aux-fm/auxio/oauth"
	"github.com/aux-fm/auxio/service/cycle"
	"github.com/aux-fm/auxio/service/nearby"
	"github.com/aux-fm/auxio/service/notify"
	"github.com/aux-fm/auxio/service/nowplaying"
	"github.com/aux-fm/auxio/service/social"
	"github.com/aux-fm/auxio/service/spotify"
	"github.com/aux-fm/auxio/service/submission"
)

const testSchedulerKey = "test-scheduler-key"

// mapVerifier resolves tokens through a fixed table.
type mapVerifier struct {
	tokens map[string]identity.Identity
}

func (m *mapVerifier) Verify(ctx context.Context, token string) (identity.Identity, error) {
	ident, ok := m.tokens[token]
	if !ok {
		return identity.Identity{}, fmt.Errorf("unknown token")
	}
	return ident, nil
}

// newTestApp wires the full application against an in-memory database
// and a stub Spotify API that always reports one playing track.
func newTestApp(t *testing.T) (*application, *db.DB) {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	spotifyStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"is_playing":  true,
			"progress_ms": 1000,
			"item": map[string]any{
				"name":          "Digital Love",
				"artists":       []map[string]any{{"name": "Daft Punk"}},
				"external_urls": map[string]any{"spotify": "https://open.spotify.com/track/dl1"},
				"duration_ms":   301000,
			},
		})
	}))
	t.Cleanup(spotifyStub.Close)

	verifier := &mapVerifier{tokens: map[string]identity.Identity{
		"alice-token": {Subject: "sub-alice", Email: "alice@example.com"},
		"bob-token":   {Subject: "sub-bob", Email: "bob@example.com"},
	}}

	clock := clockwork.NewRealClock()
	identityService := identity.NewService(database, verifier, nil, clock)
	oauthService := oauth.NewService("id", "secret", "http://localhost/callback/spotify", nil, identityService)
	identityService.SetRefresher(oauthService)

	spotifyClient := spotify.NewClient(5 * time.Second).WithBaseURL(spotifyStub.URL)
	resolver := nowplaying.NewResolver(spotifyClient, identityService)
	notifier := notify.New(database, notify.NewLogSender())
	advancer := cycle.NewAdvancer(database, clock, 6*time.Hour, 21*time.Hour, nil)
	coordinator := submission.NewCoordinator(database, advancer, resolver, notifier, clock, submission.DefaultGrace).
		WithPlaylists(spotifyClient, identityService)

	return &application{
		database:     database,
		identity:     identityService,
		oauthService: oauthService,
		advancer:     advancer,
		coordinator:  coordinator,
		social:       social.NewService(database, notifier),
		nearby:       nearby.NewService(database, advancer),
		notifier:     notifier,
		schedulerKey: testSchedulerKey,
	}, database
}

func doRequest(t *testing.T, handler http.Handler, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Response is not an envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, env
}

// linkSpotify marks a user's platform as linked with a long-lived
// token so the stub API gets called.
func linkSpotify(t *testing.T, database *db.DB, subject string) {
	t.Helper()

	user, err := database.GetUserBySubject(subject)
	if err != nil || user == nil {
		t.Fatalf("Failed to load user %s: %v", subject, err)
	}
	expiry := time.Now().UTC().Add(time.Hour)
	if err := database.LinkMusicPlatform(user.ID, "spotify", "access", "refresh", expiry); err != nil {
		t.Fatalf("Failed to link platform: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	rec, env := doRequest(t, handler, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if env.Type != "success" {
		t.Errorf("Expected success envelope, got '%s'", env.Type)
	}
}

func TestAuthRequired(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/me"},
		{http.MethodGet, "/api/v1/submissions/current"},
		{http.MethodGet, "/api/v1/friends"},
		{http.MethodPost, "/api/v1/submissions"},
	}

	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			rec, env := doRequest(t, handler, p.method, p.path, "", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
			if env.Type != "error" || env.Error != "unauthenticated" {
				t.Errorf("Expected fixed auth error, got %+v", env)
			}

			rec, _ = doRequest(t, handler, p.method, p.path, "forged-token", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401 for bad token, got %d", rec.Code)
			}
		})
	}
}

func TestAdvanceCycleRequiresSchedulerKey(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	req := httptest.NewRequest(http.MethodPost, "/internal/advance-cycle", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/advance-cycle", nil)
	req.Header.Set("X-Aux-Scheduler-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/advance-cycle", nil)
	req.Header.Set("X-Aux-Scheduler-Key", testSchedulerKey)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Type    string `json:"type"`
		Message struct {
			Number int64 `json:"number"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if env.Message.Number != 1 {
		t.Errorf("Expected cycle 1 after first advance, got %d", env.Message.Number)
	}
}

func TestSubmissionFlow(t *testing.T) {
	app, database := newTestApp(t)
	handler := app.routes()

	// First touch lazily creates the account.
	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/me", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, got %d", rec.Code)
	}
	linkSpotify(t, database, "sub-alice")

	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/submissions", "alice-token",
		map[string]any{"caption": "desk vibes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 creating submission, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.Type != "success" {
		t.Fatalf("Expected success envelope, got %+v", env)
	}

	// Second submission in the same cycle is refused.
	rec, env = doRequest(t, handler, http.MethodPost, "/api/v1/submissions", "alice-token", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for duplicate submission, got %d", rec.Code)
	}
	if env.Type != "error" || env.Error == "" {
		t.Errorf("Expected error envelope, got %+v", env)
	}

	// The submission is retrievable.
	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/submissions/current", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from current, got %d", rec.Code)
	}

	var current struct {
		Message struct {
			Song struct {
				Name string `json:"name"`
			} `json:"song"`
			Caption string `json:"caption"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
		t.Fatalf("Failed to decode current submission: %v", err)
	}
	if current.Message.Song.Name != "Digital Love" {
		t.Errorf("Expected resolved song name, got '%s'", current.Message.Song.Name)
	}
	if current.Message.Caption != "desk vibes" {
		t.Errorf("Expected caption 'desk vibes', got '%s'", current.Message.Caption)
	}
}

func TestSubmissionWithoutLinkedPlatform(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/submissions", "bob-token", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a linked platform, got %d", rec.Code)
	}
	if env.Type != "error" {
		t.Errorf("Expected error envelope, got %+v", env)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	// Create both accounts and give them usernames.
	for token, username := range map[string]string{"alice-token": "alice", "bob-token": "bob"} {
		rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/me/username", token,
			map[string]string{"username": username})
		if rec.Code != http.StatusOK {
			t.Fatalf("Failed to set username %s: %d", username, rec.Code)
		}
	}

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/friends/requests", "alice-token",
		map[string]string{"username": "bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 sending request, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/friends/requests", "bob-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing requests, got %d", rec.Code)
	}
	var pending struct {
		Message []string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("Failed to decode pending requests: %v", err)
	}
	if len(pending.Message) != 1 || pending.Message[0] != "alice" {
		t.Fatalf("Expected pending request from alice, got %v", pending.Message)
	}

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/friends/accept", "bob-token",
		map[string]string{"username": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 accepting request, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/friends", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing friends, got %d", rec.Code)
	}
	var friends struct {
		Message []struct {
			Username string `json:"username"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &friends); err != nil {
		t.Fatalf("Failed to decode friends: %v", err)
	}
	if len(friends.Message) != 1 || friends.Message[0].Username != "bob" {
		t.Errorf("Expected alice to have friend bob, got %v", friends.Message)
	}

	// Accepting an unknown request yields a client error.
	rec, env := doRequest(t, handler, http.MethodPost, "/api/v1/friends/accept", "bob-token",
		map[string]string{"username": "ghost"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown request, got %d", rec.Code)
	}
	if env.Type != "error" {
		t.Errorf("Expected error envelope, got %+v", env)
	}
}

func TestNearbyValidation(t *testing.T) {
	app, _ := newTestApp(t)
	handler := app.routes()

	// Create the account first.
	doRequest(t, handler, http.MethodGet, "/api/v1/me", "alice-token", nil)

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/submissions/nearby", "alice-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without coordinates, got %d", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet,
		"/api/v1/submissions/nearby?latitude=40.7&longitude=-74.0", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with coordinates, got %d: %s", rec.Code, rec.Body.String())
	}
}
