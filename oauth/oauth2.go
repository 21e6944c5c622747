// Package oauth implements the Spotify OAuth2 authorization-code flow
// with PKCE, plus the code-exchange and refresh operations the
// credential broker depends on.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"github.com/aux-fm/auxio/errs"
)

// TokenReceiver persists a completed platform link for a user.
type TokenReceiver interface {
	SetMusicToken(userID int64, tok *oauth2.Token) error
}

// Service handles the Spotify authorization flow. Each login attempt
// gets its own state and PKCE verifier, kept until the callback
// returns or the attempt expires.
type Service struct {
	config   oauth2.Config
	receiver TokenReceiver
	logger   *log.Logger

	mu      sync.Mutex
	pending map[string]pendingLogin
}

type pendingLogin struct {
	userID       int64
	codeVerifier string
	expiresAt    time.Time
}

const loginTTL = 10 * time.Minute

func NewService(clientID, clientSecret, redirectURI string, scopes []string, receiver TokenReceiver) *Service {
	return &Service{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     spotify.Endpoint,
		},
		receiver: receiver,
		logger:   log.New(os.Stdout, "oauth: ", log.LstdFlags|log.Lmsgprefix),
		pending:  make(map[string]pendingLogin),
	}
}

// generateRandomState creates a random state string for CSRF protection
func generateRandomState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

// generateCodeVerifier creates a random code verifier for PKCE
func generateCodeVerifier() string {
	b := make([]byte, 64)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a code challenge from the code verifier using S256 method
func generateCodeChallenge(verifier string) string {
	h := sha256.New()
	h.Write([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// LoginURL starts a link attempt for an authenticated user and returns
// the authorization URL the client should open.
func (s *Service) LoginURL(userID int64) string {
	state := generateRandomState()
	verifier := generateCodeVerifier()

	s.mu.Lock()
	s.evictExpiredLocked()
	s.pending[state] = pendingLogin{
		userID:       userID,
		codeVerifier: verifier,
		expiresAt:    time.Now().Add(loginTTL),
	}
	s.mu.Unlock()

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}

	return s.config.AuthCodeURL(state, opts...)
}

func (s *Service) evictExpiredLocked() {
	now := time.Now()
	for state, login := range s.pending {
		if now.After(login.expiresAt) {
			delete(s.pending, state)
		}
	}
}

// HandleCallback completes the authorization flow: it validates state,
// exchanges the code with the PKCE verifier and hands the token to the
// receiver for persistence.
func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	s.mu.Lock()
	login, ok := s.pending[state]
	delete(s.pending, state)
	s.mu.Unlock()

	if !ok || time.Now().After(login.expiresAt) {
		http.Error(w, "Unknown or expired login attempt", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No code provided", http.StatusBadRequest)
		return
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_verifier", login.codeVerifier),
	}

	token, err := s.config.Exchange(r.Context(), code, opts...)
	if err != nil {
		s.logger.Printf("code exchange failed: %v", err)
		http.Error(w, "Error exchanging code for token", http.StatusBadGateway)
		return
	}

	if err := s.receiver.SetMusicToken(login.userID, token); err != nil {
		s.logger.Printf("failed to store token for user %d: %v", login.userID, err)
		http.Error(w, "Error storing token", http.StatusInternalServerError)
		return
	}

	s.logger.Printf("linked spotify for user %d", login.userID)

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, "<html><body><p>Spotify linked. You can return to the app.</p></body></html>")
}

// Exchange trades an authorization code obtained by a mobile client
// for tokens. The redirect URI must match the one used by the client.
func (s *Service) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	const op errs.Op = "oauth.Exchange"

	cfg := s.config
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, classify(op, err)
	}

	return token, nil
}

// Refresh exchanges a refresh token for a new access token. A
// rejection by the platform (revoked or expired grant) is a
// PlatformAuth failure; transport problems are Platform failures.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	const op errs.Op = "oauth.Refresh"

	source := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classify(op, err)
	}

	return token, nil
}

func classify(op errs.Op, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// 4xx means the grant itself was rejected.
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return errs.E(op, errs.PlatformAuth, err)
		}
	}
	return errs.E(op, errs.Platform, err)
}
