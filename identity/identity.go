// Package identity resolves opaque bearer credentials into users and
// brokers music-platform credentials, refreshing them on demand.
package identity

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// Identity is what the external identity provider asserts about a
// bearer credential.
type Identity struct {
	Subject string
	Email   string
}

// Verifier is the identity provider boundary. Implementations verify
// an opaque bearer token and return the subject it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Refresher exchanges a refresh token with the music platform for a
// new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type Service struct {
	db        *db.DB
	verifier  Verifier
	refresher Refresher
	clock     clockwork.Clock
	logger    *log.Logger
}

func NewService(database *db.DB, verifier Verifier, refresher Refresher, clock clockwork.Clock) *Service {
	return &Service{
		db:        database,
		verifier:  verifier,
		refresher: refresher,
		clock:     clock,
		logger:    log.New(os.Stdout, "identity: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// SetRefresher wires the music-platform refresher after construction;
// the oauth service and this one reference each other.
func (s *Service) SetRefresher(refresher Refresher) {
	s.refresher = refresher
}

// Authenticate verifies a bearer credential and resolves the user,
// lazily creating the record on first sight of a new subject. All
// verification failures surface as a fixed-message auth error.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*models.User, error) {
	const op errs.Op = "identity.Authenticate"

	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, errs.E(op, errs.Auth)
	}

	ident, err := s.verifier.Verify(ctx, bearer)
	if err != nil {
		s.logger.Printf("token verification failed: %v", err)
		return nil, errs.E(op, errs.Auth)
	}

	user, err := s.db.GetUserBySubject(ident.Subject)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if user == nil {
		var email *string
		if ident.Email != "" {
			email = &ident.Email
		}

		id, err := s.db.CreateUser(ident.Subject, email)
		if err != nil {
			// A concurrent first request may have created the row.
			user, lookupErr := s.db.GetUserBySubject(ident.Subject)
			if lookupErr == nil && user != nil {
				return user, nil
			}
			return nil, errs.E(op, err)
		}

		s.logger.Printf("created user %d for subject %s", id, ident.Subject)

		user, err = s.db.GetUserByID(id)
		if err != nil {
			return nil, errs.E(op, err)
		}
	}

	return user, nil
}

// RefreshMusicCredential returns a currently valid music-platform
// access token for the user, exchanging the refresh token only when
// the stored one has expired. A rejected refresh is surfaced as a
// PlatformAuth failure so the client can prompt re-linking.
func (s *Service) RefreshMusicCredential(ctx context.Context, user *models.User) (string, error) {
	const op errs.Op = "identity.RefreshMusicCredential"

	if user.MusicPlatform == nil || user.AccessToken == nil {
		return "", errs.E(op, errs.PlatformAuth, "no music platform linked")
	}

	if user.TokenExpiry != nil && user.TokenExpiry.After(s.clock.Now()) {
		return *user.AccessToken, nil
	}

	return s.ForceRefresh(ctx, user)
}

// ForceRefresh refreshes regardless of the stored expiry. The resolver
// uses it after the platform rejects a token the expiry said was fine.
func (s *Service) ForceRefresh(ctx context.Context, user *models.User) (string, error) {
	const op errs.Op = "identity.ForceRefresh"

	if user.RefreshToken == nil || *user.RefreshToken == "" {
		return "", errs.E(op, errs.PlatformAuth, "no refresh token")
	}

	tok, err := s.refresher.Refresh(ctx, *user.RefreshToken)
	if err != nil {
		return "", errs.E(op, err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.clock.Now().Add(time.Hour)
	}

	if err := s.db.UpdateUserToken(user.ID, tok.AccessToken, tok.RefreshToken, expiry); err != nil {
		// The fresh token is still usable this request.
		s.logger.Printf("failed to persist refreshed token for user %d: %v", user.ID, err)
	}

	user.AccessToken = &tok.AccessToken
	user.TokenExpiry = &expiry
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		user.RefreshToken = &rt
	}

	return tok.AccessToken, nil
}

// SetMusicToken records a completed platform link for the user. It
// satisfies the oauth package's TokenReceiver.
func (s *Service) SetMusicToken(userID int64, tok *oauth2.Token) error {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.clock.Now().Add(time.Hour)
	}

	return s.db.LinkMusicPlatform(userID, "spotify", tok.AccessToken, tok.RefreshToken, expiry)
}

// SetUsername sets the globally unique username for a user.
func (s *Service) SetUsername(ctx context.Context, user *models.User, username string) error {
	const op errs.Op = "identity.SetUsername"

	if err := s.db.SetUsername(user.ID, username); err != nil {
		return errs.E(op, err)
	}

	user.Username = &username
	return nil
}

// DeleteAccount removes the user and cascades best-effort cleanup of
// their submissions and friend references.
func (s *Service) DeleteAccount(ctx context.Context, user *models.User) error {
	const op errs.Op = "identity.DeleteAccount"

	if err := s.db.DeleteUser(user.ID); err != nil {
		return errs.E(op, err)
	}

	s.logger.Printf("deleted user %d", user.ID)
	return nil
}

// UnlinkMusicPlatform clears the platform linkage.
func (s *Service) UnlinkMusicPlatform(ctx context.Context, user *models.User) error {
	const op errs.Op = "identity.UnlinkMusicPlatform"

	if err := s.db.UnlinkMusicPlatform(user.ID); err != nil {
		return errs.E(op, err)
	}

	user.MusicPlatform = nil
	user.AccessToken = nil
	user.RefreshToken = nil
	user.TokenExpiry = nil
	return nil
}
