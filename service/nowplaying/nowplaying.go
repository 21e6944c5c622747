// Package nowplaying resolves a user's current listening activity
// into one normalized Song, falling back from currently-playing to
// recently-played.
package nowplaying

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
	"github.com/aux-fm/auxio/service/spotify"
)

// Platform is the music-platform data boundary.
type Platform interface {
	CurrentlyPlaying(ctx context.Context, token string) (*models.Song, error)
	RecentlyPlayed(ctx context.Context, token string, limit int) ([]*models.Song, error)
}

// CredentialSource supplies valid platform access tokens for a user.
type CredentialSource interface {
	RefreshMusicCredential(ctx context.Context, user *models.User) (string, error)
	ForceRefresh(ctx context.Context, user *models.User) (string, error)
}

type Resolver struct {
	platform Platform
	creds    CredentialSource
	logger   *log.Logger
}

func NewResolver(platform Platform, creds CredentialSource) *Resolver {
	return &Resolver{
		platform: platform,
		creds:    creds,
		logger:   log.New(os.Stdout, "nowplaying: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// RecentTrack returns the user's currently playing track, or the most
// recently played one when nothing is playing. An expired-token
// response triggers exactly one transparent refresh and one retry; a
// second rejection is surfaced, never retried further.
func (r *Resolver) RecentTrack(ctx context.Context, user *models.User) (*models.Song, error) {
	const op errs.Op = "nowplaying.RecentTrack"

	token, err := r.creds.RefreshMusicCredential(ctx, user)
	if err != nil {
		return nil, errs.E(op, err)
	}

	song, err := r.fetch(ctx, token)
	if errors.Is(err, spotify.ErrUnauthorized) {
		r.logger.Printf("token rejected for user %d, refreshing once", user.ID)

		token, err = r.creds.ForceRefresh(ctx, user)
		if err != nil {
			return nil, errs.E(op, err)
		}

		song, err = r.fetch(ctx, token)
		if errors.Is(err, spotify.ErrUnauthorized) {
			return nil, errs.E(op, errs.PlatformAuth, "platform rejected a freshly refreshed token")
		}
	}

	if err != nil {
		return nil, errs.E(op, err)
	}

	if song == nil {
		return nil, errs.E(op, errs.NoRecentActivity)
	}

	return song, nil
}

func (r *Resolver) fetch(ctx context.Context, token string) (*models.Song, error) {
	song, err := r.platform.CurrentlyPlaying(ctx, token)
	if err != nil {
		return nil, err
	}

	if song != nil {
		return song, nil
	}

	recent, err := r.platform.RecentlyPlayed(ctx, token, 1)
	if err != nil {
		return nil, err
	}

	if len(recent) == 0 {
		return nil, nil
	}

	return recent[0], nil
}
