// Package submission implements the submission-cycle coordinator: the
// state machine deciding whether a user may submit, how late they are,
// and who hears about it.
package submission

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// CycleSource reads the live cycle.
type CycleSource interface {
	Current(ctx context.Context) (*models.Cycle, error)
}

// TrackSource resolves a user's current listening activity.
type TrackSource interface {
	RecentTrack(ctx context.Context, user *models.User) (*models.Song, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	NotifyUser(userID int64, title, body string, data map[string]string)
	NotifyUsers(userIDs []int64, title, body string, data map[string]string)
}

// PlaylistCreator exports songs to the music platform.
type PlaylistCreator interface {
	CreatePlaylist(ctx context.Context, token, name string, trackURIs []string) (string, error)
}

// CredentialSource supplies platform tokens for playlist export.
type CredentialSource interface {
	RefreshMusicCredential(ctx context.Context, user *models.User) (string, error)
}

// DefaultGrace is how long after the reveal a submission still counts
// as on time.
const DefaultGrace = 2 * time.Minute

type Coordinator struct {
	db        *db.DB
	cycles    CycleSource
	tracks    TrackSource
	notifier  Notifier
	playlists PlaylistCreator
	creds     CredentialSource
	clock     clockwork.Clock
	grace     time.Duration
	logger    *log.Logger
}

func NewCoordinator(database *db.DB, cycles CycleSource, tracks TrackSource, notifier Notifier, clock clockwork.Clock, grace time.Duration) *Coordinator {
	if grace <= 0 {
		grace = DefaultGrace
	}

	return &Coordinator{
		db:       database,
		cycles:   cycles,
		tracks:   tracks,
		notifier: notifier,
		clock:    clock,
		grace:    grace,
		logger:   log.New(os.Stdout, "submission: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// WithPlaylists wires the optional playlist-export dependencies.
func (c *Coordinator) WithPlaylists(playlists PlaylistCreator, creds CredentialSource) *Coordinator {
	c.playlists = playlists
	c.creds = creds
	return c
}

// CreateRequest carries the client-supplied parts of a submission.
// Location is best effort; a client that could not get a fix simply
// omits it.
type CreateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Caption   string   `json:"caption"`
	Audial    string   `json:"audial"`
}

// Create validates, resolves the song, computes lateness and persists
// the submission exactly once per (user, cycle). A late submission
// triggers best-effort notification of the user's friends.
func (c *Coordinator) Create(ctx context.Context, user *models.User, req CreateRequest) (*models.Submission, error) {
	const op errs.Op = "submission.Create"

	cyc, err := c.cycles.Current(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	// Fast path; the create below re-checks transactionally.
	existing, err := c.db.GetUserSubmission(user.ID, cyc.Number)
	if err != nil {
		return nil, errs.E(op, err)
	}
	if existing != nil {
		return nil, errs.E(op, errs.AlreadySubmitted)
	}

	// No song, no submission.
	song, err := c.tracks.RecentTrack(ctx, user)
	if err != nil {
		return nil, errs.E(op, err)
	}

	now := c.clock.Now().UTC()
	late, lateBy := lateness(cyc, now, c.grace)

	sub := &models.Submission{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Number:      cyc.Number,
		Song:        *song,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Late:        late,
		LateSeconds: int64(lateBy / time.Second),
		Time:        now,
		Caption:     req.Caption,
		Audial:      req.Audial,
		Comments:    []models.Comment{},
		Likes:       []int64{},
	}

	if err := c.db.CreateSubmission(sub); err != nil {
		return nil, errs.E(op, err)
	}
	if user.Username != nil {
		sub.Username = *user.Username
	}

	c.logger.Printf("user %d submitted for cycle %d (late=%t)", user.ID, cyc.Number, late)

	if late {
		go c.notifyFriendsLate(user, lateBy)
	}

	return sub, nil
}

// lateness judges a submission instant against the live cycle. When
// the cycle's reveal time is still in the future, the submission is
// arriving for the previous window and is judged against the previous
// reveal time; the upcoming reveal time must never be used for it.
// Preserve this branch structure: collapsing it changes observable
// behavior at cycle boundaries.
func lateness(cyc *models.Cycle, now time.Time, grace time.Duration) (bool, time.Duration) {
	var elapsed time.Duration
	if cyc.RevealTime.After(now) {
		elapsed = now.Sub(cyc.PreviousRevealTime)
	} else {
		elapsed = now.Sub(cyc.RevealTime)
	}

	if elapsed > grace {
		return true, elapsed
	}

	return false, 0
}

func (c *Coordinator) notifyFriendsLate(user *models.User, lateBy time.Duration) {
	friends, err := c.db.ListFriends(user.ID)
	if err != nil {
		c.logger.Printf("friend listing for late fan-out failed: %v", err)
		return
	}

	name := "A friend"
	if user.Username != nil {
		name = *user.Username
	}

	ids := make([]int64, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.ID)
	}

	c.notifier.NotifyUsers(ids, "aux",
		fmt.Sprintf("%s just auxed %s late", name, lateBy.Round(time.Minute)),
		map[string]string{"type": "late-submission"})
}

// Current returns the user's submission for the live cycle.
func (c *Coordinator) Current(ctx context.Context, user *models.User) (*models.Submission, error) {
	const op errs.Op = "submission.Current"

	cyc, err := c.cycles.Current(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	sub, err := c.db.GetUserSubmission(user.ID, cyc.Number)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if sub == nil {
		return nil, errs.E(op, errs.NotFound)
	}

	return sub, nil
}

// FriendFeed returns the friends' submissions for the live cycle.
// Friends who have not submitted are simply absent; partial results
// are the norm, not an error.
func (c *Coordinator) FriendFeed(ctx context.Context, user *models.User) ([]*models.Submission, error) {
	const op errs.Op = "submission.FriendFeed"

	cyc, err := c.cycles.Current(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	friends, err := c.db.ListFriends(user.ID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	feed := []*models.Submission{}
	for _, friend := range friends {
		sub, err := c.db.GetUserSubmission(friend.ID, cyc.Number)
		if err != nil {
			c.logger.Printf("reading friend %d submission: %v", friend.ID, err)
			continue
		}
		if sub == nil {
			continue
		}
		feed = append(feed, sub)
	}

	return feed, nil
}

// visible reports whether viewer may interact with the submission:
// their own, or a friend's.
func (c *Coordinator) visible(sub *models.Submission, viewer *models.User) (bool, error) {
	if sub.UserID == viewer.ID {
		return true, nil
	}
	return c.db.AreFriends(viewer.ID, sub.UserID)
}

func (c *Coordinator) visibleSubmission(id string, viewer *models.User) (*models.Submission, error) {
	sub, err := c.db.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errs.E(errs.NotFound)
	}

	ok, err := c.visible(sub, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Hidden and missing look the same to outsiders.
		return nil, errs.E(errs.NotFound)
	}

	return sub, nil
}

// AddComment appends a comment and fans out notifications to the
// owner, prior commenters and @mentioned users, each at most once and
// never to the commenter.
func (c *Coordinator) AddComment(ctx context.Context, user *models.User, submissionID, content string) (*models.Comment, error) {
	const op errs.Op = "submission.AddComment"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.E(op, errs.Invalid, "comment must not be empty")
	}

	sub, err := c.visibleSubmission(submissionID, user)
	if err != nil {
		return nil, errs.E(op, err)
	}

	// Recipients are computed before the append so the commenter's own
	// new comment cannot make them a "prior commenter".
	priorCommenters, err := c.db.CommenterIDs(submissionID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	comment := &models.Comment{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Content:   content,
		CreatedAt: c.clock.Now().UTC(),
	}
	if user.Username != nil {
		comment.Username = *user.Username
	}

	if err := c.db.AddComment(submissionID, comment); err != nil {
		return nil, errs.E(op, err)
	}

	recipients := c.commentRecipients(sub, user, priorCommenters, content)
	if len(recipients) > 0 {
		go c.notifier.NotifyUsers(recipients, "aux",
			fmt.Sprintf("%s commented: %s", comment.Username, content),
			map[string]string{"type": "comment", "submissionId": submissionID})
	}

	return comment, nil
}

// commentRecipients applies the notification rules and de-duplicates:
// owner, prior distinct commenters, @mentioned users; the commenter is
// never included.
func (c *Coordinator) commentRecipients(sub *models.Submission, commenter *models.User, priorCommenters []int64, content string) []int64 {
	seen := map[int64]bool{commenter.ID: true}
	var recipients []int64

	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}

	add(sub.UserID)

	for _, id := range priorCommenters {
		add(id)
	}

	for _, username := range mentions(content) {
		mentioned, err := c.db.GetUserByUsername(username)
		if err != nil {
			c.logger.Printf("resolving mention @%s: %v", username, err)
			continue
		}
		if mentioned == nil {
			continue
		}
		add(mentioned.ID)
	}

	return recipients
}

// RemoveComment deletes a comment. Only the comment author or the
// submission owner may do so.
func (c *Coordinator) RemoveComment(ctx context.Context, user *models.User, submissionID, commentID string) error {
	const op errs.Op = "submission.RemoveComment"

	sub, err := c.visibleSubmission(submissionID, user)
	if err != nil {
		return errs.E(op, err)
	}

	comment, err := c.db.GetComment(submissionID, commentID)
	if err != nil {
		return errs.E(op, err)
	}
	if comment == nil {
		return errs.E(op, errs.NotFound)
	}

	if comment.UserID != user.ID && sub.UserID != user.ID {
		return errs.E(op, errs.Invalid, "only the author or the owner may delete a comment")
	}

	if err := c.db.DeleteComment(submissionID, commentID); err != nil {
		return errs.E(op, err)
	}

	return nil
}

// AddLike records a like on a friend's (or own) submission.
func (c *Coordinator) AddLike(ctx context.Context, user *models.User, submissionID string) error {
	const op errs.Op = "submission.AddLike"

	sub, err := c.visibleSubmission(submissionID, user)
	if err != nil {
		return errs.E(op, err)
	}

	if err := c.db.AddLike(submissionID, user.ID); err != nil {
		return errs.E(op, err)
	}

	if sub.UserID != user.ID {
		name := "Someone"
		if user.Username != nil {
			name = *user.Username
		}
		go c.notifier.NotifyUser(sub.UserID, "aux", name+" liked your aux",
			map[string]string{"type": "like", "submissionId": submissionID})
	}

	return nil
}

// RemoveLike removes a like.
func (c *Coordinator) RemoveLike(ctx context.Context, user *models.User, submissionID string) error {
	const op errs.Op = "submission.RemoveLike"

	if _, err := c.visibleSubmission(submissionID, user); err != nil {
		return errs.E(op, err)
	}

	if err := c.db.RemoveLike(submissionID, user.ID); err != nil {
		return errs.E(op, err)
	}

	return nil
}

// SetCaption updates the caption on the user's current submission.
func (c *Coordinator) SetCaption(ctx context.Context, user *models.User, caption string) error {
	const op errs.Op = "submission.SetCaption"

	sub, err := c.Current(ctx, user)
	if err != nil {
		return errs.E(op, err)
	}

	if err := c.db.SetCaption(sub.ID, caption); err != nil {
		return errs.E(op, err)
	}

	return nil
}

// SetAudial updates the mini-game attempt on the user's current
// submission. The payload is opaque to the coordinator.
func (c *Coordinator) SetAudial(ctx context.Context, user *models.User, audial string) error {
	const op errs.Op = "submission.SetAudial"

	sub, err := c.Current(ctx, user)
	if err != nil {
		return errs.E(op, err)
	}

	if err := c.db.SetAudial(sub.ID, audial); err != nil {
		return errs.E(op, err)
	}

	return nil
}

// ExportCyclePlaylist creates a playlist on the user's music platform
// from this cycle's friend submissions (their own included) and
// returns the playlist id.
func (c *Coordinator) ExportCyclePlaylist(ctx context.Context, user *models.User) (string, error) {
	const op errs.Op = "submission.ExportCyclePlaylist"

	if c.playlists == nil || c.creds == nil {
		return "", errs.E(op, errs.Invalid, "playlist export is not configured")
	}

	cyc, err := c.cycles.Current(ctx)
	if err != nil {
		return "", errs.E(op, err)
	}

	feed, err := c.FriendFeed(ctx, user)
	if err != nil {
		return "", errs.E(op, err)
	}

	if own, err := c.db.GetUserSubmission(user.ID, cyc.Number); err == nil && own != nil {
		feed = append([]*models.Submission{own}, feed...)
	}

	var uris []string
	for _, sub := range feed {
		if uri := trackURI(sub.Song.URL); uri != "" {
			uris = append(uris, uri)
		}
	}

	if len(uris) == 0 {
		return "", errs.E(op, errs.NotFound, "no submissions to export")
	}

	token, err := c.creds.RefreshMusicCredential(ctx, user)
	if err != nil {
		return "", errs.E(op, err)
	}

	name := fmt.Sprintf("aux #%d", cyc.Number)
	playlistID, err := c.playlists.CreatePlaylist(ctx, token, name, uris)
	if err != nil {
		return "", errs.E(op, err)
	}

	return playlistID, nil
}

// trackURI converts an open.spotify.com track URL into a spotify URI.
func trackURI(songURL string) string {
	const marker = "/track/"
	idx := strings.Index(songURL, marker)
	if idx < 0 {
		return ""
	}

	id := songURL[idx+len(marker):]
	if q := strings.IndexByte(id, '?'); q >= 0 {
		id = id[:q]
	}
	if id == "" {
		return ""
	}

	return "spotify:track:" + id
}
