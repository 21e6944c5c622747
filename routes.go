package main

import (
	"net/http"

	"github.com/justinas/alice"

	"github.com/aux-fm/auxio/session"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", app.handleIndex)

	// Spotify link flow
	mux.HandleFunc("GET /api/v1/music/login", session.WithAuth(app.handleMusicLogin, app.identity))
	mux.HandleFunc("GET /callback/spotify", app.oauthService.HandleCallback)
	mux.HandleFunc("POST /api/v1/music/link", session.WithAuth(app.handleMusicLink, app.identity))
	mux.HandleFunc("POST /api/v1/music/unlink", session.WithAuth(app.handleMusicUnlink, app.identity))

	// Account
	mux.HandleFunc("GET /api/v1/me", session.WithAuth(app.handleMe, app.identity))
	mux.HandleFunc("POST /api/v1/me/username", session.WithAuth(app.handleSetUsername, app.identity))
	mux.HandleFunc("POST /api/v1/me/push-token", session.WithAuth(app.handleSetPushToken, app.identity))
	mux.HandleFunc("DELETE /api/v1/me", session.WithAuth(app.handleDeleteAccount, app.identity))

	// Submissions
	mux.HandleFunc("POST /api/v1/submissions", session.WithAuth(app.handleCreateSubmission, app.identity))
	mux.HandleFunc("GET /api/v1/submissions/current", session.WithAuth(app.handleCurrentSubmission, app.identity))
	mux.HandleFunc("GET /api/v1/submissions/friends", session.WithAuth(app.handleFriendFeed, app.identity))
	mux.HandleFunc("GET /api/v1/submissions/nearby", session.WithAuth(app.handleNearby, app.identity))
	mux.HandleFunc("POST /api/v1/submissions/current/caption", session.WithAuth(app.handleSetCaption, app.identity))
	mux.HandleFunc("POST /api/v1/submissions/current/audial", session.WithAuth(app.handleSetAudial, app.identity))

	// Comments and likes
	mux.HandleFunc("POST /api/v1/submissions/{id}/comments", session.WithAuth(app.handleAddComment, app.identity))
	mux.HandleFunc("DELETE /api/v1/submissions/{id}/comments/{commentId}", session.WithAuth(app.handleRemoveComment, app.identity))
	mux.HandleFunc("POST /api/v1/submissions/{id}/likes", session.WithAuth(app.handleAddLike, app.identity))
	mux.HandleFunc("DELETE /api/v1/submissions/{id}/likes", session.WithAuth(app.handleRemoveLike, app.identity))

	// Friends
	mux.HandleFunc("GET /api/v1/friends", session.WithAuth(app.handleFriends, app.identity))
	mux.HandleFunc("GET /api/v1/friends/requests", session.WithAuth(app.handleFriendRequests, app.identity))
	mux.HandleFunc("POST /api/v1/friends/requests", session.WithAuth(app.handleSendFriendRequest, app.identity))
	mux.HandleFunc("POST /api/v1/friends/accept", session.WithAuth(app.handleAcceptFriendRequest, app.identity))
	mux.HandleFunc("POST /api/v1/friends/reject", session.WithAuth(app.handleRejectFriendRequest, app.identity))

	// Playlist export
	mux.HandleFunc("POST /api/v1/playlist/export", session.WithAuth(app.handleExportPlaylist, app.identity))

	// Invoked by the external task scheduler once per day.
	mux.HandleFunc("POST /internal/advance-cycle", app.handleAdvanceCycle)

	standard := alice.New(app.recoverPanic, app.logRequest)
	return standard.Then(mux)
}
