package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/service/submission"
	"github.com/aux-fm/auxio/session"
)

var httpLog = log.New(os.Stdout, "http: ", log.LstdFlags|log.Lmsgprefix)

// envelope is the fixed response shape for every JSON endpoint.
type envelope struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondSuccess(w http.ResponseWriter, message any) {
	respondJSON(w, http.StatusOK, envelope{Type: "success", Message: message})
}

func respondError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= 500 {
		httpLog.Printf("internal error: %v", err)
	}
	respondJSON(w, status, envelope{Type: "error", Message: nil, Error: errs.Public(err)})
}

func respondJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		httpLog.Printf("writing response: %v", err)
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.E(errs.Invalid, fmt.Errorf("malformed request body"))
	}
	return nil
}

// --- Middleware ---

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpLog.Printf("%s %s %s", r.RemoteAddr, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				w.Header().Set("Connection", "close")
				respondError(w, fmt.Errorf("%v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// --- Misc ---

func (app *application) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, "aux is running")
}

// --- Music platform linkage ---

func (app *application) handleMusicLogin(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())
	respondSuccess(w, map[string]string{"url": app.oauthService.LoginURL(user.ID)})
}

func (app *application) handleMusicLink(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirectUri"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}
	if input.Code == "" {
		respondError(w, errs.E(errs.Invalid, fmt.Errorf("code is required")))
		return
	}

	tok, err := app.oauthService.Exchange(r.Context(), input.Code, input.RedirectURI)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := app.identity.SetMusicToken(user.ID, tok); err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, "spotify linked")
}

func (app *application) handleMusicUnlink(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	if err := app.identity.UnlinkMusicPlatform(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "unlinked")
}

// --- Account ---

func (app *application) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	me := struct {
		ID            int64   `json:"id"`
		Username      *string `json:"username"`
		Email         *string `json:"email"`
		MusicPlatform *string `json:"musicPlatform"`
	}{user.ID, user.Username, user.Email, user.MusicPlatform}
	respondSuccess(w, me)
}

func (app *application) handleSetUsername(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}

	if err := app.identity.SetUsername(r.Context(), user, input.Username); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, user.Public())
}

func (app *application) handleSetPushToken(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		PushToken string `json:"pushToken"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}
	if input.PushToken == "" {
		respondError(w, errs.E(errs.Invalid, fmt.Errorf("pushToken is required")))
		return
	}

	if err := app.database.SetPushToken(user.ID, input.PushToken); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "push token saved")
}

func (app *application) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	if err := app.identity.DeleteAccount(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "account deleted")
}

// --- Submissions ---

func (app *application) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var req submission.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sub, err := app.coordinator.Create(r.Context(), user, req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, sub)
}

func (app *application) handleCurrentSubmission(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	sub, err := app.coordinator.Current(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, sub)
}

func (app *application) handleFriendFeed(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	feed, err := app.coordinator.FriendFeed(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, feed)
}

func (app *application) handleNearby(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, errLat := strconv.ParseFloat(query.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(query.Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		respondError(w, errs.E(errs.Invalid, fmt.Errorf("latitude and longitude are required")))
		return
	}

	radiusKm := 10.0
	if raw := query.Get("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, errs.E(errs.Invalid, fmt.Errorf("radius_km must be a number")))
			return
		}
		radiusKm = parsed
	}

	nearby, err := app.nearby.GetNearby(r.Context(), lat, lon, radiusKm)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, nearby)
}

func (app *application) handleSetCaption(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		Caption string `json:"caption"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}

	if err := app.coordinator.SetCaption(r.Context(), user, input.Caption); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "caption saved")
}

func (app *application) handleSetAudial(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		Audial string `json:"audial"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}

	if err := app.coordinator.SetAudial(r.Context(), user, input.Audial); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "audial saved")
}

// --- Comments and likes ---

func (app *application) handleAddComment(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	var input struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &input); err != nil {
		respondError(w, err)
		return
	}

	comment, err := app.coordinator.AddComment(r.Context(), user, r.PathValue("id"), input.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, comment)
}

func (app *application) handleRemoveComment(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	err := app.coordinator.RemoveComment(r.Context(), user, r.PathValue("id"), r.PathValue("commentId"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "comment removed")
}

func (app *application) handleAddLike(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	if err := app.coordinator.AddLike(r.Context(), user, r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "liked")
}

func (app *application) handleRemoveLike(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	if err := app.coordinator.RemoveLike(r.Context(), user, r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "unliked")
}

// --- Friends ---

func (app *application) handleFriends(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	friends, err := app.social.Friends(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, friends)
}

func (app *application) handleFriendRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	requests, err := app.social.PendingRequests(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, requests)
}

func decodeUsername(r *http.Request) (string, error) {
	var input struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &input); err != nil {
		return "", err
	}
	return input.Username, nil
}

func (app *application) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	username, err := decodeUsername(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := app.social.SendFriendRequest(r.Context(), user, username); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "request sent")
}

func (app *application) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	username, err := decodeUsername(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := app.social.AcceptFriendRequest(r.Context(), user, username); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "request accepted")
}

func (app *application) handleRejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	username, err := decodeUsername(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := app.social.RejectFriendRequest(r.Context(), user, username); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "request rejected")
}

// --- Playlist export ---

func (app *application) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	user, _ := session.GetUser(r.Context())

	playlistID, err := app.coordinator.ExportCyclePlaylist(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"playlistId": playlistID})
}

// --- Scheduler ---

func (app *application) handleAdvanceCycle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Aux-Scheduler-Key") != app.schedulerKey {
		respondError(w, errs.E(errs.Auth, fmt.Errorf("bad scheduler key")))
		return
	}

	cyc, err := app.advancer.Advance(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, cyc)
}
