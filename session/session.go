// Package session carries the authenticated user through request
// contexts and provides the bearer-auth middleware.
package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/aux-fm/auxio/identity"
	"github.com/aux-fm/auxio/models"
)

type contextKey int

const (
	userKey contextKey = iota
)

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated user from the context.
func GetUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// GetUserID returns the authenticated user's id from the context.
func GetUserID(ctx context.Context) (int64, bool) {
	user, ok := GetUser(ctx)
	if !ok {
		return 0, false
	}
	return user.ID, true
}

// BearerToken extracts the bearer credential from a request.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// WithAuth resolves the bearer credential through the identity service
// and rejects the request with a fixed-message 401 when it fails.
func WithAuth(handler http.HandlerFunc, ident *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			unauthorized(w)
			return
		}

		user, err := ident.Authenticate(r.Context(), token)
		if err != nil {
			unauthorized(w)
			return
		}

		handler(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"type":"error","message":null,"error":"unauthenticated"}`))
}
