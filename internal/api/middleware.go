package api

import (
	"context"
	"net/http"
	"strings"
)

const sessionCookieName = "session_token"

type contextKey string

const usernameKey contextKey = "username"

// RequireAuth resolves the session token from the Authorization header or
// the session cookie and injects the username into the request context.
// Requests without a valid session get a 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		username, err := h.sessions.Get(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func usernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}
