// Package middleware carries the HTTP-level identity check. Authentication
// itself happens upstream (the chat gateway knows who is talking); this
// layer only enforces the configured user allow-list and makes the parsed
// user ID available to handlers.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sshbridge/sshbridge/internal/config"
)

type contextKey string

const userIDKey contextKey = "userID"

// RequireAllowedUser parses the {userID} route parameter and rejects users
// not on the allow-list. An empty allow-list rejects everyone.
func RequireAllowedUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid user ID", http.StatusBadRequest)
			return
		}
		if !config.Cfg.IsAllowedUser(userID) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the allow-listed user ID stored by RequireAllowedUser.
func UserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}
