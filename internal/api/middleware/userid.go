package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	// UserIDHeader carries the caller's user scope when not passed as a
	// query parameter.
	UserIDHeader = "X-User-ID"
	userIDKey    = contextKey("user_id")
)

// UserIDFromContext returns the user scope from context.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequireUserID extracts the user scope from the user_id query parameter or
// the X-User-ID header and rejects the request when both are absent. Every
// memory-scoped route sits behind this.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			userID = r.Header.Get(UserIDHeader)
		}
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "user_id is required"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
