package middleware

import (
	"context"
	"net/http"
)

type contextKey string

// ContextKeyUserID is the context key the identity middleware stores the
// trusted user id under.
const ContextKeyUserID contextKey = "identity.user_id"

// IdentityMiddleware trusts an upstream gateway's assertion of user
// identity rather than verifying a token itself: it reads X-User-Id,
// falling back to the user_id query parameter for browsers that cannot
// set a custom header during the WebSocket handshake. No deep
// authorization check is performed here; a missing identity is rejected
// as invalid input, not as an authorization failure, per this fabric's
// trust boundary with the gateway in front of it.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-Id")
			if userID == "" {
				userID = r.URL.Query().Get("user_id")
			}
			if userID == "" {
				http.Error(w, "missing user identity", http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the trusted user id stamped by IdentityMiddleware.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyUserID).(string)
	return id
}
