package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the header used to carry the request ID both inbound
// and outbound, so a caller-supplied ID survives across a call chain.
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware stamps every response with a unique X-Request-ID,
// reusing one supplied by the caller instead of generating a new one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r)
		})
	}
}
