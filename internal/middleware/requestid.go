package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

/* Context key type for type-safe context values */
type requestIDKeyType string

const RequestIDKey requestIDKeyType = "request_id"

/* RequestIDHeader carries the request ID in both directions */
const RequestIDHeader = "X-Request-Id"

/* client-supplied IDs are echoed only when they look like IDs */
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

/* RequestIDMiddleware adds a request ID to each request */
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !requestIDPattern.MatchString(requestID) {
				requestID = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

/* GetRequestID gets request ID from context */
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
