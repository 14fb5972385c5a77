package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/security"
)

// Middleware rejects requests without a valid bearer session token and
// places the user and session IDs in the request context.
func Middleware(tokens *TokenManager, events *security.EventLog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for CORS preflight
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			// Browser WebSockets can't set custom headers, so websocket endpoints accept ?token=
			if authHeader == "" && strings.HasSuffix(r.URL.Path, "/ws") {
				if token := r.URL.Query().Get("token"); token != "" {
					authHeader = "Bearer " + token
				}
			}

			tokenString, err := ExtractToken(authHeader)
			if err != nil {
				events.Log(r, security.EventAuthFailure, map[string]interface{}{"reason": "missing_token"})
				writeUnauthorized(w, "Missing or invalid authorization header")
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, ErrTokenExpired) {
					reason = "expired_token"
				}
				events.Log(r, security.EventAuthFailure, map[string]interface{}{"reason": reason})
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalMiddleware attaches claims when a valid bearer token is present and
// lets every request through.
func OptionalMiddleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokens.Validate(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  message,
		"status": "error",
	})
}
