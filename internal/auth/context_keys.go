package auth

import (
	"context"
)

/* Context key types for type-safe context values */
type contextKey string

const (
	userIDKey    contextKey = "user_id"
	sessionIDKey contextKey = "session_id"
	claimsKey    contextKey = "claims"
)

/* WithClaims stores validated claims and their user and session IDs in ctx */
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	return context.WithValue(ctx, sessionIDKey, claims.SessionID)
}

/* GetUserIDFromContext gets the user ID from context */
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

/* GetSessionIDFromContext gets the session ID from context */
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok
}

/* GetClaimsFromContext gets the claims from context */
func GetClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
