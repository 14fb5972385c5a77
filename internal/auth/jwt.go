package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

// DefaultTokenTTL is the validity of a session token when none is configured
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("invalid token")
	ErrMissingAuthHeader = errors.New("missing or invalid authorization header")
	ErrMissingSecret     = errors.New("token signing secret is required")
)

// Claims represents session token claims
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Session is an issued token and its metadata
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"-"`
}

// TokenManager issues and validates signed session tokens.
// Validation is stateless; there is no revocation list.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

// NewTokenManager creates a token manager signing with HS256
func NewTokenManager(secret string, ttl time.Duration, logger *logging.Logger) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// TTL returns the validity applied to new tokens
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue generates a token for a user with a fresh session ID
func (m *TokenManager) Issue(userID string) (*Session, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{
		Token:     tokenString,
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
		SessionID: sessionID,
		UserID:    userID,
	}, nil
}

// Validate verifies signature and algorithm, then re-checks expiry against
// the wall clock. It returns ErrTokenExpired or ErrTokenInvalid on failure.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			m.logger.Warn("Token expired", nil)
			return nil, ErrTokenExpired
		}
		m.logger.Warn("Invalid token", map[string]interface{}{"error": err.Error()})
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if !m.now().Before(claims.ExpiresAt.Time) {
		m.logger.Warn("Token expired", map[string]interface{}{"user_id": claims.UserID})
		return nil, ErrTokenExpired
	}

	if claims.UserID == "" || claims.SessionID == "" {
		m.logger.Warn("Invalid token", map[string]interface{}{"error": "missing subject"})
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ExtractToken extracts the token from a "Bearer <token>" Authorization header
func ExtractToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMissingAuthHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingAuthHeader
	}
	return token, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
