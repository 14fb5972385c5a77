package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a user ID or password does not match
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash keeps the cost of a lookup miss equal to a password mismatch
var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

func missHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("neuronquery"), bcrypt.DefaultCost)
	})
	return dummyHash
}

// HashPassword hashes a password with bcrypt at the default cost
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a password with a bcrypt hash in constant time
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate checks a user ID and password against a map of bcrypt hashes
func Authenticate(users map[string]string, userID, password string) error {
	hash, ok := users[userID]
	if !ok || userID == "" {
		_ = bcrypt.CompareHashAndPassword(missHash(), []byte(password))
		return ErrInvalidCredentials
	}
	if !VerifyPassword(hash, password) {
		return ErrInvalidCredentials
	}
	return nil
}
