/*-------------------------------------------------------------------------
 *
 * encryption.go
 *    Authenticated encryption of sensitive fields
 *
 * Payloads are AES-256-GCM with the nonce prepended, encoded as standard
 * base64. A single key is active for the life of the process.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/security/encryption.go
 *
 *-------------------------------------------------------------------------
 */

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

/* ErrDecrypt is returned for payloads that are malformed or fail authentication */
var ErrDecrypt = errors.New("unable to decrypt payload")

const (
	keySize          = 32
	pbkdf2Iterations = 4096
)

/* passphrase keys are stretched with a fixed salt so the same passphrase yields the same key across restarts */
var passphraseSalt = []byte("neuronquery-field-encryption")

/* FieldCipher encrypts and decrypts individual field values */
type FieldCipher struct {
	aead      cipher.AEAD
	ephemeral bool
}

/*
 * NewFieldCipher builds a cipher from key. A key that decodes from base64
 * (standard or URL alphabet) to 32 bytes is used as-is; any other non-empty key is treated as a
 * passphrase and stretched with PBKDF2-SHA256. An empty key produces a
 * random ephemeral key; payloads encrypted with it do not survive a restart.
 */
func NewFieldCipher(key string) (*FieldCipher, error) {
	var raw []byte
	ephemeral := false

	switch {
	case key == "":
		raw = make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		ephemeral = true
	default:
		raw = decodeRawKey(key)
		if raw == nil {
			raw = pbkdf2.Key([]byte(key), passphraseSalt, pbkdf2Iterations, keySize, sha256.New)
		}
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldCipher{aead: aead, ephemeral: ephemeral}, nil
}

func decodeRawKey(key string) []byte {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(key); err == nil && len(decoded) == keySize {
			return decoded
		}
	}
	return nil
}

/* GenerateKey returns a fresh base64-encoded 32-byte key suitable for ENCRYPTION_KEY */
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

/* Ephemeral reports whether the key was generated at startup */
func (c *FieldCipher) Ephemeral() bool {
	return c.ephemeral
}

/* Encrypt seals plaintext under a fresh random nonce */
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("encryption failed: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

/* Decrypt opens a payload produced by Encrypt */
func (c *FieldCipher) Decrypt(payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecrypt)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: payload too short", ErrDecrypt)
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	return string(plaintext), nil
}
