/*-------------------------------------------------------------------------
 *
 * security_test.go
 *    Tests for the security package
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 *-------------------------------------------------------------------------
 */

package security

import (
	"bytes"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

func TestInputScanner_Validate(t *testing.T) {
	scanner := NewInputScanner(nil)

	tests := []struct {
		name    string
		input   string
		valid   bool
		warning string
	}{
		{"tautology", "SELECT * FROM users WHERE 1=1 OR 1=1", false, WarningSQLInjection},
		{"script tag", "<script>alert(1)</script>", false, WarningXSS},
		{"plain question", "What were total sales last year?", true, ""},
		{"union keyword", "show me products union all", false, WarningSQLInjection},
		{"comment marker", "top customers -- please", false, WarningSQLInjection},
		{"hash marker", "orders #1", false, WarningSQLInjection},
		{"string tautology", `name or 'a'='a'`, false, WarningSQLInjection},
		{"separator", "sales; and more", false, WarningSQLInjection},
		{"pipes", "a || b", false, WarningSQLInjection},
		{"javascript uri", "click javascript:alert(1)", false, WarningXSS},
		{"vbscript uri", "vbscript:msgbox", false, WarningXSS},
		{"event handler", "<img src=x onerror=alert(1)>", false, WarningXSS},
		{"iframe", "<iframe src=evil>", false, WarningXSS},
		{"object", "<object data=x>", false, WarningXSS},
		{"embed", "<embed src=x>", false, WarningXSS},
		{"identifier with keyword inside", "Which orders were updated_at yesterday?", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scanner.Validate(tt.input, 1000)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.Empty(t, result.Warnings)
				return
			}
			assert.Equal(t, []string{tt.warning}, result.Warnings)
			assert.Empty(t, result.Sanitized)
		})
	}
}

func TestInputScanner_SanitizedKeepsLegitimateText(t *testing.T) {
	result := NewInputScanner(nil).Validate("  What were total sales last year?  ", 1000)
	require.True(t, result.Valid)
	assert.Equal(t, "What were total sales last year?", result.Sanitized)
}

func TestInputScanner_Length(t *testing.T) {
	scanner := NewInputScanner(nil)

	result := scanner.Validate(strings.Repeat("a", 11), 10)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Input exceeds maximum length of 10 characters"}, result.Warnings)

	/* length is measured in characters */
	result = scanner.Validate(strings.Repeat("é", 10), 10)
	assert.True(t, result.Valid)

	/* length is checked before pattern matching */
	result = scanner.Validate("<script>x</script> DROP", 5)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "maximum length")

	/* non-positive limit falls back to the default */
	assert.True(t, scanner.Validate(strings.Repeat("b", DefaultMaxInputLength), 0).Valid)
	assert.False(t, scanner.Validate(strings.Repeat("b", DefaultMaxInputLength+1), 0).Valid)
}

func TestInputScanner_LogsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	scanner := NewInputScanner(logging.NewLoggerWithWriter("info", "json", &buf))

	payload := strings.Repeat("x", 150) + " union "
	scanner.Validate(payload, 1000)

	out := buf.String()
	assert.Contains(t, out, "Potential SQL injection attempt")
	assert.Contains(t, out, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 101))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b", Sanitize(` <a> "b' `))
	assert.Equal(t, "Sales in 2023?", Sanitize("Sales in 2023?"))
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	keys := map[string]string{
		"base64 key": key,
		"passphrase": "correct horse battery staple",
		"ephemeral":  "",
	}

	for name, k := range keys {
		t.Run(name, func(t *testing.T) {
			c, err := NewFieldCipher(k)
			require.NoError(t, err)
			assert.Equal(t, k == "", c.Ephemeral())

			for _, plaintext := range []string{"", "hello", "SELECT * FROM orders LIMIT 5", strings.Repeat("ü", 4096)} {
				first, err := c.Encrypt(plaintext)
				require.NoError(t, err)
				second, err := c.Encrypt(plaintext)
				require.NoError(t, err)

				assert.NotEqual(t, plaintext, first)
				assert.NotEqual(t, first, second, "nonce must differ between calls")

				got, err := c.Decrypt(first)
				require.NoError(t, err)
				assert.Equal(t, plaintext, got)

				got, err = c.Decrypt(second)
				require.NoError(t, err)
				assert.Equal(t, plaintext, got)
			}
		})
	}
}

func TestFieldCipher_PassphraseIsStable(t *testing.T) {
	a, err := NewFieldCipher("passphrase")
	require.NoError(t, err)
	b, err := NewFieldCipher("passphrase")
	require.NoError(t, err)

	payload, err := a.Encrypt("secret")
	require.NoError(t, err)
	got, err := b.Decrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestFieldCipher_DecryptFailures(t *testing.T) {
	c, err := NewFieldCipher("one key")
	require.NoError(t, err)
	other, err := NewFieldCipher("another key")
	require.NoError(t, err)

	payload, err := c.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		cipher  *FieldCipher
		payload string
	}{
		{"not base64", c, "%%%"},
		{"too short", c, base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"tampered", c, tampered},
		{"wrong key", other, payload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Decrypt(tt.payload)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestIPAllowlist(t *testing.T) {
	allow, err := NewIPAllowlist(config.DefaultAllowedIPRanges, nil)
	require.NoError(t, err)

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"192.168.1.10", true},
		{"8.8.8.8", false},
		{"::ffff:10.0.0.1", true},
		{"::1", false},
		{"not-an-ip", false},
		{"", false},
		{"10.0.0.1:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, allow.Allowed(tt.ip))
		})
	}

	assert.ErrorIs(t, allow.Check("garbage"), ErrInvalidIP)
	assert.Equal(t, config.DefaultAllowedIPRanges, allow.Ranges())
}

func TestNewIPAllowlist_InvalidCIDR(t *testing.T) {
	_, err := NewIPAllowlist([]string{"10.0.0.0/8", "10.0.0.0/33"}, nil)
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1", "X-Real-IP": "198.51.100.1"}, "10.0.0.9:1234", true, "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.1"}, "10.0.0.9:1234", true, "198.51.100.1"},
		{"socket address", nil, "10.0.0.9:1234", true, "10.0.0.9"},
		{"ipv6 socket", nil, "[::1]:443", true, "::1"},
		{"proxy headers ignored", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.9:1234", false, "10.0.0.9"},
		{"no port", nil, "10.0.0.9", true, "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestEventLog(t *testing.T) {
	var buf bytes.Buffer
	log := NewEventLog(logging.NewLoggerWithWriter("info", "json", &buf), true)
	log.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	r := httptest.NewRequest("POST", "/api/chat", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	r.Header.Set("User-Agent", "tests")

	ev := log.Log(r, EventInvalidInput, map[string]interface{}{"field": "message"})
	assert.Equal(t, "203.0.113.7", ev.IPAddress)
	assert.Equal(t, "tests", ev.UserAgent)

	out := buf.String()
	assert.Contains(t, out, `"event_type":"invalid_input"`)
	assert.Contains(t, out, `"timestamp":"2024-01-02T03:04:05Z"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestFieldCipher_URLAlphabetKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xfb}, 32)
	std, err := NewFieldCipher(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	url, err := NewFieldCipher(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)

	payload, err := std.Encrypt("same key")
	require.NoError(t, err)
	got, err := url.Decrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, "same key", got)
}
