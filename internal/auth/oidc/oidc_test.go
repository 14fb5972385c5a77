package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "service-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	return srv
}

func TestProvider_TokenSource(t *testing.T) {
	var calls int32
	srv := newIssuer(t, &calls)

	p, err := NewProvider(context.Background(), ClientCredentials{
		IssuerURL:    srv.URL,
		ClientID:     "neuronquery",
		ClientSecret: "secret",
		Scopes:       []string{"https://cognitiveservices.azure.com/.default"},
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/token", p.TokenURL())

	ts := p.TokenSource(context.Background())
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "service-token", tok.AccessToken)

	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "token must be cached until expiry")
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(context.Background(), ClientCredentials{ClientID: "x"})
	assert.Error(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = NewProvider(context.Background(), ClientCredentials{IssuerURL: srv.URL, ClientID: "x"})
	assert.Error(t, err)
}
