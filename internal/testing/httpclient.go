package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
)

// TestClient drives a handler through a real listener, optionally with a session token
type TestClient struct {
	Server    *httptest.Server
	Token     string
	UserID    string
	SessionID string
	// Header is added to every request
	Header http.Header
}

// NewTestClient starts handler on a loopback listener closed with the test
func NewTestClient(t *testing.T, handler http.Handler) *TestClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &TestClient{
		Server: server,
		Header: http.Header{},
	}
}

// Authenticate issues a session token for userID
func (tc *TestClient) Authenticate(tokens *auth.TokenManager, userID string) error {
	session, err := tokens.Issue(userID)
	if err != nil {
		return err
	}

	tc.Token = session.Token
	tc.UserID = userID
	tc.SessionID = session.SessionID
	return nil
}

// Do performs an HTTP request. A string body is sent as-is; anything else is JSON encoded.
func (tc *TestClient) Do(method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = strings.NewReader(b)
	default:
		jsonData, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, tc.Server.URL+path, reqBody)
	if err != nil {
		return nil, err
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, values := range tc.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if tc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.Token)
	}

	return tc.Server.Client().Do(req)
}

// Get performs a GET request
func (tc *TestClient) Get(path string) (*http.Response, error) {
	return tc.Do(http.MethodGet, path, nil)
}

// Post performs a POST request
func (tc *TestClient) Post(path string, body interface{}) (*http.Response, error) {
	return tc.Do(http.MethodPost, path, body)
}

// DecodeJSON reads and closes the body into a generic object
func DecodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

// AssertStatus asserts response status code
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()

	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(body))
	}
}
