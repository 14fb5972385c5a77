package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

// Sampling parameters shared by every completion
const (
	Temperature = 0.1
	TopP        = 0.9
)

var (
	ErrNotConfigured = errors.New("LLM service configuration is incomplete")
	ErrNoCredentials = errors.New("LLM service needs an API key or a token source")
	ErrEmptyResponse = errors.New("LLM service returned no choices")
)

// APIError is a non-2xx answer from the completions endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status: %d)", e.Body, e.StatusCode)
}

// Retryable reports whether the status is worth another attempt
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the chat-completions request body
type CompletionRequest struct {
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

// CompletionResponse is the part of the chat-completions answer we read
type CompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client talks to an Azure OpenAI compatible chat-completions deployment
type Client struct {
	endpoint   string
	deployment string
	apiVersion string
	apiKey     string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	retry      utils.RetryConfig
	logger     *logging.Logger
}

// NewClient creates a client. The API key wins over tokens when both are set.
func NewClient(cfg *config.LLMConfig, tokens oauth2.TokenSource, logger *logging.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if cfg.APIKey == "" && tokens == nil {
		return nil, ErrNoCredentials
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}

	c := &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		deployment: cfg.DeploymentName,
		apiVersion: cfg.APIVersion,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		logger:     logger,
	}
	if cfg.APIKey == "" {
		c.tokens = tokens
	}

	mode := "api_key"
	if c.tokens != nil {
		mode = "token_source"
	}
	logger.Info("LLM client initialized", map[string]interface{}{
		"endpoint":   c.endpoint,
		"deployment": c.deployment,
		"auth":       mode,
	})
	return c, nil
}

// Complete sends messages and returns the first choice, retrying transient failures
func (c *Client) Complete(ctx context.Context, operation string, messages []Message, maxTokens int) (string, error) {
	return c.complete(ctx, c.retry, operation, messages, maxTokens)
}

func (c *Client) complete(ctx context.Context, retry utils.RetryConfig, operation string, messages []Message, maxTokens int) (string, error) {
	body := CompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: Temperature,
		TopP:        TopP,
	}

	start := time.Now()
	var content string
	err := utils.Retry(ctx, c.logger, retry, "LLM "+operation, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return utils.Permanent(err)
		}

		var resp CompletionResponse
		if err := c.doRequest(req, &resp); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return utils.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	metrics.RecordLLMCall(operation, err == nil, time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("All LLM call attempts failed", err, map[string]interface{}{
			"operation": operation,
		})
		return "", err
	}
	return content, nil
}

func (c *Client) completionsURL() string {
	q := url.Values{}
	q.Set("api-version", c.apiVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		c.endpoint, url.PathEscape(c.deployment), q.Encode())
}

func (c *Client) newRequest(ctx context.Context, body interface{}) (*http.Request, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
		return req, nil
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: logging.Truncate(string(body), 500)}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
