// Package upstream streams chat completions from an OpenAI-compatible
// inference backend.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoBody is returned when the backend answers without a response body.
var ErrNoBody = errors.New("upstream: no body")

// Message is one chat message sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single streaming completion.
type Request struct {
	Model       string
	Temperature float64
	Messages    []Message
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream: %s", status)
	}
	return fmt.Sprintf("upstream: %s: %s", status, e.Body)
}

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client opens streaming completions against a backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. No client-level timeout is applied: the caller's
// context bounds each stream.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("upstream: base url required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type completionRequest struct {
	Model       string    `json:"model"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

// Stream issues one streaming request and returns the lazy delta sequence.
// Cancelling ctx aborts the in-flight request and closes the connection.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("upstream: no messages provided")
	}
	body, err := json.Marshal(completionRequest{
		Model:       req.Model,
		Stream:      true,
		Temperature: req.Temperature,
		Messages:    req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(text)),
		}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return NewStream(resp.Body), nil
}
