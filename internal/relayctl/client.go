package relayctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

// Client wraps API calls.
type Client struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// GetJSON decodes the JSON answer of a GET into target.
func (c *Client) GetJSON(ctx context.Context, path string, target interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return responseError(req, resp)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// OpenStream posts payload and returns the event stream of the answer. The
// caller closes the returned body.
func (c *Client) OpenStream(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", sse.ContentType)
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, responseError(req, resp)
	}
	return resp.Body, nil
}

func responseError(req *http.Request, resp *http.Response) error {
	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		if len(body.Details) > 0 {
			return fmt.Errorf("%s %s failed: %s: %s (%s)", req.Method, req.URL.Path, resp.Status, body.Error, strings.Join(body.Details, "; "))
		}
		return fmt.Errorf("%s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, body.Error)
	}
	return fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
}
