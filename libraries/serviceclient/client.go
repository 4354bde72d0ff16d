package serviceclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/greymass/ramindex/libraries/encoding"
)

const maxErrorBody = 64 * 1024

// Client posts JSON to a node-style HTTP API over TCP or a unix:// socket.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func New(backendURL string, timeout time.Duration, userAgent string) *Client {
	c := &Client{
		baseURL:    backendURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}

	if parsedURL, err := url.Parse(backendURL); err == nil && parsedURL.Scheme == "unix" {
		socketPath := parsedURL.Path
		c.baseURL = "http://localhost"
		c.httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		}
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Post(ctx context.Context, path string, req, resp any) error {
	body, err := encoding.JSONiter.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return &ServiceError{
			Path:       path,
			StatusCode: httpResp.StatusCode,
			Message:    http.StatusText(httpResp.StatusCode),
			Body:       bodyBytes,
		}
	}

	if resp != nil {
		if err := encoding.JSONiter.NewDecoder(httpResp.Body).Decode(resp); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
	}
	return nil
}

// IsRetryable reports whether err is a transport failure or a 5xx from the
// backend, as opposed to a request the backend rejected.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 && !se.IsUnknownKey()
	}
	return true
}
