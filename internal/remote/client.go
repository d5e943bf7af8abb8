// Package remote is the HTTP client for the notes backend. Every request goes
// through the transport supplied by the caller, which for protected endpoints
// is the session guard.
package remote

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

	"github.com/starford/scribe/internal/apperr"
)

// maxResponseBody caps how much of a response body is read (10 MiB).
const maxResponseBody int64 = 10 << 20

// Client sends requests to one backend base URL.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for baseURL. transport may be nil for the default.
func New(baseURL string, transport http.RoundTripper) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	// No client-side timeout: bounded waits are the caller's decision via ctx.
	return &Client{base: u, http: &http.Client{Transport: transport}}, nil
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	return req, nil
}

// Do sends req. Transport failures come back classified (Network, Timeout,
// Auth). A 401 response is turned into an Auth error and its body closed; any
// other response is returned to the caller, who must close it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, apperr.Auth(resp.StatusCode, structuredMessage(data))
	}
	return resp, nil
}

// JSON sends in (if non-nil) as a JSON body and decodes a 2xx response into
// out (if non-nil). Non-2xx responses are decoded with DecodeError.
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DecodeError(resp, "Request failed")
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return apperr.Network(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Parse(resp.StatusCode, "Unexpected response from the backend", err)
	}
	return nil
}

func classify(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, apperr.ErrUnauthenticated) {
		return apperr.Auth(0, "")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Network(err)
}
