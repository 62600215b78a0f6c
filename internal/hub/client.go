package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/config"
)

// maxErrorBodyBytes bounds how much of an upstream error body is read for
// diagnostics.
const maxErrorBodyBytes = 4 << 10 // 4 KB

// Client talks to Docker Hub's metadata API (hub.docker.com), the
// distribution API (registry-1.docker.io) and the token endpoint
// (auth.docker.io). A single client is shared by all operations and is safe
// for concurrent use.
type Client struct {
	httpClient *http.Client

	apiURL      string
	registryURL string
	authURL     string
	authService string

	username    string
	accessToken string

	tokens cache.TokenCache[string]
}

type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenCache supplies the ephemeral-token cache. Without one, every
// authenticated call re-exchanges the credential for a fresh token.
func WithTokenCache(tc cache.TokenCache[string]) ClientOption {
	return func(c *Client) {
		c.tokens = tc
	}
}

// New creates a Hub client from configuration.
func New(cfg config.HubConfig, options ...ClientOption) *Client {
	c := &Client{
		httpClient:  http.DefaultClient,
		apiURL:      strings.TrimSuffix(cfg.APIURL, "/"),
		registryURL: strings.TrimSuffix(cfg.RegistryURL, "/"),
		authURL:     strings.TrimSuffix(cfg.AuthURL, "/"),
		authService: cfg.AuthService,
		username:    cfg.Username,
		accessToken: cfg.AccessToken,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// HasCredential reports whether a long-lived credential is configured. When
// false, every operation is restricted to public resources.
func (c *Client) HasCredential() bool {
	return c.accessToken != ""
}

// getJSON performs a GET against url, attaching token as a bearer if
// non-empty, and decodes the JSON response into out. Non-2xx responses
// become StatusError with a redacted body excerpt. Passing a nil out
// discards the body after the status check.
func (c *Client) getJSON(ctx context.Context, url string, token string, accept string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// do performs an arbitrary request with optional bearer token and returns
// the response after the status check. Callers own the body.
func (c *Client) do(ctx context.Context, method, url, token string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if err := c.checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// checkStatus converts a non-2xx response into a StatusError carrying a
// redacted excerpt of the body.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	message := strings.TrimSpace(redact(string(excerpt), c.accessToken))

	return &StatusError{Code: resp.StatusCode, Message: message}
}

// pagination defaults shared by the listing operations.
const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// parseTime tolerates the empty timestamps Hub returns for never-updated
// resources.
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
