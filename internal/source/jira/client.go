package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nhle/taskhub/internal/source"
)

// Client is a thin HTTP client for the Jira Server/DC REST API v2.
// It handles Bearer token authentication, JSON marshaling, proxy
// selection, and automatic retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	maxRetries int

	mode    source.ProxyMode
	direct  *http.Client
	proxied *http.Client

	// viaProxy latches once auto mode has fallen back to the proxy.
	mu       sync.Mutex
	viaProxy bool

	// sleep waits between 429 retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption customizes a Client.
type ClientOption func(*Client) error

// WithProxy routes requests through proxyURL according to mode.
func WithProxy(mode source.ProxyMode, proxyURL string) ClientOption {
	return func(c *Client) error {
		c.mode = mode
		if mode == source.ProxyDirect {
			return nil
		}
		if proxyURL == "" {
			return fmt.Errorf("proxy mode %q requires a proxy URL", mode)
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("parsing proxy URL: %w", err)
		}
		c.proxied = &http.Client{
			Timeout:   c.direct.Timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
		return nil
	}
}

// WithHTTPClient replaces the direct HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		c.direct = hc
		return nil
	}
}

// NewClient creates a new Jira HTTP client. The baseURL should be the
// root URL of the Jira instance (e.g., https://jira.corp.example.com).
// The token is a Personal Access Token used for Bearer authentication.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		direct: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{Proxy: nil},
		},
		maxRetries: 3,
		mode:       source.ProxyDirect,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// httpClient picks the client for the next request.
func (c *Client) httpClient() *http.Client {
	switch c.mode {
	case source.ProxyAlways:
		return c.proxied
	case source.ProxyAuto:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.viaProxy {
			return c.proxied
		}
	}
	return c.direct
}

// send executes req, falling back to the proxy in auto mode when the
// direct attempt fails at the transport level.
func (c *Client) send(req *http.Request, body []byte) (*http.Response, error) {
	hc := c.httpClient()
	resp, err := hc.Do(req)
	if err == nil || c.mode != source.ProxyAuto || hc == c.proxied {
		return resp, err
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if body != nil {
		retry.Body = io.NopCloser(bytes.NewReader(body))
	}
	resp, proxyErr := c.proxied.Do(retry)
	if proxyErr != nil {
		return nil, fmt.Errorf("direct: %v; via proxy: %w", err, proxyErr)
	}

	c.mu.Lock()
	c.viaProxy = true
	c.mu.Unlock()
	return resp, nil
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	endpoint := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.send(req, payload)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			if attempt == c.maxRetries {
				break
			}
			if err := c.sleep(ctx, retryAfterDuration(resp, attempt)); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &source.AuthError{
				SourceType: source.SourceTypeJira,
				Message: fmt.Sprintf(
					"authentication failed (401): check the Personal Access Token for %s",
					c.baseURL,
				),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var jiraErr ErrorResponse
			if json.Unmarshal(respBody, &jiraErr) == nil &&
				(len(jiraErr.ErrorMessages) > 0 || len(jiraErr.Errors) > 0) {
				return fmt.Errorf(
					"jira API error (%d) on %s %s: %s %v",
					resp.StatusCode, method, path,
					strings.Join(jiraErr.ErrorMessages, "; "),
					jiraErr.Errors,
				)
			}
			return fmt.Errorf(
				"unexpected status %d on %s %s: %s",
				resp.StatusCode, method, path, string(respBody),
			)
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
