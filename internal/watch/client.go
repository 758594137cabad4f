// Package watch is the terminal client for a user's live notification
// stream.
package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/taskhub/internal/model"
)

// ErrUnauthorized is returned when the server rejects the API token.
var ErrUnauthorized = errors.New("watch: server rejected the API token")

// Event is one data event read from the stream.
type Event struct {
	// Type is "connected" for the greeting, otherwise the notification type.
	Type string

	// Notification is set for notification payloads.
	Notification *model.Notification
}

// Client reads the SSE notification stream of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL that authenticates
// with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No overall timeout: the response body never ends on its own.
		http: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 15 * time.Second,
		}},
	}
}

// Stream connects and calls fn for every data event until the server ends
// the stream or ctx is cancelled, in which case it returns nil. Heartbeat
// comments are consumed silently.
func (c *Client) Stream(ctx context.Context, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notifications/stream", nil)
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	err = readEvents(resp.Body, func(data []byte) {
		ev, perr := parseEvent(data)
		if perr != nil {
			return
		}
		fn(ev)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents splits an SSE body into data payloads. Multi-line data fields
// are joined with newlines; comment lines are skipped.
func readEvents(r io.Reader, fn func([]byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn([]byte(strings.Join(data, "\n")))
				data = data[:0]
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

func parseEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, err
	}
	if head.ID == "" {
		return Event{Type: head.Type}, nil
	}

	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Event{}, err
	}
	return Event{Type: n.Type, Notification: &n}, nil
}
