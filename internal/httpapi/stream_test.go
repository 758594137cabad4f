package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nhle/taskhub/internal/model"
)

// openStream connects to the SSE endpoint as user and returns a reader over
// the event stream. The stream is closed when cancel is called.
func openStream(t *testing.T, srv *httptest.Server, token string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream?token="+token, nil)
	if err != nil {
		cancel()
		t.Fatalf("building request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("opening stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	return bufio.NewReader(resp.Body), func() {
		cancel()
		resp.Body.Close()
	}
}

// readEvent returns the lines of the next event, without the blank
// terminator line.
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()

	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event (got %q so far): %v", lines, err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

// eventData decodes the data line of an event.
func eventData(t *testing.T, lines []string) map[string]any {
	t.Helper()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "data: ") {
		t.Fatalf("not a data event: %q", lines)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &v); err != nil {
		t.Fatalf("decoding %q: %v", lines[0], err)
	}
	return v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *testEnv) assignNewTask(t *testing.T, title string, to *model.User) {
	t.Helper()
	w := e.do(t, e.alice, http.MethodPost, "/api/tasks", map[string]any{"title": title})
	expectStatus(t, w, http.StatusCreated)
	task := decode[model.Task](t, w)
	expectStatus(t, e.do(t, e.alice, http.MethodPost, "/api/tasks/"+task.ID+"/assign", map[string]any{"assignee_id": to.ID}), http.StatusOK)
}

func TestStreamDeliversAssignments(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	r, closeStream := openStream(t, srv, e.bob.APIToken)
	defer closeStream()

	if got := eventData(t, readEvent(t, r)); got["type"] != "connected" {
		t.Fatalf("first event = %v", got)
	}
	if n := e.registry.Connections(e.bob.ID); n != 1 {
		t.Fatalf("Connections(bob) = %d, want 1", n)
	}

	e.assignNewTask(t, "First", e.bob)
	e.assignNewTask(t, "Second", e.bob)

	for _, want := range []string{"First", "Second"} {
		got := eventData(t, readEvent(t, r))
		if got["type"] != model.NotificationTaskAssigned || got["user_id"] != e.bob.ID {
			t.Fatalf("event = %v", got)
		}
		if msg, _ := got["message"].(string); !strings.Contains(msg, want) {
			t.Errorf("message = %q, want it to mention %q", msg, want)
		}
	}

	closeStream()
	waitFor(t, "stream deregistration", func() bool { return e.registry.Connections(e.bob.ID) == 0 })
}

func TestStreamHeartbeatWhenIdle(t *testing.T) {
	e := newTestEnv(t)
	e.server.heartbeat = 20 * time.Millisecond
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	r, closeStream := openStream(t, srv, e.alice.APIToken)
	defer closeStream()

	readEvent(t, r)
	lines := readEvent(t, r)
	if len(lines) != 1 || lines[0] != ": heartbeat" {
		t.Fatalf("idle event = %q, want heartbeat comment", lines)
	}
}

func TestStreamEndsWhenRegistryCloses(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	r, closeStream := openStream(t, srv, e.alice.APIToken)
	defer closeStream()
	readEvent(t, r)

	e.registry.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, r)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("stream ended with %v, want clean EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after registry close")
	}
}

// openRawStream opens an SSE stream over its own TCP connection, reads the
// connected event and returns the connection so the caller can drop it.
func openRawStream(t *testing.T, srv *httptest.Server, token string) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/notifications/stream?token="+token, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if err := req.Write(conn); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if got := eventData(t, readEvent(t, bufio.NewReader(resp.Body))); got["type"] != "connected" {
		t.Fatalf("first event = %v", got)
	}
	return conn
}

func TestDeadStreamDoesNotAffectSibling(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	r, closeStream := openStream(t, srv, e.bob.APIToken)
	defer closeStream()
	readEvent(t, r)

	dead := openRawStream(t, srv, e.bob.APIToken)
	waitFor(t, "second stream", func() bool { return e.registry.Connections(e.bob.ID) == 2 })

	dead.Close()
	// Keep sending so the server notices the broken write if it has not
	// already seen the disconnect.
	sent := 0
	waitFor(t, "dead stream deregistration", func() bool {
		sent++
		e.registry.Send(e.bob.ID, map[string]any{"seq": sent})
		return e.registry.Connections(e.bob.ID) == 1
	})

	e.registry.Send(e.bob.ID, map[string]any{"seq": "last"})

	for i := 1; i <= sent; i++ {
		got := eventData(t, readEvent(t, r))
		if seq, _ := got["seq"].(float64); int(seq) != i {
			t.Fatalf("event %d = %v, want seq %d", i, got, i)
		}
	}
	if got := eventData(t, readEvent(t, r)); got["seq"] != "last" {
		t.Errorf("final event = %v", got)
	}
	if n := e.registry.Connections(e.bob.ID); n != 1 {
		t.Errorf("Connections(bob) = %d, want 1", n)
	}
}

func TestStreamRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/api/notifications/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if e.registry.Total() != 0 {
		t.Errorf("unauthenticated request registered a channel")
	}
}

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	return conn
}

func readWS(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("frame type = %v, want text", typ)
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return v
}

func TestWebSocketDeliversAssignments(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv, e.bob.APIToken)
	defer conn.CloseNow()

	if got := readWS(t, ctx, conn); got["type"] != "connected" {
		t.Fatalf("first frame = %v", got)
	}

	e.assignNewTask(t, "Over the socket", e.bob)
	if got := readWS(t, ctx, conn); got["type"] != model.NotificationTaskAssigned {
		t.Fatalf("frame = %v", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "socket deregistration", func() bool { return e.registry.Connections(e.bob.ID) == 0 })
}

func TestWebSocketClosedOnRegistryShutdown(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv, e.alice.APIToken)
	defer conn.CloseNow()
	readWS(t, ctx, conn)

	e.registry.Close()

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("read succeeded after registry close")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("socket not closed after registry close")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want %v", status, websocket.StatusGoingAway)
	}
}
