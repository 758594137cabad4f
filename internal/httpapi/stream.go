package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/notify"
)

// connectedEvent is the first event every stream receives.
var connectedEvent = []byte(`{"type":"connected"}`)

const wsWriteTimeout = 5 * time.Second

// handleStream serves the caller's live notifications as Server-Sent Events.
// The loop ends when the client goes away or the registry shuts down; the
// channel is deregistered on every exit path.
func (s *Server) handleStream(c *gin.Context) {
	user := currentUser(c)
	w := c.Writer

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch := s.registry.Connect(user.ID)
	defer s.registry.Disconnect(user.ID, ch)

	if err := writeSSE(w, connectedEvent); err != nil {
		s.logger.Printf("Stream write failed for user %s: %v", user.ID, err)
		return
	}

	err := s.pump(c.Request.Context(), ch,
		func(data []byte) error { return writeSSE(w, data) },
		func() error {
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			w.Flush()
			return nil
		},
	)
	if err != nil {
		s.logger.Printf("Stream for user %s ended: %v", user.ID, err)
	}
}

// handleWebSocket serves the same stream as handleStream over a WebSocket:
// each payload is one text frame and the heartbeat is a ping.
func (s *Server) handleWebSocket(c *gin.Context) {
	user := currentUser(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	// Client frames are ignored; reading keeps close frames flowing and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())

	ch := s.registry.Connect(user.ID)
	defer s.registry.Disconnect(user.ID, ch)

	write := func(data []byte) error {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, data)
	}
	if err := write(connectedEvent); err != nil {
		s.logger.Printf("WebSocket write failed for user %s: %v", user.ID, err)
		return
	}

	err = s.pump(ctx, ch, write, func() error {
		pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return conn.Ping(pctx)
	})
	if err != nil {
		s.logger.Printf("WebSocket for user %s ended: %v", user.ID, err)
		return
	}
	if ctx.Err() == nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// pump drains ch into send until ctx ends or ch closes. heartbeat runs
// whenever the stream has been idle for s.heartbeat. A nil return means the
// registry closed the channel or the client left; any other error is a
// failed write.
func (s *Server) pump(
	ctx context.Context,
	ch *notify.Channel,
	send func([]byte) error,
	heartbeat func() error,
) error {
	idle := time.NewTimer(s.heartbeat)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ch.Done():
			return s.drain(ch, send)

		case <-ch.Ready():
			if err := s.drain(ch, send); err != nil {
				return err
			}
			resetTimer(idle, s.heartbeat)

		case <-idle.C:
			if err := heartbeat(); err != nil {
				return err
			}
			idle.Reset(s.heartbeat)
		}
	}
}

// drain sends every queued payload in order.
func (s *Server) drain(ch *notify.Channel, send func([]byte) error) error {
	for {
		p, ok := ch.Pop()
		if !ok {
			return nil
		}
		data, err := json.Marshal(p)
		if err != nil {
			s.logger.Printf("WARNING: dropping unencodable payload for user %s: %v", ch.UserID(), err)
			continue
		}
		if err := send(data); err != nil {
			return err
		}
	}
}

// writeSSE writes one data event and flushes it.
func writeSSE(w gin.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
