package notify

import "sync"

// Channel is an unbounded FIFO queue of payloads for one stream.
type Channel struct {
	userID string

	mu     sync.Mutex
	queue  []Payload
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

func newChannel(userID string) *Channel {
	return &Channel{
		userID: userID,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// UserID returns the user the channel belongs to.
func (c *Channel) UserID() string {
	return c.userID
}

// push appends p. It never blocks. Pushes after close are dropped.
func (c *Channel) push(p Payload) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, p)
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest queued payload.
func (c *Channel) Pop() (Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil, false
	}
	p := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return p, true
}

// Len returns the number of queued payloads.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Ready is signalled when a payload has been pushed. A single signal may
// cover several payloads, so readers drain with Pop until it reports false.
func (c *Channel) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed when the channel is disconnected or the registry shuts
// down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
