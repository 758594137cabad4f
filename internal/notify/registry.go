// Package notify fans live notification payloads out to the streaming
// connections each user currently has open.
//
// A Registry maps a user ID to the list of Channels opened for that user.
// Each Channel is an unbounded FIFO queue drained by exactly one stream.
// Sending never blocks and never fails: a user without open channels simply
// misses the push, and the durable Notification row is the fallback.
package notify

import (
	"io"
	"log"
	"sync"
)

// Payload is one live event. It is JSON-encoded by the stream that drains it.
type Payload = any

// Registry tracks open delivery channels per user.
type Registry struct {
	mu       sync.Mutex
	channels map[string][]*Channel
	closed   bool
	logger   *log.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Registry{
		channels: make(map[string][]*Channel),
		logger:   logger,
	}
}

// Connect allocates a new channel for userID and registers it. There is no
// per-user limit; every call yields a distinct channel. After Close the
// returned channel is already closed.
func (r *Registry) Connect(userID string) *Channel {
	ch := newChannel(userID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch.close()
		return ch
	}
	r.channels[userID] = append(r.channels[userID], ch)
	count := len(r.channels[userID])
	r.mu.Unlock()

	r.logger.Printf("Stream opened for user %s (channels: %d)", userID, count)
	return ch
}

// Disconnect removes ch from userID's list and closes it. When the list
// becomes empty the user entry is deleted. Disconnecting a channel that is
// not registered is a no-op.
func (r *Registry) Disconnect(userID string, ch *Channel) {
	if ch == nil {
		return
	}

	r.mu.Lock()
	list := r.channels[userID]
	idx := -1
	for i, c := range list {
		if c == ch {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}

	remaining := make([]*Channel, 0, len(list)-1)
	remaining = append(remaining, list[:idx]...)
	remaining = append(remaining, list[idx+1:]...)
	if len(remaining) == 0 {
		delete(r.channels, userID)
	} else {
		r.channels[userID] = remaining
	}
	r.mu.Unlock()

	ch.close()
	r.logger.Printf("Stream closed for user %s (channels: %d)", userID, len(remaining))
}

// Send pushes payload onto every channel registered for userID, in the
// order Send is called. With no channels the payload is dropped and no
// entry is created.
func (r *Registry) Send(userID string, payload Payload) {
	// Pushing under the registry lock keeps concurrent Sends in the same
	// order on every channel of the user.
	r.mu.Lock()
	for _, ch := range r.channels[userID] {
		ch.push(payload)
	}
	r.mu.Unlock()
}

// Connections returns how many channels userID has open.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[userID])
}

// HasUser reports whether userID has a registry entry.
func (r *Registry) HasUser(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[userID]
	return ok
}

// Users returns the number of users with at least one open channel.
func (r *Registry) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Total returns the number of open channels across all users.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.channels {
		n += len(list)
	}
	return n
}

// Close tears the registry down: every channel is closed and removed, and
// later Connect calls return closed channels.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := r.channels
	r.channels = make(map[string][]*Channel)
	r.mu.Unlock()

	n := 0
	for _, list := range all {
		for _, ch := range list {
			ch.close()
			n++
		}
	}
	r.logger.Printf("Registry closed (%d channels released)", n)
}
