package publisher

import (
	"errors"
	"sync"

	"playlog/model"
)

// ErrChannelClosed is returned by Send after the channel has been torn down.
// The caller logs it and drops the payload; there is no retry on the
// producer side.
var ErrChannelClosed = errors.New("channel is closed")

// Payload is the channel's transport unit: either a domain event or the stop
// sentinel that shuts the pipeline down.
type Payload struct {
	Event model.Event
	Stop  bool
}

// EventPayload wraps an event for the channel.
func EventPayload(e model.Event) Payload {
	return Payload{Event: e}
}

// StopPayload returns the shutdown sentinel.
func StopPayload() Payload {
	return Payload{Stop: true}
}

// Channel is an unbounded FIFO hand-off queue between the single producer and
// the single worker. Send never blocks beyond allocation, which is what lets
// the producer run inside player callbacks. Payloads reach the consumer in
// exact send order, so a stop sentinel sent after N events is observed only
// after all N have been processed.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Payload
	closed bool
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send enqueues a payload. It never blocks. Returns ErrChannelClosed if the
// consumer side has been torn down.
func (c *Channel) Send(p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.items = append(c.items, p)
	c.cond.Signal()
	return nil
}

// Receive blocks until a payload is available or the channel is closed and
// drained. The second return value is false only in the latter case.
func (c *Channel) Receive() (Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.items) == 0 {
		if c.closed {
			return Payload{}, false
		}
		c.cond.Wait()
	}
	p := c.items[0]
	c.items = c.items[1:]
	return p, true
}

// Close tears the channel down. Payloads already queued can still be
// received; further sends fail with ErrChannelClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cond.Broadcast()
}

// Len reports the number of queued payloads.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
