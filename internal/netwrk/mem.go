package netwrk

import (
	"context"
	"sync"
)

// MemBus is an in-process pub/sub hub with MQTT filter semantics. It
// stands in for a broker in tests and loopback play. Like a broker, it
// echoes a publication back to the publisher when its own filters
// match.
type MemBus struct {
	mu    sync.Mutex
	conns []*MemConn
}

func NewMemBus() *MemBus {
	return &MemBus{}
}

// Client returns a new endpoint attached to the bus.
func (b *MemBus) Client() *MemConn {
	c := &MemConn{bus: b, in: make(chan Message, inboxSize)}
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()
	return c
}

func (b *MemBus) publish(msg Message) {
	b.mu.Lock()
	conns := append([]*MemConn(nil), b.conns...)
	b.mu.Unlock()

	for _, c := range conns {
		c.deliver(msg)
	}
}

// MemConn is one endpoint on a MemBus. Delivery into its inbox is
// synchronous with Publish, which keeps tests deterministic.
type MemConn struct {
	bus *MemBus
	in  chan Message

	mu      sync.Mutex
	filters []string
	closed  bool
}

func (c *MemConn) Connect(ctx context.Context) error {
	return nil
}

func (c *MemConn) Subscribe(filters ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrUnavailable
	}
	c.filters = append(c.filters, filters...)
	return nil
}

func (c *MemConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrUnavailable
	}
	c.bus.publish(Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *MemConn) deliver(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, f := range c.filters {
		if MatchTopic(f, msg.Topic) {
			select {
			case c.in <- msg:
			default:
			}
			return
		}
	}
}

func (c *MemConn) Messages() <-chan Message {
	return c.in
}

func (c *MemConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
