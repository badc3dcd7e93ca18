// Package netwrk is the pub/sub transport layer. It exposes the broker
// as a connected endpoint with an inbound message channel, so the rest
// of the engine never sees client callbacks. Delivery is at-least-once
// and arrival order across topics is not guaranteed; layers above are
// built to tolerate both.
package netwrk

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable reports that the broker link is down or refused an
// operation. Callers treat it as transient.
var ErrUnavailable = errors.New("transport unavailable")

// Message is one inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Conn is a connected pub/sub endpoint.
type Conn interface {
	// Connect dials the broker. ctx bounds the initial attempt only;
	// reconnects afterwards are the implementation's business.
	Connect(ctx context.Context) error

	// Subscribe adds topic filters. Subscriptions survive reconnects.
	Subscribe(filters ...string) error

	// Publish is fire-and-forget; confirmation is left to broker QoS.
	Publish(topic string, payload []byte) error

	// Messages streams inbound publications. There must be exactly one
	// consumer; slow consumption drops messages rather than blocking
	// the transport.
	Messages() <-chan Message

	// Close drops the broker link.
	Close()
}

const inboxSize = 256

// MatchTopic reports whether an MQTT topic filter matches a concrete
// topic: "+" matches one level, a trailing "#" matches that level and
// everything below it.
func MatchTopic(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return i == len(fp)-1
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
