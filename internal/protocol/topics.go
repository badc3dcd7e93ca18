package protocol

import (
	"fmt"
	"strings"
)

// Every game owns a topic subtree under this prefix. The engine
// subscribes with single-level wildcards and recovers the game id from
// the concrete topic of each inbound publication.
const topicPrefix = "pong/game/"

// Channel names the per-game subtopic a message travels on.
type Channel string

const (
	ChanP1Paddle Channel = "p1/paddle"
	ChanP2Paddle Channel = "p2/paddle"
	ChanBall     Channel = "ball"
	ChanState    Channel = "state"
	ChanJoin     Channel = "join"
	ChanReady    Channel = "ready"
)

// Player maps a paddle channel to its player number, 0 for any other
// channel.
func (c Channel) Player() int {
	switch c {
	case ChanP1Paddle:
		return 1
	case ChanP2Paddle:
		return 2
	}
	return 0
}

// Topic builds the concrete topic for one game's channel.
func Topic(gameID string, ch Channel) string {
	return topicPrefix + gameID + "/" + string(ch)
}

// PaddleTopic builds the paddle topic for a player slot.
func PaddleTopic(gameID string, player int) string {
	if player == 1 {
		return Topic(gameID, ChanP1Paddle)
	}
	return Topic(gameID, ChanP2Paddle)
}

// ServerFilters lists the wildcard subscriptions the engine needs to
// serve every game on the broker. Ball and state are not included; the
// engine is their only publisher.
func ServerFilters() []string {
	return []string{
		topicPrefix + "+/p1/paddle",
		topicPrefix + "+/p2/paddle",
		topicPrefix + "+/join",
		topicPrefix + "+/ready",
	}
}

// ParseTopic splits a game topic into its game id and channel. Topics
// outside the namespace, with an empty or wildcard-bearing id, or with
// an unknown channel are malformed.
func ParseTopic(topic string) (string, Channel, error) {
	rest, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: topic %q", ErrMalformedMessage, topic)
	}
	id, chans, ok := strings.Cut(rest, "/")
	if !ok || id == "" || strings.ContainsAny(id, "+#") {
		return "", "", fmt.Errorf("%w: topic %q", ErrMalformedMessage, topic)
	}
	ch := Channel(chans)
	switch ch {
	case ChanP1Paddle, ChanP2Paddle, ChanBall, ChanState, ChanJoin, ChanReady:
		return id, ch, nil
	}
	return "", "", fmt.Errorf("%w: topic %q", ErrMalformedMessage, topic)
}
