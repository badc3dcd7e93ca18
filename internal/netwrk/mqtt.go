package netwrk

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Will is a last-will message the broker publishes on our behalf if
// the connection dies without a clean disconnect.
type Will struct {
	Topic   string
	Payload []byte
}

// Options configures the broker link for one process.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration
	QoS       byte

	Will *Will

	// OnConnectionState observes connect and disconnect transitions,
	// including automatic reconnects.
	OnConnectionState func(connected bool)

	Logger zerolog.Logger
}

// MQTT is the paho-backed Conn.
type MQTT struct {
	cli mqtt.Client
	qos byte
	in  chan Message
	log zerolog.Logger

	mu      sync.Mutex
	filters []string
}

// NewMQTT builds the client without dialing; Connect does that.
func NewMQTT(o Options) *MQTT {
	m := &MQTT{
		qos: o.QoS,
		in:  make(chan Message, inboxSize),
		log: o.Logger,
	}

	co := mqtt.NewClientOptions().
		AddBroker(o.BrokerURL).
		SetClientID(o.ClientID).
		SetKeepAlive(o.KeepAlive).
		SetAutoReconnect(true)
	if o.Username != "" {
		co.SetUsername(o.Username)
		co.SetPassword(o.Password)
	}
	if o.Will != nil {
		co.SetBinaryWill(o.Will.Topic, o.Will.Payload, o.QoS, false)
	}
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn().Err(err).Msg("broker connection lost")
		if o.OnConnectionState != nil {
			o.OnConnectionState(false)
		}
	})
	// Fires on every (re)connect. Sessions are opened clean, so
	// standing filters have to be re-established here.
	co.SetOnConnectHandler(func(_ mqtt.Client) {
		m.log.Info().Str("broker", o.BrokerURL).Msg("broker connected")
		m.resubscribe()
		if o.OnConnectionState != nil {
			o.OnConnectionState(true)
		}
	})

	m.cli = mqtt.NewClient(co)
	return m
}

func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.cli.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *MQTT) Subscribe(filters ...string) error {
	m.mu.Lock()
	m.filters = append(m.filters, filters...)
	m.mu.Unlock()

	for _, f := range filters {
		tok := m.cli.Subscribe(f, m.qos, m.handle)
		tok.Wait()
		if err := tok.Error(); err != nil {
			return fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, f, err)
		}
	}
	return nil
}

func (m *MQTT) resubscribe() {
	m.mu.Lock()
	filters := append([]string(nil), m.filters...)
	m.mu.Unlock()

	for _, f := range filters {
		if tok := m.cli.Subscribe(f, m.qos, m.handle); tok.Wait() && tok.Error() != nil {
			m.log.Warn().Err(tok.Error()).Str("filter", f).Msg("resubscribe failed")
		}
	}
}

func (m *MQTT) handle(_ mqtt.Client, raw mqtt.Message) {
	select {
	case m.in <- Message{Topic: raw.Topic(), Payload: raw.Payload()}:
	default:
		m.log.Debug().Str("topic", raw.Topic()).Msg("inbox full, dropping message")
	}
}

func (m *MQTT) Publish(topic string, payload []byte) error {
	if !m.cli.IsConnectionOpen() {
		return ErrUnavailable
	}
	m.cli.Publish(topic, m.qos, false, payload)
	return nil
}

func (m *MQTT) Messages() <-chan Message {
	return m.in
}

func (m *MQTT) Close() {
	m.cli.Disconnect(250)
}
