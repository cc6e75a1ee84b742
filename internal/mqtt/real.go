package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/rack-power/internal/logic"
)

const (
	// Sequence events are published from the control tick, which must not
	// stall on a slow broker.
	eventPublishTimeout  = 250 * time.Millisecond
	systemPublishTimeout = 5 * time.Second
	disconnectQuiesce    = 1000 // milliseconds
)

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	BufferSize  int // messages kept while disconnected
}

// pahoClient is the subset of paho.Client the publisher uses.
type pahoClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client pahoClient
	topics Topics
	log    *slog.Logger

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher creates a publisher and starts connecting in the background.
// The broker publishes a retained SHUTDOWN/MQTT_DISCONNECT will if the
// connection drops uncleanly.
func NewRealPublisher(opts Options, log *slog.Logger) *RealPublisher {
	p := newPublisher(nil, NewTopics(opts.TopicPrefix), log, opts.BufferSize)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", "error", err)
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	client := paho.NewClient(po)
	p.client = client

	// With connect-retry the token only completes once connected; don't wait.
	client.Connect()
	log.Info("mqtt connecting", "broker", opts.Broker, "client_id", opts.ClientID)

	return p
}

func newPublisher(client pahoClient, topics Topics, log *slog.Logger, bufferSize int) *RealPublisher {
	return &RealPublisher{
		client: client,
		topics: topics,
		log:    log,
		buf:    newRingBuffer(bufferSize),
	}
}

// onConnect replays anything buffered while disconnected. Reconnections
// (but not the first connection) are announced with a retained RECONNECTED
// event, which replaces the broker's SHUTDOWN will on the system topic.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		msg := bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: true}
		if err := p.publishNow(msg, systemPublishTimeout); err != nil {
			p.log.Warn("publish reconnected event failed", "error", err)
		}
	}

	n := p.flush()
	p.log.Info("mqtt connected", "replayed", n)
}

// flush publishes everything in the buffer, oldest first.
func (p *RealPublisher) flush() int {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	for _, msg := range msgs {
		if err := p.publishNow(msg, systemPublishTimeout); err != nil {
			p.log.Warn("replay failed", "topic", msg.topic, "error", err)
		}
	}
	return len(msgs)
}

// Publish sends a sequence event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: p.topics.Events, payload: payload}, eventPublishTimeout)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events should be delivered
	if err := p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}, systemPublishTimeout); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// send publishes immediately when connected, otherwise buffers for replay.
func (p *RealPublisher) send(msg bufferedMsg, timeout time.Duration) error {
	if p.client.IsConnectionOpen() {
		return p.publishNow(msg, timeout)
	}

	p.mu.Lock()
	dropped := p.buf.push(msg)
	p.mu.Unlock()
	if dropped {
		p.log.Warn("mqtt buffer full, dropping oldest messages")
	}

	// paho marks the link open before running onConnect on its own
	// goroutine, so a replay may have drained the buffer between the check
	// above and the push. Nothing else would flush it until the next reconnect.
	if p.client.IsConnectionOpen() {
		p.flush()
	}
	return nil
}

func (p *RealPublisher) publishNow(msg bufferedMsg, timeout time.Duration) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
