// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/rack-power/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "audio/rack/power"

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("publish timeout")

// Topics holds the topics the daemon publishes to.
type Topics struct {
	Events string // sequence steps
	System string // lifecycle and status snapshots
}

// NewTopics derives the topic set from a prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a sequence event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "STALLED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Rack RackPayload `json:"rack"`
}

// RackPayload contains the sequence event details.
type RackPayload struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	From      string          `json:"from"`
	State     string          `json:"state"`
	Target    string          `json:"target"`
	Commands  CommandsPayload `json:"commands"`
}

// CommandsPayload reports each output as "ON" or "OFF".
type CommandsPayload struct {
	Mixer      string `json:"mixer"`
	Computer   string `json:"computer"`
	Subwoofers string `json:"subwoofers"`
	RunSignal  string `json:"run_signal"`
}

// NewCommandsPayload converts a command set to its payload form.
func NewCommandsPayload(c logic.RelayCommandSet) CommandsPayload {
	return CommandsPayload{
		Mixer:      onOff(c.Mixer),
		Computer:   onOff(c.Computer),
		Subwoofers: onOff(c.Subwoofers),
		RunSignal:  onOff(c.RunSignal),
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// FormatPayload creates the JSON payload for a sequence event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Rack: RackPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			From:      string(event.From),
			State:     string(event.State),
			Target:    event.Target.String(),
			Commands:  NewCommandsPayload(event.Commands),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
