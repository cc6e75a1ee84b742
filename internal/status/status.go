// Package status provides a thread-safe status tracker for the rack-power daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/rack-power/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs              int64
	SignalSettleMs      int64
	BootSettleMs        int64
	StabilizeMs         int64
	ShutdownRetriggerMs int64
	HeartbeatMs         int64
	Broker              string
	HTTPAddr            string
}

// RackState is the sequencing state copied out of the engine and debouncer
// after each tick.
type RackState struct {
	State      logic.SystemState
	Commands   logic.RelayCommandSet
	Target     logic.TargetRequest
	Pending    bool
	Switch     logic.Level
	Ack        logic.Level
	Baselined  bool
	StateSince time.Time
	Counts     logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Rack          RackState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// InState returns how long the rack has been in its current state.
func (s Snapshot) InState() time.Duration {
	if s.Rack.StateSince.IsZero() || s.Now.Before(s.Rack.StateSince) {
		return 0
	}
	return s.Now.Sub(s.Rack.StateSince)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the rack state. Called from runLoop on every tick.
func (t *Tracker) Update(rack RackState) {
	t.mu.Lock()
	t.snap.Rack = rack
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
