// Package logic contains the pure power-sequencing logic for the rack.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Channel identifies a switched-power output.
type Channel int

const (
	ChannelMixer Channel = iota
	ChannelComputer
	ChannelSubwoofers
)

// PowerOnOrder lists channels in the order they are energized.
// Power-off walks it in reverse.
var PowerOnOrder = []Channel{ChannelMixer, ChannelComputer, ChannelSubwoofers}

func (c Channel) String() string {
	switch c {
	case ChannelMixer:
		return "mixer"
	case ChannelComputer:
		return "computer"
	case ChannelSubwoofers:
		return "subwoofers"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// SystemState is the engine's current logical state.
type SystemState string

const (
	StateOff              SystemState = "OFF"
	StatePoweringOn       SystemState = "POWERING_ON"
	StateOn               SystemState = "ON"
	StatePoweringOff      SystemState = "POWERING_OFF"
	StateAwaitingShutdown SystemState = "AWAITING_SHUTDOWN"
)

// Stable reports whether s is a resting state in which a latched request may act.
func (s SystemState) Stable() bool {
	return s == StateOff || s == StateOn
}

// TargetRequest is the externally requested target. The zero value is TargetOff.
type TargetRequest int

const (
	TargetOff TargetRequest = iota
	TargetOn
)

func (t TargetRequest) String() string {
	if t == TargetOn {
		return "ON"
	}
	return "OFF"
}

// RelayCommandSet is the complete set of output commands for one tick.
// It is re-issued every tick; outputs are idempotent.
type RelayCommandSet struct {
	Mixer      bool
	Computer   bool
	Subwoofers bool

	// RunSignal is held high while the companion computer should keep running.
	// A falling edge asks it to shut down.
	RunSignal bool
}

// Get returns the command for a single channel.
func (c RelayCommandSet) Get(ch Channel) bool {
	switch ch {
	case ChannelMixer:
		return c.Mixer
	case ChannelComputer:
		return c.Computer
	case ChannelSubwoofers:
		return c.Subwoofers
	}
	return false
}

// Timings holds the dwell periods of the sequence.
type Timings struct {
	// SignalSettle is the dwell after the mixer is energized before the computer is.
	SignalSettle time.Duration
	// BootSettle is the dwell after the computer is energized before the subwoofers are.
	BootSettle time.Duration
	// Stabilize is the dwell after the subwoofers are cut before the mixer is.
	Stabilize time.Duration
	// ShutdownRetrigger re-pulses the run signal while awaiting the shutdown
	// acknowledgement. Zero disables re-pulsing.
	ShutdownRetrigger time.Duration
}

// DefaultTimings returns the timings used when nothing is configured.
func DefaultTimings() Timings {
	return Timings{
		SignalSettle:      500 * time.Millisecond,
		BootSettle:        5 * time.Second,
		Stabilize:         1 * time.Second,
		ShutdownRetrigger: 500 * time.Millisecond,
	}
}

// Validate rejects negative durations.
func (t Timings) Validate() error {
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"signal_settle", t.SignalSettle},
		{"boot_settle", t.BootSettle},
		{"stabilize", t.Stabilize},
		{"shutdown_retrigger", t.ShutdownRetrigger},
	} {
		if d.v < 0 {
			return fmt.Errorf("%s must not be negative (got %v)", d.name, d.v)
		}
	}
	return nil
}

// EventType names a step of the sequence.
type EventType string

const (
	EventPoweringOn        EventType = "POWERING_ON"
	EventComputerOn        EventType = "COMPUTER_ON"
	EventOn                EventType = "ON"
	EventPoweringOff       EventType = "POWERING_OFF"
	EventAwaitingShutdown  EventType = "AWAITING_SHUTDOWN"
	EventShutdownRetrigger EventType = "SHUTDOWN_RETRIGGER"
	EventOff               EventType = "OFF"
)

// Event describes a step taken by the engine during a tick.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      SystemState
	State     SystemState
	Target    TargetRequest
	Commands  RelayCommandSet
}

// Input is a single tick's worth of inputs to the engine.
type Input struct {
	Target      TargetRequest
	ShutdownAck bool
	Time        time.Time
}

// EventCounts tracks completed sequences since startup.
type EventCounts struct {
	PowerOn  int // sequences that reached ON
	PowerOff int // sequences that reached OFF
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
