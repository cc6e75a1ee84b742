package logic

import "time"

// Level is the debounced logical level of an input line.
type Level string

const (
	LevelOn  Level = "ON"
	LevelOff Level = "OFF"
)

// InputEventType represents a debounced input transition.
type InputEventType string

const (
	InputSwitchOn  InputEventType = "SWITCH_ON"
	InputSwitchOff InputEventType = "SWITCH_OFF"
	InputAckOn     InputEventType = "ACK_ON"
	InputAckOff    InputEventType = "ACK_OFF"
)

// InputEvent is a debounced transition of the switch or the shutdown ack line.
type InputEvent struct {
	Timestamp time.Time
	Type      InputEventType
	Switch    Level
	Ack       Level
}

// InputSample is a single sample of the input lines, already in logical form.
type InputSample struct {
	Switch bool // true = switch in the ON position
	Ack    bool // true = companion computer reports shutdown complete
	Time   time.Time
}

// lineState tracks debounce state for a single input line.
type lineState struct {
	// Current stable (debounced) level
	Stable Level
	// Pending level during debounce
	Pending Level
	// Time when the pending level was first observed
	PendingSince time.Time
	// Whether a baseline has been established
	Baselined bool

	debounce time.Duration
}

// Debouncer tracks the switch and ack lines and reports debounced transitions.
// The level seen at startup becomes the baseline and is never reported as a
// transition, so a switch left ON across a power loss must be cycled.
type Debouncer struct {
	sw        lineState
	ack       lineState
	baselined bool
}

// NewDebouncer creates a debouncer with per-line debounce durations.
func NewDebouncer(switchDebounce, ackDebounce time.Duration) *Debouncer {
	return &Debouncer{
		sw:  lineState{debounce: switchDebounce},
		ack: lineState{debounce: ackDebounce},
	}
}

// Process takes a new sample and returns any transitions that should be acted on.
// Transitions are only returned once both lines are baselined.
func (d *Debouncer) Process(s InputSample) []InputEvent {
	swChanged := processLine(&d.sw, levelOf(s.Switch), s.Time)
	ackChanged := processLine(&d.ack, levelOf(s.Ack), s.Time)

	if !d.baselined {
		if d.sw.Baselined && d.ack.Baselined {
			d.baselined = true
		}
		return nil
	}

	var events []InputEvent
	if swChanged {
		typ := InputSwitchOff
		if d.sw.Stable == LevelOn {
			typ = InputSwitchOn
		}
		events = append(events, InputEvent{Timestamp: s.Time, Type: typ, Switch: d.sw.Stable, Ack: d.ack.Stable})
	}
	if ackChanged {
		typ := InputAckOff
		if d.ack.Stable == LevelOn {
			typ = InputAckOn
		}
		events = append(events, InputEvent{Timestamp: s.Time, Type: typ, Switch: d.sw.Stable, Ack: d.ack.Stable})
	}
	return events
}

// processLine applies debounce to one line. It reports whether the stable
// level changed after the baseline was established.
func processLine(l *lineState, level Level, now time.Time) bool {
	if !l.Baselined {
		if l.Pending != level {
			// First sample, or the level moved during baseline: restart.
			l.Pending = level
			l.PendingSince = now
			return false
		}
		if now.Sub(l.PendingSince) >= l.debounce {
			l.Stable = level
			l.Baselined = true
			l.Pending = ""
		}
		return false
	}

	if level == l.Stable {
		l.Pending = ""
		return false
	}

	if l.Pending != level {
		l.Pending = level
		l.PendingSince = now
		return false
	}

	if now.Sub(l.PendingSince) >= l.debounce {
		l.Stable = level
		l.Pending = ""
		return true
	}
	return false
}

func levelOf(b bool) Level {
	if b {
		return LevelOn
	}
	return LevelOff
}

// IsBaselined returns whether both lines have an established baseline.
func (d *Debouncer) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the stable levels. Unbaselined lines read as "".
func (d *Debouncer) CurrentState() (sw Level, ack Level) {
	return d.sw.Stable, d.ack.Stable
}

// AckOn returns the debounced shutdown acknowledgement. It is false until
// the ack line is baselined.
func (d *Debouncer) AckOn() bool {
	return d.ack.Baselined && d.ack.Stable == LevelOn
}
