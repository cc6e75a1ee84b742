package logic

import "time"

// powerOnPhase is the dwell step inside StatePoweringOn.
type powerOnPhase int

const (
	phaseSignalSettle powerOnPhase = iota // mixer on, waiting to energize the computer
	phaseBootSettle                       // computer on, waiting to energize the subwoofers
)

// Engine is the power-sequencing state machine.
//
// It is not safe for concurrent use; the caller serializes ticks.
type Engine struct {
	timings    Timings
	state      SystemState
	phase      powerOnPhase
	timer      timer
	stateSince time.Time
	latched    TargetRequest
	cmds       RelayCommandSet
	counts     EventCounts
}

// NewEngine creates an engine in StateOff with every output commanded off.
func NewEngine(timings Timings) *Engine {
	return &Engine{
		timings: timings,
		state:   StateOff,
	}
}

// Tick advances the engine by one step and returns the commands to apply.
func (e *Engine) Tick(now time.Time, target TargetRequest, shutdownAck bool) RelayCommandSet {
	cmds, _ := e.Process(Input{Target: target, ShutdownAck: shutdownAck, Time: now})
	return cmds
}

// Process advances the engine by one step. It returns the commands to apply
// and the step taken, if any. At most one step is taken per call, so a stable
// state is always held for at least one tick before a latched request acts.
func (e *Engine) Process(input Input) (RelayCommandSet, []Event) {
	now := input.Time
	e.latched = input.Target

	var ev *Event

	switch e.state {
	case StateOff:
		if e.latched == TargetOn {
			e.cmds = RelayCommandSet{Mixer: true, RunSignal: true}
			e.phase = phaseSignalSettle
			ev = e.enter(StatePoweringOn, EventPoweringOn, now)
		}

	case StatePoweringOn:
		switch e.phase {
		case phaseSignalSettle:
			if e.timer.elapsed(now, e.timings.SignalSettle) {
				e.cmds.Computer = true
				e.phase = phaseBootSettle
				e.timer.reset(now)
				ev = e.event(EventComputerOn, e.state, now)
			}
		case phaseBootSettle:
			if e.timer.elapsed(now, e.timings.BootSettle) {
				e.cmds.Subwoofers = true
				e.counts.PowerOn++
				ev = e.enter(StateOn, EventOn, now)
			}
		}

	case StateOn:
		if e.latched == TargetOff {
			e.cmds.Subwoofers = false
			e.cmds.RunSignal = false
			ev = e.enter(StatePoweringOff, EventPoweringOff, now)
		}

	case StatePoweringOff:
		if e.timer.elapsed(now, e.timings.Stabilize) {
			e.cmds.Mixer = false
			ev = e.enter(StateAwaitingShutdown, EventAwaitingShutdown, now)
		}

	case StateAwaitingShutdown:
		// No timeout: computer power is only cut on acknowledgement.
		if input.ShutdownAck {
			e.cmds = RelayCommandSet{}
			e.counts.PowerOff++
			ev = e.enter(StateOff, EventOff, now)
		} else if e.timings.ShutdownRetrigger > 0 && e.timer.elapsed(now, e.timings.ShutdownRetrigger) {
			e.cmds.RunSignal = !e.cmds.RunSignal
			e.timer.reset(now)
			ev = e.event(EventShutdownRetrigger, e.state, now)
		}
	}

	if ev == nil {
		return e.cmds, nil
	}
	return e.cmds, []Event{*ev}
}

// enter moves to a new state and resets the dwell timer.
func (e *Engine) enter(to SystemState, typ EventType, now time.Time) *Event {
	from := e.state
	e.state = to
	e.stateSince = now
	e.timer.reset(now)
	return e.event(typ, from, now)
}

func (e *Engine) event(typ EventType, from SystemState, now time.Time) *Event {
	return &Event{
		Timestamp: now,
		Type:      typ,
		From:      from,
		State:     e.state,
		Target:    e.latched,
		Commands:  e.cmds,
	}
}

// State returns the current state.
func (e *Engine) State() SystemState {
	return e.state
}

// Commands returns the most recently computed commands.
func (e *Engine) Commands() RelayCommandSet {
	return e.cmds
}

// Latched returns the most recent target request.
func (e *Engine) Latched() TargetRequest {
	return e.latched
}

// Pending reports whether the latched request disagrees with the direction
// the engine is currently heading.
func (e *Engine) Pending() bool {
	switch e.state {
	case StatePoweringOn, StateOn:
		return e.latched == TargetOff
	default:
		return e.latched == TargetOn
	}
}

// StateSince returns when the current state was entered.
// It is the zero time while the engine has never left StateOff.
func (e *Engine) StateSince() time.Time {
	return e.stateSince
}

// Counts returns the number of completed sequences.
func (e *Engine) Counts() EventCounts {
	return e.counts
}

// Timings returns the dwell periods the engine was created with.
func (e *Engine) Timings() Timings {
	return e.timings
}
