// Package gpio provides GPIO input reading and relay output driving with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"

	"github.com/sweeney/rack-power/internal/logic"
)

// Reader reads the control inputs.
type Reader interface {
	// Read returns the logical states of the power switch and the shutdown
	// acknowledgement line. Polarity is applied by the implementation.
	// Returns (switchOn, ackOn, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Line identifies an output line.
type Line int

const (
	LineMixer Line = iota
	LineComputer
	LineSubwoofers
	LineRunSignal
	LineIndicator
	LineLiveness // blinks while the controller is running
)

// AllLines lists every output line.
var AllLines = []Line{LineMixer, LineComputer, LineSubwoofers, LineRunSignal, LineIndicator, LineLiveness}

func (l Line) String() string {
	switch l {
	case LineMixer:
		return "mixer"
	case LineComputer:
		return "computer"
	case LineSubwoofers:
		return "subwoofers"
	case LineRunSignal:
		return "run-signal"
	case LineIndicator:
		return "indicator"
	case LineLiveness:
		return "liveness"
	}
	return fmt.Sprintf("line(%d)", int(l))
}

// LineFor returns the output line that switches a channel.
func LineFor(ch logic.Channel) Line {
	switch ch {
	case logic.ChannelComputer:
		return LineComputer
	case logic.ChannelSubwoofers:
		return LineSubwoofers
	}
	return LineMixer
}

// Driver writes output lines. Values are logical: true = energized.
type Driver interface {
	// Set drives a line. Setting an unconfigured line is a no-op.
	Set(line Line, on bool) error

	// Close drives every line off and releases GPIO resources.
	Close() error
}

// InputPin describes an input line.
type InputPin struct {
	Pin       int    // BCM offset on the chip
	ActiveLow bool   // raw low = logical on
	Bias      string // "pull-up", "pull-down", "disabled" or "" to leave as-is
}

// OutputPin describes an output line. A negative Pin disables the line.
type OutputPin struct {
	Pin       int
	ActiveLow bool // relay boards that energize on a low level
	OpenDrain bool
}

// Apply writes a command set to the driver. Channels being cut are written
// downstream-first before channels being energized are written upstream-first,
// so a single tick never briefly inverts the power order. All writes are
// attempted; errors are joined.
func Apply(d Driver, cmds logic.RelayCommandSet, indicator bool) error {
	var errs []error
	set := func(l Line, on bool) {
		if err := d.Set(l, on); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", l, err))
		}
	}

	for i := len(logic.PowerOnOrder) - 1; i >= 0; i-- {
		ch := logic.PowerOnOrder[i]
		if !cmds.Get(ch) {
			set(LineFor(ch), false)
		}
	}
	for _, ch := range logic.PowerOnOrder {
		if cmds.Get(ch) {
			set(LineFor(ch), true)
		}
	}
	set(LineRunSignal, cmds.RunSignal)
	set(LineIndicator, indicator)

	return errors.Join(errs...)
}
