//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the control inputs from actual hardware using the Linux
// GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	swPin  *gpiocdev.Line
	ackPin *gpiocdev.Line
}

// NewRealReader requests the switch and ack lines as inputs.
func NewRealReader(chipName string, sw, ack InputPin) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	swOpts, err := inputOptions(sw)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("switch pin %d: %w", sw.Pin, err)
	}
	swLine, err := chip.RequestLine(sw.Pin, swOpts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request switch pin %d: %w", sw.Pin, err)
	}

	ackOpts, err := inputOptions(ack)
	if err != nil {
		swLine.Close()
		chip.Close()
		return nil, fmt.Errorf("ack pin %d: %w", ack.Pin, err)
	}
	ackLine, err := chip.RequestLine(ack.Pin, ackOpts...)
	if err != nil {
		swLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request ack pin %d: %w", ack.Pin, err)
	}

	return &RealReader{
		chip:   chip,
		swPin:  swLine,
		ackPin: ackLine,
	}, nil
}

func inputOptions(p InputPin) ([]gpiocdev.LineReqOption, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch p.Bias {
	case "":
	case "pull-up":
		opts = append(opts, gpiocdev.WithPullUp)
	case "pull-down":
		opts = append(opts, gpiocdev.WithPullDown)
	case "disabled":
		opts = append(opts, gpiocdev.WithBiasDisabled)
	default:
		return nil, fmt.Errorf("unknown bias %q", p.Bias)
	}
	if p.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	return opts, nil
}

// Read returns the logical states of the switch and the ack line.
// Active-low inversion is applied by the kernel.
func (r *RealReader) Read() (bool, bool, error) {
	sw, err := r.swPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read switch pin: %w", err)
	}

	ack, err := r.ackPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read ack pin: %w", err)
	}

	return sw == 1, ack == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error
	if r.swPin != nil {
		if err := r.swPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch pin: %w", err))
		}
	}
	if r.ackPin != nil {
		if err := r.ackPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ack pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealDriver drives relay and signal outputs on actual hardware.
type RealDriver struct {
	chip  *gpiocdev.Chip
	lines map[Line]*gpiocdev.Line
}

// NewRealDriver requests every configured output line. Lines are requested
// with a logical-off initial value, so nothing is energized until the engine
// asks for it.
func NewRealDriver(chipName string, outputs map[Line]OutputPin) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{chip: chip, lines: make(map[Line]*gpiocdev.Line)}
	for _, l := range AllLines {
		p, ok := outputs[l]
		if !ok || p.Pin < 0 {
			continue
		}
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if p.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		if p.OpenDrain {
			opts = append(opts, gpiocdev.AsOpenDrain)
		}
		line, err := chip.RequestLine(p.Pin, opts...)
		if err != nil {
			d.release()
			return nil, fmt.Errorf("request %s pin %d: %w", l, p.Pin, err)
		}
		d.lines[l] = line
	}
	return d, nil
}

// Set drives a line to its logical value.
func (d *RealDriver) Set(l Line, on bool) error {
	line, ok := d.lines[l]
	if !ok {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	return line.SetValue(v)
}

// Close drives every line to logical off, matching cold-start state, then
// releases the lines.
func (d *RealDriver) Close() error {
	var errs []error
	// Cut downstream first.
	for i := len(AllLines) - 1; i >= 0; i-- {
		if line, ok := d.lines[AllLines[i]]; ok {
			if err := line.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("drive %s off: %w", AllLines[i], err))
			}
		}
	}
	if err := d.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *RealDriver) release() error {
	var errs []error
	for l, line := range d.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l, err))
		}
		delete(d.lines, l)
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}
	return errors.Join(errs...)
}
