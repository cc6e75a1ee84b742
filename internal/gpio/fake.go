package gpio

import "errors"

// FakeReader is a test double that returns scripted input values.
type FakeReader struct {
	// Samples contains scripted (switchOn, ackOn) values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single input reading (already in logical form).
type Sample struct {
	Switch bool // true = ON
	Ack    bool // true = shutdown acknowledged
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Switch, sample.Ack, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// Write is a single recorded call to FakeDriver.Set.
type Write struct {
	Line Line
	On   bool
}

// FakeDriver records output writes for test assertions.
type FakeDriver struct {
	// Writes contains every Set call in order.
	Writes []Write

	// Levels holds the last value written to each line.
	Levels map[Line]bool

	// SetError, if set, will be returned by Set (the write is not recorded).
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver with every line off.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{Levels: make(map[Line]bool)}
}

// Set records the write.
func (f *FakeDriver) Set(l Line, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, Write{Line: l, On: on})
	f.Levels[l] = on
	return nil
}

// Close drives every line off and marks the driver closed.
func (f *FakeDriver) Close() error {
	for _, l := range AllLines {
		f.Levels[l] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeDriver) Reset() {
	f.Writes = nil
	f.Levels = make(map[Line]bool)
	f.SetError = nil
	f.Closed = false
}
