package pwm

import "sync"

// FakeChip records frequency and duty changes for test assertions.
type FakeChip struct {
	// DutyError, if set, will be returned by SetDutyPercent.
	DutyError error

	mu        sync.Mutex
	frequency float64
	duties    []float64
	closed    bool
}

// NewFakeChip creates a FakeChip already running at frequency.
func NewFakeChip(frequency float64) *FakeChip {
	return &FakeChip{frequency: frequency}
}

// SetFrequency records the frequency.
func (f *FakeChip) SetFrequency(hz float64) error {
	if hz <= 0 {
		return ErrFrequency
	}
	f.mu.Lock()
	f.frequency = hz
	f.mu.Unlock()
	return nil
}

// SetDutyPercent records the duty.
func (f *FakeChip) SetDutyPercent(percent float64) error {
	if f.DutyError != nil {
		return f.DutyError
	}
	if percent < 0 || percent > 100 {
		return ErrPercent
	}
	f.mu.Lock()
	f.duties = append(f.duties, percent)
	f.mu.Unlock()
	return nil
}

// Duties returns every duty set so far, in order.
func (f *FakeChip) Duties() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.duties...)
}

// Duty returns the last duty set, or 0.
func (f *FakeChip) Duty() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.duties) == 0 {
		return 0
	}
	return f.duties[len(f.duties)-1]
}

// Frequency returns the current frequency.
func (f *FakeChip) Frequency() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeChip) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
