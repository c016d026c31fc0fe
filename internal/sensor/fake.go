package sensor

import "sync"

// FakeSource returns scripted readings.
type FakeSource struct {
	// ReadError, if set, will be returned by Read.
	ReadError error

	mu       sync.Mutex
	readings Readings
	reads    int
	closed   bool
}

// NewFakeSource creates a FakeSource that always returns r.
func NewFakeSource(r Readings) *FakeSource {
	return &FakeSource{readings: r}
}

// Set replaces the readings returned from now on.
func (f *FakeSource) Set(r Readings) {
	f.mu.Lock()
	f.readings = r
	f.mu.Unlock()
}

// Read returns the scripted readings.
func (f *FakeSource) Read() (Readings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadError != nil {
		return Readings{}, f.ReadError
	}
	return f.readings, nil
}

// Reads returns the number of Read calls.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
