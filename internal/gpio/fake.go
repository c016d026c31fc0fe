package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeLineGroup is a test double with scripted input values and events.
// It is safe for concurrent use: tests push events from one goroutine while
// a monitor polls from another.
type FakeLineGroup struct {
	// ReadError, if set, will be returned by ReadValues.
	ReadError error
	// WriteError, if set, will be returned by WriteValues.
	WriteError error
	// EventError, if set, will be returned by ReadEvent once an event is queued.
	EventError error

	mu      sync.Mutex
	offsets []int
	index   map[int]int
	values  []bool
	queue   []Event
	writes  [][]LineValue
	polls   int
	closed  bool
	notify  chan struct{}
}

// NewFakeLineGroup creates a FakeLineGroup for the given offsets, all low.
func NewFakeLineGroup(offsets ...int) *FakeLineGroup {
	return &FakeLineGroup{
		offsets: append([]int(nil), offsets...),
		index:   indexOf(offsets),
		values:  make([]bool, len(offsets)),
		notify:  make(chan struct{}, 1),
	}
}

// Set changes the value ReadValues reports for offset.
func (f *FakeLineGroup) Set(offset int, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx, ok := f.index[offset]; ok {
		f.values[idx] = value
	}
}

// Value returns the current value of offset (last written, for outputs).
func (f *FakeLineGroup) Value(offset int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.index[offset]
	return ok && f.values[idx]
}

// Push queues edge events for ReadEvent.
func (f *FakeLineGroup) Push(events ...Event) {
	f.mu.Lock()
	f.queue = append(f.queue, events...)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (f *FakeLineGroup) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Writes returns a copy of every WriteValues call in order.
func (f *FakeLineGroup) Writes() [][]LineValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]LineValue, len(f.writes))
	for i, w := range f.writes {
		out[i] = append([]LineValue(nil), w...)
	}
	return out
}

// Polls returns the number of Poll calls made so far.
func (f *FakeLineGroup) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Closed reports whether Close was called.
func (f *FakeLineGroup) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ReadValues fills in scripted values.
func (f *FakeLineGroup) ReadValues(values []LineValue) error {
	if f.ReadError != nil {
		return f.ReadError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range values {
		idx, ok := f.index[values[i].Offset]
		if !ok {
			return fmt.Errorf("read offset %d: %w", values[i].Offset, ErrUnknownOffset)
		}
		values[i].Value = f.values[idx]
	}
	return nil
}

// WriteValues records the write and updates the line values.
func (f *FakeLineGroup) WriteValues(values []LineValue) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		idx, ok := f.index[v.Offset]
		if !ok {
			return fmt.Errorf("write offset %d: %w", v.Offset, ErrUnknownOffset)
		}
		f.values[idx] = v.Value
	}
	f.writes = append(f.writes, append([]LineValue(nil), values...))
	return nil
}

// Poll reports whether an event is queued, waiting up to timeout for one.
func (f *FakeLineGroup) Poll(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	f.polls++
	ready := len(f.queue) > 0
	f.mu.Unlock()
	if ready {
		return true, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-f.notify:
			// A stale notification may remain from events already drained.
			if f.Pending() > 0 {
				return true, nil
			}
		case <-t.C:
			return f.Pending() > 0, nil
		}
	}
}

// ReadEvent pops the next queued event.
func (f *FakeLineGroup) ReadEvent() (Event, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return Event{}, false, nil
	}
	if f.EventError != nil {
		return Event{}, false, f.EventError
	}
	ev := f.queue[0]
	f.queue = f.queue[1:]
	return ev, true, nil
}

// Close marks the group as closed.
func (f *FakeLineGroup) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
