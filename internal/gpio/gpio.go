// Package gpio provides grouped GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// Edge is the direction of a line transition.
type Edge int

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	}
	return "unknown"
}

// Event is a single edge notification from a line in the group.
type Event struct {
	Offset    int
	Edge      Edge
	Seqno     uint32        // per-line sequence number, starts at 1
	Timestamp time.Duration // kernel event timestamp
}

// LineValue pairs a line offset with its logical value.
type LineValue struct {
	Offset int
	Value  bool
}

// LineGroup is a set of lines requested together with shared configuration.
type LineGroup interface {
	// ReadValues fills in Value for each requested offset.
	ReadValues(values []LineValue) error

	// WriteValues drives each offset to its Value.
	WriteValues(values []LineValue) error

	// Poll waits up to timeout for at least one queued edge event.
	Poll(timeout time.Duration) (bool, error)

	// ReadEvent returns the next queued event without blocking.
	// ok is false when the queue is empty.
	ReadEvent() (ev Event, ok bool, err error)

	// Close releases the lines.
	Close() error
}

// Direction of a requested line group.
type Direction int

const (
	Input Direction = iota
	Output
)

// EdgeDetection selects which transitions generate events.
type EdgeDetection int

const (
	NoEdges EdgeDetection = iota
	RisingEdges
	BothEdges
)

// Config describes a line group request.
type Config struct {
	Chip      string
	Consumer  string
	Offsets   []int
	Direction Direction
	Edges     EdgeDetection
	Debounce  time.Duration
	// EventBuffer is the capacity of the userspace event queue.
	EventBuffer int
}

// ErrUnknownOffset is returned when a value refers to a line not in the group.
var ErrUnknownOffset = errors.New("gpio: offset not in line group")

// Default BCM offsets.
const (
	DefaultWaterLevel1 = 5
	DefaultWaterLevel2 = 6
	DefaultPump1Relay  = 13
	DefaultPump2Relay  = 16
	DefaultFanRelay    = 19
	DefaultFan1Tach    = 22
	DefaultFan2Tach    = 23
)

const defaultEventBuffer = 64

// indexOf maps each offset to its position in offsets.
func indexOf(offsets []int) map[int]int {
	m := make(map[int]int, len(offsets))
	for i, o := range offsets {
		m[o] = i
	}
	return m
}
