//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealLineGroup drives a group of lines through the Linux GPIO character device.
//
// gpiocdev delivers edge events to a handler on its own goroutine; the handler
// forwards them into a bounded queue that Poll and ReadEvent consume. Only one
// goroutine may call Poll/ReadEvent.
type RealLineGroup struct {
	lines     *gpiocdev.Lines
	offsets   []int
	index     map[int]int
	direction Direction
	out       []int

	events  chan Event
	pending []Event
	dropped atomic.Uint64
}

// NewRealLineGroup requests the lines described by cfg.
// Output lines start inactive.
func NewRealLineGroup(cfg Config) (*RealLineGroup, error) {
	if len(cfg.Offsets) == 0 {
		return nil, errors.New("gpio: no offsets requested")
	}
	g := &RealLineGroup{
		offsets:   append([]int(nil), cfg.Offsets...),
		index:     indexOf(cfg.Offsets),
		direction: cfg.Direction,
	}

	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "greenhouse"
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(consumer)}

	if cfg.Direction == Output {
		g.out = make([]int, len(cfg.Offsets))
		opts = append(opts, gpiocdev.AsOutput(g.out...))
	} else {
		opts = append(opts, gpiocdev.AsInput)
	}

	if cfg.Edges != NoEdges {
		size := cfg.EventBuffer
		if size <= 0 {
			size = defaultEventBuffer
		}
		g.events = make(chan Event, size)
		switch cfg.Edges {
		case RisingEdges:
			opts = append(opts, gpiocdev.WithRisingEdge)
		case BothEdges:
			opts = append(opts, gpiocdev.WithBothEdges)
		}
		opts = append(opts,
			gpiocdev.WithEventBufferSize(size),
			gpiocdev.WithEventHandler(g.handle))
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}

	lines, err := gpiocdev.RequestLines(cfg.Chip, cfg.Offsets, opts...)
	if err != nil {
		return nil, fmt.Errorf("request lines %v on %s: %w", cfg.Offsets, cfg.Chip, err)
	}
	g.lines = lines
	return g, nil
}

func (g *RealLineGroup) handle(evt gpiocdev.LineEvent) {
	ev := Event{
		Offset:    evt.Offset,
		Edge:      EdgeFalling,
		Seqno:     evt.LineSeqno,
		Timestamp: evt.Timestamp,
	}
	if evt.Type == gpiocdev.LineEventRisingEdge {
		ev.Edge = EdgeRising
	}
	select {
	case g.events <- ev:
	default:
		g.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (g *RealLineGroup) Dropped() uint64 {
	return g.dropped.Load()
}

// ReadValues fills in the current value of each requested offset.
func (g *RealLineGroup) ReadValues(values []LineValue) error {
	raw := make([]int, len(g.offsets))
	if err := g.lines.Values(raw); err != nil {
		return fmt.Errorf("read values: %w", err)
	}
	for i := range values {
		idx, ok := g.index[values[i].Offset]
		if !ok {
			return fmt.Errorf("read offset %d: %w", values[i].Offset, ErrUnknownOffset)
		}
		values[i].Value = raw[idx] != 0
	}
	return nil
}

// WriteValues drives the given offsets; offsets not mentioned keep their last value.
func (g *RealLineGroup) WriteValues(values []LineValue) error {
	if g.direction != Output {
		return errors.New("gpio: write to input line group")
	}
	next := append([]int(nil), g.out...)
	for _, v := range values {
		idx, ok := g.index[v.Offset]
		if !ok {
			return fmt.Errorf("write offset %d: %w", v.Offset, ErrUnknownOffset)
		}
		next[idx] = 0
		if v.Value {
			next[idx] = 1
		}
	}
	if err := g.lines.SetValues(next); err != nil {
		return fmt.Errorf("write values: %w", err)
	}
	g.out = next
	return nil
}

// Poll waits up to timeout for an edge event to be queued.
func (g *RealLineGroup) Poll(timeout time.Duration) (bool, error) {
	if g.events == nil {
		return false, errors.New("gpio: line group has no edge detection")
	}
	if len(g.pending) > 0 || len(g.events) > 0 {
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-g.events:
		g.pending = append(g.pending, ev)
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// ReadEvent returns the next queued event without blocking.
func (g *RealLineGroup) ReadEvent() (Event, bool, error) {
	if len(g.pending) > 0 {
		ev := g.pending[0]
		g.pending = g.pending[1:]
		return ev, true, nil
	}
	select {
	case ev := <-g.events:
		return ev, true, nil
	default:
		return Event{}, false, nil
	}
}

// Close releases the lines.
// Output lines are driven low and reconfigured as inputs first so relays are
// left de-energised across a restart or reboot.
func (g *RealLineGroup) Close() error {
	if g.lines == nil {
		return nil
	}
	var err error
	if g.direction == Output {
		err = multierr.Append(err, g.lines.SetValues(make([]int, len(g.offsets))))
		err = multierr.Append(err, g.lines.Reconfigure(gpiocdev.AsInput))
	}
	err = multierr.Append(err, g.lines.Close())
	g.lines = nil
	if err != nil {
		return fmt.Errorf("close lines %v: %w", g.offsets, err)
	}
	return nil
}
