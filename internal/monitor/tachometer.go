package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/state"
)

// DefaultTachWindow is the number of pulses in one RPM measurement.
const DefaultTachWindow = 10

// ErrRPMOutOfRange means a measurement did not fit in 16 bits, which only
// happens with a miscalibrated window or a broken timestamp source.
var ErrRPMOutOfRange = errors.New("monitor: rpm out of range")

// pulseWindow is the in-flight measurement for one fan.
type pulseWindow struct {
	revs    int
	start   time.Duration
	started bool
}

// Tachometer converts tach pulses into fan speeds.
//
// Each line's sequence number delimits windows: seqno%window == 1 opens a
// window, seqno%window == 0 closes it and publishes the speed. When no pulse
// arrives within one poll timeout every fan is reported as stopped.
type Tachometer struct {
	lines   gpio.LineGroup
	first   int
	window  uint32
	state   *state.Shared
	windows [state.Fans]pulseWindow

	// PollTimeout overrides the default poll timeout. Tests shorten it.
	PollTimeout time.Duration
}

// NewTachometer creates a monitor for fans whose tach lines start at
// firstOffset. window must be at least 2.
func NewTachometer(lines gpio.LineGroup, firstOffset, window int, st *state.Shared) (*Tachometer, error) {
	if window < 2 {
		return nil, fmt.Errorf("tach window %d: must be at least 2", window)
	}
	return &Tachometer{
		lines:  lines,
		first:  firstOffset,
		window: uint32(window),
		state:  st,
	}, nil
}

// Run follows tach pulses until ctx is cancelled. It returns nil on
// cancellation.
func (t *Tachometer) Run(ctx context.Context) error {
	return pollLoop(ctx, t.lines, t.PollTimeout, t.drain, t.idle)
}

func (t *Tachometer) idle() {
	t.state.ResetFanRPM()
	for i := range t.windows {
		t.windows[i].started = false
	}
}

func (t *Tachometer) drain(ctx context.Context) error {
	return drainEvents(ctx, t.lines, t.handle)
}

func (t *Tachometer) handle(ev gpio.Event) error {
	idx := ev.Offset - t.first
	if idx < 0 || idx >= len(t.windows) {
		return fmt.Errorf("tach event on line %d: %w", ev.Offset, state.ErrIndexOutOfRange)
	}
	w := &t.windows[idx]

	switch ev.Seqno % t.window {
	case 1:
		w.revs = 1
		w.start = ev.Timestamp
		w.started = true
	case 0:
		if !w.started {
			return nil
		}
		w.started = false
		rpm, err := RPM(w.revs, ev.Timestamp-w.start)
		if err != nil {
			return fmt.Errorf("fan %d: %w", idx+1, err)
		}
		log.Debugf("tach: fan %d %d rpm", idx+1, rpm)
		return t.state.SetFanRPM(idx, rpm)
	default:
		w.revs++
	}
	return nil
}

// RPM converts revs counted over elapsed into revolutions per minute.
// A non-positive elapsed time yields zero.
func RPM(revs int, elapsed time.Duration) (uint16, error) {
	if elapsed <= 0 {
		return 0, nil
	}
	rpm := float64(revs) * float64(time.Minute) / float64(elapsed)
	if rpm > math.MaxUint16 {
		return 0, fmt.Errorf("%.0f rpm: %w", rpm, ErrRPMOutOfRange)
	}
	return uint16(rpm), nil
}
