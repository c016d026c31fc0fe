package monitor

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/state"
)

// WaterLevel tracks the float switches. A rising edge means the water has
// reached the sensor.
type WaterLevel struct {
	lines   gpio.LineGroup
	offsets []int
	state   *state.Shared

	// PollTimeout overrides the default poll timeout. Tests shorten it.
	PollTimeout time.Duration
}

// NewWaterLevel creates a monitor for the sensors on offsets. Sensor k is the
// line at offsets[0]+k.
func NewWaterLevel(lines gpio.LineGroup, offsets []int, st *state.Shared) *WaterLevel {
	return &WaterLevel{
		lines:   lines,
		offsets: append([]int(nil), offsets...),
		state:   st,
	}
}

// Run seeds the shared state from the current line values and then follows
// edge events until ctx is cancelled. It returns nil on cancellation.
func (w *WaterLevel) Run(ctx context.Context) error {
	if err := w.seed(); err != nil {
		return err
	}
	return pollLoop(ctx, w.lines, w.PollTimeout, w.drain, nil)
}

func (w *WaterLevel) seed() error {
	values := make([]gpio.LineValue, len(w.offsets))
	for i, off := range w.offsets {
		values[i].Offset = off
	}
	if err := w.lines.ReadValues(values); err != nil {
		return fmt.Errorf("seed water levels: %w", err)
	}
	for _, v := range values {
		if err := w.state.SetWaterLevel(v.Offset-w.offsets[0], v.Value); err != nil {
			return fmt.Errorf("seed water level %d: %w", v.Offset, err)
		}
	}
	log.Debugf("water level: seeded %v", w.state.WaterLevels())
	return nil
}

func (w *WaterLevel) drain(ctx context.Context) error {
	return drainEvents(ctx, w.lines, w.handle)
}

func (w *WaterLevel) handle(ev gpio.Event) error {
	idx := ev.Offset - w.offsets[0]
	high := ev.Edge == gpio.EdgeRising
	if err := w.state.SetWaterLevel(idx, high); err != nil {
		return fmt.Errorf("water level event on line %d: %w", ev.Offset, err)
	}
	log.WithFields(log.Fields{
		"sensor": idx + 1,
		"line":   ev.Offset,
	}).Infof("water level: %s", state.Level(high))
	return nil
}
