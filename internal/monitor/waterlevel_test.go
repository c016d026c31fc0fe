package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/state"
)

func startWaterLevel(t *testing.T, lines *gpio.FakeLineGroup, st *state.Shared) (context.CancelFunc, <-chan error) {
	t.Helper()
	w := NewWaterLevel(lines, []int{gpio.DefaultWaterLevel1, gpio.DefaultWaterLevel2}, st)
	w.PollTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestWaterLevelSeedsFromLines(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	lines.Set(6, true)
	st := state.New()

	cancel, done := startWaterLevel(t, lines, st)

	require.Eventually(t, func() bool { return lines.Polls() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, [2]bool{false, true}, st.WaterLevels())

	cancel()
	require.NoError(t, <-done)
}

func TestWaterLevelIndexMapping(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	st := state.New()
	_, done := startWaterLevel(t, lines, st)

	lines.Push(gpio.Event{Offset: 6, Edge: gpio.EdgeRising, Seqno: 1})
	require.Eventually(t, func() bool { return st.WaterLevels() == [2]bool{false, true} }, time.Second, time.Millisecond)

	lines.Push(
		gpio.Event{Offset: 5, Edge: gpio.EdgeRising, Seqno: 1},
		gpio.Event{Offset: 6, Edge: gpio.EdgeFalling, Seqno: 2},
	)
	require.Eventually(t, func() bool { return st.WaterLevels() == [2]bool{true, false} }, time.Second, time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("monitor exited early: %v", err)
	default:
	}
}

func TestWaterLevelDrainsWholeBatch(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	st := state.New()
	lines.Push(
		gpio.Event{Offset: 5, Edge: gpio.EdgeRising, Seqno: 1},
		gpio.Event{Offset: 5, Edge: gpio.EdgeFalling, Seqno: 2},
		gpio.Event{Offset: 5, Edge: gpio.EdgeRising, Seqno: 3},
	)
	w := NewWaterLevel(lines, []int{5, 6}, st)
	require.NoError(t, w.drain(context.Background()))

	assert.Zero(t, lines.Pending())
	assert.Equal(t, [2]bool{true, false}, st.WaterLevels())
}

func TestWaterLevelRejectsUnknownSensor(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	st := state.New()
	_, done := startWaterLevel(t, lines, st)

	lines.Push(gpio.Event{Offset: 7, Edge: gpio.EdgeRising, Seqno: 1})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, state.ErrIndexOutOfRange)
	case <-time.After(time.Second):
		t.Fatal("monitor did not fail on out-of-range sensor")
	}
}

func TestWaterLevelSeedError(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	lines.ReadError = errors.New("simulated read error")

	err := NewWaterLevel(lines, []int{5, 6}, state.New()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated read error")
}

func TestWaterLevelEventError(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	lines.EventError = errors.New("simulated event error")
	_, done := startWaterLevel(t, lines, state.New())

	lines.Push(gpio.Event{Offset: 5, Edge: gpio.EdgeRising})

	select {
	case err := <-done:
		assert.EqualError(t, err, "simulated event error")
	case <-time.After(time.Second):
		t.Fatal("monitor did not fail on event error")
	}
}

func TestWaterLevelStopsPromptly(t *testing.T) {
	lines := gpio.NewFakeLineGroup(5, 6)
	w := NewWaterLevel(lines, []int{5, 6}, state.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return lines.Polls() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * PollTimeout):
		t.Fatal("monitor did not observe cancellation within two poll intervals")
	}
}
