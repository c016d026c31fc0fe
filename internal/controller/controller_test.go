package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse/internal/control"
	"github.com/sweeney/greenhouse/internal/csvlog"
	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/mqtt"
	"github.com/sweeney/greenhouse/internal/pwm"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/state"
	"github.com/sweeney/greenhouse/internal/status"
)

type memSink struct {
	mu   sync.Mutex
	rows [][]string
	err  error
}

func (s *memSink) AppendRow(values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, values)
	return nil
}

func (s *memSink) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.rows...)
}

type countingObserver struct {
	mu       sync.Mutex
	observed int
	failed   int
}

func (o *countingObserver) Observe(status.Record) {
	o.mu.Lock()
	o.observed++
	o.mu.Unlock()
}

func (o *countingObserver) TickFailed() {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

type rig struct {
	ctrl      *Controller
	sensors   *sensor.FakeSource
	lines     *gpio.FakeLineGroup
	fan       *pwm.FakeChip
	state     *state.Shared
	sink      *memSink
	tracker   *status.Tracker
	metrics   *countingObserver
	publisher *mqtt.FakePublisher
}

func newRig(t *testing.T, air float64) *rig {
	t.Helper()
	r := &rig{
		sensors:   sensor.NewFakeSource(sensor.Readings{CPUCelsius: 45, AirCelsius: air, HumidityPercent: 60, PressureKPa: 101.3, Conductivity: [2]float64{110, 95.5}}),
		lines:     gpio.NewFakeLineGroup(13, 16, 19),
		fan:       pwm.NewFakeChip(pwm.FanFrequency),
		state:     state.New(),
		sink:      &memSink{},
		tracker:   status.NewTracker(time.Now(), status.Config{}),
		metrics:   &countingObserver{},
		publisher: mqtt.NewFakePublisher(),
	}
	ctrl, err := New(Config{
		Sensors:   r.sensors,
		Outputs:   r.lines,
		Pumps:     [2]int{gpio.DefaultPump1Relay, gpio.DefaultPump2Relay},
		FanRelay:  gpio.DefaultFanRelay,
		Fan:       r.fan,
		State:     r.state,
		Sink:      r.sink,
		Tracker:   r.tracker,
		Metrics:   r.metrics,
		Publisher: r.publisher,
		Policy:    control.DefaultPolicy(),
	})
	require.NoError(t, err)
	r.ctrl = ctrl
	return r
}

func noon(minute int) time.Time {
	return time.Date(2026, 6, 1, 12, minute, 0, 0, time.Local)
}

func TestTickEndToEnd(t *testing.T) {
	r := newRig(t, 30)
	require.NoError(t, r.state.SetWaterLevel(0, true))
	require.NoError(t, r.state.SetFanRPM(1, 1440))

	require.NoError(t, r.ctrl.Tick(noon(0)))

	assert.True(t, r.lines.Value(13), "pump 1")
	assert.False(t, r.lines.Value(16), "pump 2")
	assert.True(t, r.lines.Value(19), "fan relay")
	assert.Equal(t, 50.0, r.fan.Duty())

	assert.Equal(t, state.Actuators{Pump: [2]bool{true, false}, FanRelay: true, DutyPercent: 50}, r.state.Actuators())

	rows := r.sink.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	require.Len(t, row, len(Columns))
	assert.Equal(t, noon(0).Format(time.RFC3339), row[0])
	assert.Equal(t, []string{"30.00", "60.00", "101.30", "high", "low", "on", "off", "on", "50.00", "0", "1440", "110.00", "95.50"}, row[2:])

	snap := r.tracker.Snapshot()
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.Equal(t, 30.0, snap.Last.SmoothedCelsius)
	assert.Equal(t, 1, r.metrics.observed)
	assert.Equal(t, 1, r.publisher.RecordCount())
}

func TestTickPump2(t *testing.T) {
	r := newRig(t, 15)
	require.NoError(t, r.ctrl.Tick(noon(25)))

	assert.False(t, r.lines.Value(13))
	assert.True(t, r.lines.Value(16))
	assert.False(t, r.lines.Value(19), "fan relay off below threshold")
	assert.Equal(t, 0.0, r.fan.Duty())
}

func TestTickNightOverride(t *testing.T) {
	r := newRig(t, 45)
	at := time.Date(2026, 6, 1, 23, 0, 0, 0, time.Local)

	require.NoError(t, r.ctrl.Tick(at))

	assert.Equal(t, state.Actuators{}, r.state.Actuators())
	assert.Equal(t, 0.0, r.fan.Duty())
	assert.True(t, r.tracker.Snapshot().Last.Command.Night)
	row := r.sink.Rows()[0]
	assert.Equal(t, []string{"off", "off", "off", "0.00"}, row[7:11])
}

func TestTickSmoothsAirTemperature(t *testing.T) {
	r := newRig(t, 10)
	require.NoError(t, r.ctrl.Tick(noon(1)))
	r.sensors.Set(sensor.Readings{AirCelsius: 20})
	require.NoError(t, r.ctrl.Tick(noon(2)))
	r.sensors.Set(sensor.Readings{AirCelsius: 60})
	require.NoError(t, r.ctrl.Tick(noon(3)))

	// Smoothed is 30 even though the raw reading is 60.
	snap := r.tracker.Snapshot()
	assert.Equal(t, 30.0, snap.Last.SmoothedCelsius)
	assert.Equal(t, 60.0, snap.Last.Readings.AirCelsius)
	assert.Equal(t, 50.0, r.fan.Duty())
}

func TestTickPublishErrorIsNotFatal(t *testing.T) {
	r := newRig(t, 25)
	r.publisher.PublishError = errors.New("broker down")

	require.NoError(t, r.ctrl.Tick(noon(3)))
	assert.Len(t, r.sink.Rows(), 1)
}

func TestTickSinkErrorIsFatal(t *testing.T) {
	r := newRig(t, 25)
	r.sink.err = csvlog.ErrNotOpen

	err := r.ctrl.Tick(noon(3))
	assert.ErrorIs(t, err, csvlog.ErrNotOpen)
}

func TestTickWritesCSVFile(t *testing.T) {
	r := newRig(t, 30)
	sink := csvlog.New(Columns...)
	defer sink.Close()
	path := filepath.Join(t.TempDir(), "greenhouse.csv")
	require.NoError(t, sink.Initialize(path))
	r.ctrl.cfg.Sink = sink

	require.NoError(t, r.ctrl.Tick(noon(0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.Contains(t, lines[1], ",on,off,on,50.00,")
}

func TestShutdownIdempotent(t *testing.T) {
	r := newRig(t, 35)
	require.NoError(t, r.ctrl.Tick(noon(0)))

	require.NoError(t, r.ctrl.Shutdown())
	first := r.lines.Writes()[1]
	firstState := r.state.Actuators()

	require.NoError(t, r.ctrl.Shutdown())
	second := r.lines.Writes()[2]

	assert.Equal(t, first, second)
	assert.Equal(t, firstState, r.state.Actuators())
	assert.Equal(t, state.Actuators{}, firstState)
	assert.Equal(t, []float64{75, 0, 0}, r.fan.Duties())
	assert.Equal(t, 2, r.ctrl.Shutdowns())
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, 30)
	r.ctrl.cfg.Interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.sink.Rows()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Run did not stop within 200ms")
	}
	assert.Equal(t, 1, r.ctrl.Shutdowns())
	assert.Equal(t, state.Actuators{}, r.state.Actuators())
	assert.False(t, r.lines.Value(13) || r.lines.Value(16) || r.lines.Value(19))
}

func TestRunAlignsToInterval(t *testing.T) {
	r := newRig(t, 30)
	r.ctrl.cfg.Interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.ctrl.Run(ctx)

	require.Eventually(t, func() bool { return r.tracker.Snapshot().Ticks >= 1 }, 2*time.Second, 5*time.Millisecond)
	tick := r.tracker.Snapshot().Last.Time
	assert.Equal(t, tick, tick.Truncate(50*time.Millisecond))
}

func TestRunShutsDownAfterSensorError(t *testing.T) {
	r := newRig(t, 30)
	r.ctrl.cfg.Interval = 10 * time.Millisecond
	r.sensors.ReadError = errors.New("i2c timeout")

	err := r.ctrl.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i2c timeout")
	assert.Equal(t, 1, r.ctrl.Shutdowns())
	assert.Equal(t, 1, r.metrics.failed)
	assert.Equal(t, []float64{0}, r.fan.Duties())
}

func TestRunReportsShutdownFailure(t *testing.T) {
	r := newRig(t, 30)
	r.lines.WriteError = errors.New("line released")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.ctrl.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line released")
	// The fan is still driven to zero even though the relays failed.
	assert.Equal(t, []float64{0}, r.fan.Duties())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	r := newRig(t, 20)
	cfg := r.ctrl.cfg
	cfg.Policy.IrrigationPeriod = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestRow(t *testing.T) {
	rec := status.Record{
		Time:       time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		Readings:   sensor.Readings{CPUCelsius: 41.234, AirCelsius: -2.5},
		WaterLevel: [2]bool{false, true},
		FanRPM:     [2]uint16{65535, 0},
		Command:    control.Command{Pump: [2]bool{false, true}, DutyPercent: 12.3456},
	}
	assert.Equal(t, []string{
		"2026-01-02T03:04:00Z", "41.23", "-2.50", "0.00", "0.00",
		"low", "high", "off", "on", "off", "12.35", "65535", "0", "0.00", "0.00",
	}, Row(rec))
}
