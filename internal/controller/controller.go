// Package controller runs the minute-aligned control loop: sample the
// sensors, decide, drive the actuators, and log the tick.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/sweeney/greenhouse/internal/control"
	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/mqtt"
	"github.com/sweeney/greenhouse/internal/pwm"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/state"
	"github.com/sweeney/greenhouse/internal/status"
)

// Columns are the CSV log columns, in row order.
var Columns = []string{
	"timestamp",
	"cpu_celsius",
	"air_celsius",
	"humidity_percent",
	"pressure_kpa",
	"water_level_1",
	"water_level_2",
	"pump_1",
	"pump_2",
	"fan_relay",
	"fan_duty_percent",
	"fan_1_rpm",
	"fan_2_rpm",
	"conductivity_1",
	"conductivity_2",
}

// Sink receives one CSV row per tick.
type Sink interface {
	AppendRow(values ...string) error
}

// Observer receives every tick outcome, e.g. Prometheus gauges.
type Observer interface {
	Observe(rec status.Record)
	TickFailed()
}

// Config wires the controller to its devices and consumers.
// Tracker, Metrics and Publisher are optional.
type Config struct {
	Sensors  sensor.Source
	Outputs  gpio.LineGroup
	Pumps    [state.Pumps]int
	FanRelay int
	Fan      pwm.Chip
	State    *state.Shared
	Sink     Sink

	Tracker   *status.Tracker
	Metrics   Observer
	Publisher mqtt.Publisher

	Policy         control.Policy
	AverageSamples int
	// Interval is the tick period; ticks land on multiples of it.
	Interval time.Duration
}

// Controller owns the rolling average and the actuator outputs.
type Controller struct {
	cfg     Config
	average *control.RollingAverage
	night   bool

	shutdowns atomic.Int32

	// Now returns the current time. Tests override it.
	Now func() time.Time
}

// New validates cfg and returns a Controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Sensors == nil:
		return nil, errors.New("controller: no sensor source")
	case cfg.Outputs == nil:
		return nil, errors.New("controller: no output lines")
	case cfg.Fan == nil:
		return nil, errors.New("controller: no fan pwm")
	case cfg.State == nil:
		return nil, errors.New("controller: no shared state")
	case cfg.Sink == nil:
		return nil, errors.New("controller: no csv sink")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	if cfg.AverageSamples <= 0 {
		cfg.AverageSamples = control.DefaultAverageSamples
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Controller{
		cfg:     cfg,
		average: control.NewRollingAverage(cfg.AverageSamples),
		Now:     time.Now,
	}, nil
}

// Run ticks at every interval boundary until ctx is cancelled or a tick
// fails. Whatever the exit, the actuators are switched off before Run
// returns.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		if serr := c.Shutdown(); serr != nil {
			err = multierr.Append(err, serr)
		}
	}()

	for {
		t, ok := c.waitBoundary(ctx)
		if !ok {
			return nil
		}
		if err := c.Tick(t); err != nil {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.TickFailed()
			}
			return err
		}
	}
}

// waitBoundary sleeps until the next multiple of the interval and returns
// it, or returns false if ctx is cancelled first.
func (c *Controller) waitBoundary(ctx context.Context) (time.Time, bool) {
	now := c.Now()
	next := now.Truncate(c.cfg.Interval).Add(c.cfg.Interval)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return time.Time{}, false
	case <-timer.C:
		return next, true
	}
}

// Tick runs one control cycle as of t.
func (c *Controller) Tick(t time.Time) error {
	readings, err := c.cfg.Sensors.Read()
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}

	c.average.Add(readings.AirCelsius)
	smoothed, err := c.average.Value()
	if err != nil {
		return err
	}

	cmd := c.cfg.Policy.Decide(t, smoothed)
	if cmd.Night != c.night {
		c.night = cmd.Night
		log.Infof("controller: night mode %s", state.OnOff(cmd.Night))
	}
	if err := c.apply(cmd); err != nil {
		return err
	}

	rec := status.Record{
		Time:            t,
		Readings:        readings,
		SmoothedCelsius: smoothed,
		WaterLevel:      c.cfg.State.WaterLevels(),
		FanRPM:          c.cfg.State.FanRPM(),
		Command:         cmd,
	}
	log.WithFields(log.Fields{
		"air":      readings.AirCelsius,
		"smoothed": smoothed,
		"pumps":    cmd.Pump,
		"relay":    cmd.FanRelay,
		"duty":     cmd.DutyPercent,
		"rpm":      rec.FanRPM,
	}).Debug("controller: tick")

	if err := c.cfg.Sink.AppendRow(Row(rec)...); err != nil {
		return fmt.Errorf("append csv row: %w", err)
	}

	if c.cfg.Tracker != nil {
		c.cfg.Tracker.Record(rec)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Observe(rec)
	}
	if c.cfg.Publisher != nil {
		if err := c.cfg.Publisher.PublishTelemetry(rec); err != nil {
			log.WithError(err).Warn("controller: telemetry publish failed")
		}
		if cs, ok := c.cfg.Publisher.(mqtt.ConnectionStatus); ok && c.cfg.Tracker != nil {
			c.cfg.Tracker.SetMQTTConnected(cs.IsConnected())
		}
	}
	return nil
}

// apply drives the relays and the fan PWM, then mirrors the command into
// the shared state. Every output is attempted even if an earlier one fails.
func (c *Controller) apply(cmd control.Command) error {
	err := c.cfg.Outputs.WriteValues([]gpio.LineValue{
		{Offset: c.cfg.Pumps[0], Value: cmd.Pump[0]},
		{Offset: c.cfg.Pumps[1], Value: cmd.Pump[1]},
		{Offset: c.cfg.FanRelay, Value: cmd.FanRelay},
	})
	if err != nil {
		err = fmt.Errorf("write relays: %w", err)
	}
	if derr := c.cfg.Fan.SetDutyPercent(cmd.DutyPercent); derr != nil {
		err = multierr.Append(err, fmt.Errorf("set fan duty: %w", derr))
	}
	c.cfg.State.SetActuators(state.Actuators{
		Pump:        cmd.Pump,
		FanRelay:    cmd.FanRelay,
		DutyPercent: cmd.DutyPercent,
	})
	return err
}

// Shutdown switches every pump and fan off. It is safe to call more than
// once; each call drives the same final state.
func (c *Controller) Shutdown() error {
	c.shutdowns.Add(1)
	if err := c.apply(control.Off); err != nil {
		log.WithError(err).Error("controller: actuator shutdown incomplete")
		return err
	}
	log.Info("controller: actuators off")
	return nil
}

// Shutdowns returns how many times Shutdown has run.
func (c *Controller) Shutdowns() int {
	return int(c.shutdowns.Load())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Row renders a tick as CSV values in Columns order.
func Row(rec status.Record) []string {
	r := rec.Readings
	return []string{
		rec.Time.Format(time.RFC3339),
		formatFloat(r.CPUCelsius),
		formatFloat(r.AirCelsius),
		formatFloat(r.HumidityPercent),
		formatFloat(r.PressureKPa),
		state.Level(rec.WaterLevel[0]),
		state.Level(rec.WaterLevel[1]),
		state.OnOff(rec.Command.Pump[0]),
		state.OnOff(rec.Command.Pump[1]),
		state.OnOff(rec.Command.FanRelay),
		formatFloat(rec.Command.DutyPercent),
		strconv.Itoa(int(rec.FanRPM[0])),
		strconv.Itoa(int(rec.FanRPM[1])),
		formatFloat(r.Conductivity[0]),
		formatFloat(r.Conductivity[1]),
	}
}
