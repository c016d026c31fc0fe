// Package state holds the values shared between the monitors and the
// control loop. Every field is a single atomic scalar with one writer;
// readers may observe a value one sample stale, which is fine at the
// physical time scale of the greenhouse.
package state

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

const (
	WaterLevelSensors = 2
	Fans              = 2
	Pumps             = 2
)

// ErrIndexOutOfRange is returned when a sensor or fan index is invalid.
var ErrIndexOutOfRange = errors.New("state: index out of range")

// Shared is created once at startup and passed to every task.
type Shared struct {
	// Written by the water-level monitor.
	waterLevel [WaterLevelSensors]atomic.Bool
	// Written by the tachometer monitor.
	fanRPM [Fans]atomic.Uint32

	// Written by the control loop; mirrored for the status page.
	pump     [Pumps]atomic.Bool
	fanRelay atomic.Bool
	fanDuty  atomic.Uint64
}

// New returns a zeroed Shared.
func New() *Shared {
	return &Shared{}
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("index %d not in [0,%d): %w", i, n, ErrIndexOutOfRange)
	}
	return nil
}

// SetWaterLevel records whether sensor i reads high.
func (s *Shared) SetWaterLevel(i int, high bool) error {
	if err := checkIndex(i, WaterLevelSensors); err != nil {
		return err
	}
	s.waterLevel[i].Store(high)
	return nil
}

// WaterLevels returns every sensor's last known level.
func (s *Shared) WaterLevels() [WaterLevelSensors]bool {
	var out [WaterLevelSensors]bool
	for i := range out {
		out[i] = s.waterLevel[i].Load()
	}
	return out
}

// SetFanRPM publishes the measured speed of fan i.
func (s *Shared) SetFanRPM(i int, rpm uint16) error {
	if err := checkIndex(i, Fans); err != nil {
		return err
	}
	s.fanRPM[i].Store(uint32(rpm))
	return nil
}

// ResetFanRPM zeroes every fan speed.
func (s *Shared) ResetFanRPM() {
	for i := range s.fanRPM {
		s.fanRPM[i].Store(0)
	}
}

// FanRPM returns every fan's last measured speed.
func (s *Shared) FanRPM() [Fans]uint16 {
	var out [Fans]uint16
	for i := range out {
		out[i] = uint16(s.fanRPM[i].Load())
	}
	return out
}

// Actuators is the commanded actuator state.
type Actuators struct {
	Pump        [Pumps]bool
	FanRelay    bool
	DutyPercent float64
}

// SetActuators mirrors the commanded actuator state.
func (s *Shared) SetActuators(a Actuators) {
	for i := range a.Pump {
		s.pump[i].Store(a.Pump[i])
	}
	s.fanRelay.Store(a.FanRelay)
	s.fanDuty.Store(math.Float64bits(a.DutyPercent))
}

// Actuators returns the last commanded actuator state.
func (s *Shared) Actuators() Actuators {
	var a Actuators
	for i := range a.Pump {
		a.Pump[i] = s.pump[i].Load()
	}
	a.FanRelay = s.fanRelay.Load()
	a.DutyPercent = math.Float64frombits(s.fanDuty.Load())
	return a
}

// Level renders a water-level flag as it appears in logs and the CSV.
func Level(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

// OnOff renders an actuator flag as it appears in logs and the CSV.
func OnOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
