// Package control contains the pure actuation rules for the greenhouse.
// This package does no I/O. Time is always passed in as a time.Time.
package control

import (
	"errors"
	"fmt"
)

// AbsoluteZero is below any real reading. Feeding it to the fan rules
// forces the fan fully off.
const AbsoluteZero = -273.15

// Command is the actuator state decided for one tick.
type Command struct {
	Pump        [2]bool
	FanRelay    bool
	DutyPercent float64
	Night       bool
}

// Off is the safe state: pumps off, fan relay off, minimum duty.
var Off = Command{}

// Policy holds the calibration of the control rules.
type Policy struct {
	// Fan duty ramps linearly from 0% at FanMinCelsius to 100% at FanMaxCelsius.
	FanMinCelsius float64 `yaml:"fan_min_celsius"`
	FanMaxCelsius float64 `yaml:"fan_max_celsius"`

	// Night is hour >= NightStartHour or hour <= NightEndHour.
	NightStartHour int `yaml:"night_start_hour"`
	NightEndHour   int `yaml:"night_end_hour"`

	// Pump 1 runs for the minute where minute % IrrigationPeriod == 0,
	// pump 2 where minute % IrrigationPeriod == Pump2Offset.
	IrrigationPeriod int `yaml:"irrigation_period"`
	Pump2Offset      int `yaml:"pump2_offset"`
}

// DefaultPolicy returns the stock calibration.
func DefaultPolicy() Policy {
	return Policy{
		FanMinCelsius:    20,
		FanMaxCelsius:    40,
		NightStartHour:   22,
		NightEndHour:     8,
		IrrigationPeriod: 10,
		Pump2Offset:      5,
	}
}

// Validate rejects calibrations the rules cannot work with.
func (p Policy) Validate() error {
	if p.FanMaxCelsius <= p.FanMinCelsius {
		return fmt.Errorf("fan max %v must be above fan min %v", p.FanMaxCelsius, p.FanMinCelsius)
	}
	if p.NightStartHour < 0 || p.NightStartHour > 23 || p.NightEndHour < 0 || p.NightEndHour > 23 {
		return fmt.Errorf("night hours %d..%d out of range", p.NightStartHour, p.NightEndHour)
	}
	if p.IrrigationPeriod < 2 {
		return fmt.Errorf("irrigation period %d must be at least 2", p.IrrigationPeriod)
	}
	if p.Pump2Offset <= 0 || p.Pump2Offset >= p.IrrigationPeriod {
		return fmt.Errorf("pump 2 offset %d must be in (0,%d)", p.Pump2Offset, p.IrrigationPeriod)
	}
	return nil
}

// ErrNoSamples is returned when averaging an empty window.
var ErrNoSamples = errors.New("control: cannot average zero samples")
