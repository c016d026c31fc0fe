package main

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/sweeney/greenhouse/internal/config"
	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/pwm"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/sysfs"
)

// hardware holds every device the daemon opens. Fields are nil until opened.
type hardware struct {
	water   gpio.LineGroup
	outputs gpio.LineGroup
	tach    gpio.LineGroup
	fan     pwm.Chip
	sensors sensor.Source
}

// openHardware requests all lines and opens the fan PWM and sensors.
// On error everything already opened is closed again.
func openHardware(cfg config.Config) (hw *hardware, err error) {
	gpioChip, pwmChip := cfg.Chips()
	hw = &hardware{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, hw.Close())
			hw = nil
		}
	}()

	water, err := openWaterLevel(cfg, gpio.BothEdges)
	if err != nil {
		return hw, err
	}
	hw.water = water

	outputs, err := gpio.NewRealLineGroup(gpio.Config{
		Chip:      gpioChip,
		Consumer:  "greenhouse-relays",
		Offsets:   []int{cfg.Pins.Pumps[0], cfg.Pins.Pumps[1], cfg.Pins.FanRelay},
		Direction: gpio.Output,
	})
	if err != nil {
		return hw, err
	}
	hw.outputs = outputs

	tach, err := gpio.NewRealLineGroup(gpio.Config{
		Chip:     gpioChip,
		Consumer: "greenhouse-tach",
		Offsets:  cfg.Pins.Tach[:],
		Edges:    gpio.RisingEdges,
		Debounce: cfg.TachDebounce,
	})
	if err != nil {
		return hw, err
	}
	hw.tach = tach

	fan, err := pwm.NewSysfsChip(pwmChip, cfg.PWMChannel, cfg.PWMFrequency, 0)
	if err != nil {
		return hw, fmt.Errorf("fan pwm: %w", err)
	}
	hw.fan = fan

	if hw.sensors, err = openSensors(cfg.Sensors); err != nil {
		return hw, err
	}
	return hw, nil
}

func openWaterLevel(cfg config.Config, edges gpio.EdgeDetection) (*gpio.RealLineGroup, error) {
	gpioChip, _ := cfg.Chips()
	return gpio.NewRealLineGroup(gpio.Config{
		Chip:     gpioChip,
		Consumer: "greenhouse-water",
		Offsets:  cfg.Pins.WaterLevel[:],
		Edges:    edges,
		Debounce: cfg.WaterDebounce,
	})
}

func openSensors(s config.Sensors) (sensor.Source, error) {
	var air sensor.AirSensor
	switch s.Air {
	case config.AirI2C:
		a, err := sensor.NewBMXX80Air(s.I2CBus, s.I2CAddress)
		if err != nil {
			return nil, err
		}
		air = a
	default:
		dir, err := sysfs.FindIIODevice(s.IIORoot, s.AirDevice)
		if err != nil {
			return nil, fmt.Errorf("air sensor: %w", err)
		}
		a, err := sensor.NewIIOAir(dir)
		if err != nil {
			return nil, err
		}
		air = a
	}

	adc, err := sysfs.FindIIODevice(s.IIORoot, s.ADCDevice)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("conductivity adc: %w", err), air.Close())
	}
	src, err := sensor.NewSysfsSource(sensor.SysfsConfig{
		CPUTemperature:    s.CPUTemperature,
		ADCDir:            adc,
		ConductivityScale: s.ECScale,
	}, air)
	if err != nil {
		return nil, multierr.Append(err, air.Close())
	}
	return src, nil
}

// Close releases everything that was opened. Relays are released last so
// the controller's final write has landed.
func (hw *hardware) Close() error {
	var err error
	if hw.sensors != nil {
		err = multierr.Append(err, hw.sensors.Close())
	}
	if hw.fan != nil {
		err = multierr.Append(err, hw.fan.Close())
	}
	if hw.tach != nil {
		err = multierr.Append(err, hw.tach.Close())
	}
	if hw.water != nil {
		err = multierr.Append(err, hw.water.Close())
	}
	if hw.outputs != nil {
		err = multierr.Append(err, hw.outputs.Close())
	}
	return err
}

// readWaterLevels samples both water level sensors once.
func readWaterLevels(cfg config.Config) ([2]bool, error) {
	var levels [2]bool
	lines, err := openWaterLevel(cfg, gpio.NoEdges)
	if err != nil {
		return levels, err
	}
	defer lines.Close()

	vals := []gpio.LineValue{{Offset: cfg.Pins.WaterLevel[0]}, {Offset: cfg.Pins.WaterLevel[1]}}
	if err := lines.ReadValues(vals); err != nil {
		return levels, err
	}
	levels[0], levels[1] = vals[0].Value, vals[1].Value
	return levels, nil
}
