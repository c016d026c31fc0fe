package sensor

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// DefaultBMXX80Address is the BME280 address with SDO tied low.
const DefaultBMXX80Address = 0x76

// BMXX80Air reads a BME280 directly over I²C, for boards without the
// kernel IIO driver loaded.
type BMXX80Air struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// NewBMXX80Air opens the I²C bus (empty for the first one) and probes the sensor.
func NewBMXX80Air(bus string, addr uint16) (*BMXX80Air, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	dev, err := bmxx80.NewI2C(b, addr, &bmxx80.DefaultOpts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("probe bme280 at %#x: %w", addr, err)
	}
	return &BMXX80Air{bus: b, dev: dev}, nil
}

// Sense takes one forced measurement.
func (a *BMXX80Air) Sense() (Air, error) {
	var e physic.Env
	if err := a.dev.Sense(&e); err != nil {
		return Air{}, err
	}
	return envToAir(e), nil
}

// Close halts the sensor and releases the bus.
func (a *BMXX80Air) Close() error {
	return multierr.Combine(a.dev.Halt(), a.bus.Close())
}

func envToAir(e physic.Env) Air {
	return Air{
		Celsius:         e.Temperature.Celsius(),
		HumidityPercent: float64(e.Humidity) / float64(physic.PercentRH),
		PressureKPa:     float64(e.Pressure) / float64(physic.KiloPascal),
	}
}
