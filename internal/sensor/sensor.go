// Package sensor samples the environmental sensors once per control tick.
package sensor

import (
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/sweeney/greenhouse/internal/sysfs"
)

// ConductivityProbes is the number of EC probes wired to the ADC.
const ConductivityProbes = 2

// DefaultConductivityScale divides the raw ADC reading into µS/cm.
// It is an uncalibrated bench value.
const DefaultConductivityScale = 10.0

// Readings is one synchronous sample of every sensor.
type Readings struct {
	CPUCelsius      float64
	AirCelsius      float64
	HumidityPercent float64
	PressureKPa     float64
	Conductivity    [ConductivityProbes]float64
}

// Air is a temperature/humidity/pressure sample.
type Air struct {
	Celsius         float64
	HumidityPercent float64
	PressureKPa     float64
}

// AirSensor reads the air temperature, humidity and pressure.
type AirSensor interface {
	Sense() (Air, error)
	Close() error
}

// Source produces Readings.
type Source interface {
	Read() (Readings, error)
	Close() error
}

// IIOAir reads a BME280 bound to the kernel IIO driver.
type IIOAir struct {
	temp     *sysfs.NumericFile
	humidity *sysfs.NumericFile
	pressure *sysfs.NumericFile
}

// NewIIOAir opens the processed channels of the IIO device in dir.
func NewIIOAir(dir string) (*IIOAir, error) {
	files, err := openAll(dir, "in_temp_input", "in_humidityrelative_input", "in_pressure_input")
	if err != nil {
		return nil, err
	}
	return &IIOAir{temp: files[0], humidity: files[1], pressure: files[2]}, nil
}

// Sense reads the three channels. Temperature and humidity are reported by
// the driver in milli-units, pressure in kPa.
func (a *IIOAir) Sense() (Air, error) {
	t, err := a.temp.ReadFloat()
	if err != nil {
		return Air{}, err
	}
	h, err := a.humidity.ReadFloat()
	if err != nil {
		return Air{}, err
	}
	p, err := a.pressure.ReadFloat()
	if err != nil {
		return Air{}, err
	}
	return Air{Celsius: t / 1000, HumidityPercent: h / 1000, PressureKPa: p}, nil
}

// Close closes the channel files.
func (a *IIOAir) Close() error {
	return multierr.Combine(a.temp.Close(), a.humidity.Close(), a.pressure.Close())
}

// SysfsSource combines the CPU thermal zone, an air sensor and the EC ADC.
type SysfsSource struct {
	cpu   *sysfs.NumericFile
	air   AirSensor
	ec    []*sysfs.NumericFile
	scale float64
}

// SysfsConfig locates the sensor files.
type SysfsConfig struct {
	CPUTemperature string
	// ADCDir is the IIO directory of the conductivity ADC.
	ADCDir            string
	ConductivityScale float64
}

// NewSysfsSource opens every sensor file. The source takes ownership of air.
func NewSysfsSource(cfg SysfsConfig, air AirSensor) (*SysfsSource, error) {
	if cfg.ConductivityScale <= 0 {
		return nil, fmt.Errorf("conductivity scale must be positive, got %v", cfg.ConductivityScale)
	}
	cpu, err := sysfs.Open(cfg.CPUTemperature)
	if err != nil {
		return nil, fmt.Errorf("open cpu temperature: %w", err)
	}
	names := make([]string, ConductivityProbes)
	for i := range names {
		names[i] = fmt.Sprintf("in_voltage%d_raw", i)
	}
	ec, err := openAll(cfg.ADCDir, names...)
	if err != nil {
		cpu.Close()
		return nil, err
	}
	return &SysfsSource{cpu: cpu, air: air, ec: ec, scale: cfg.ConductivityScale}, nil
}

// Read samples every sensor in turn. A slow sensor delays the whole read.
func (s *SysfsSource) Read() (Readings, error) {
	var r Readings

	milli, err := s.cpu.ReadFloat()
	if err != nil {
		return r, err
	}
	r.CPUCelsius = milli / 1000

	air, err := s.air.Sense()
	if err != nil {
		return r, fmt.Errorf("sense air: %w", err)
	}
	r.AirCelsius = air.Celsius
	r.HumidityPercent = air.HumidityPercent
	r.PressureKPa = air.PressureKPa

	for i, f := range s.ec {
		raw, err := f.ReadFloat()
		if err != nil {
			return r, err
		}
		r.Conductivity[i] = raw / s.scale
	}
	return r, nil
}

// Close closes every sensor file and the air sensor.
func (s *SysfsSource) Close() error {
	err := multierr.Append(s.cpu.Close(), s.air.Close())
	for _, f := range s.ec {
		err = multierr.Append(err, f.Close())
	}
	return err
}

func openAll(dir string, names ...string) ([]*sysfs.NumericFile, error) {
	files := make([]*sysfs.NumericFile, 0, len(names))
	for _, name := range names {
		f, err := sysfs.Open(filepath.Join(dir, name))
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		files = append(files, f)
	}
	return files, nil
}
