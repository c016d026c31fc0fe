package sensor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func writeAttr(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

// fakeTree lays out a thermal zone, a BME280 and an ADC as the kernel would.
func fakeTree(t *testing.T) (cpu, bme, adc string) {
	t.Helper()
	root := t.TempDir()
	cpu = filepath.Join(root, "thermal_zone0", "temp")
	writeAttr(t, filepath.Dir(cpu), "temp", "48312\n")

	bme = filepath.Join(root, "iio:device0")
	writeAttr(t, bme, "name", "bme280\n")
	writeAttr(t, bme, "in_temp_input", "23450\n")
	writeAttr(t, bme, "in_humidityrelative_input", "61234\n")
	writeAttr(t, bme, "in_pressure_input", "101.325000000\n")

	adc = filepath.Join(root, "iio:device1")
	writeAttr(t, adc, "name", "ads1015\n")
	writeAttr(t, adc, "in_voltage0_raw", "1250\n")
	writeAttr(t, adc, "in_voltage1_raw", "980\n")
	return cpu, bme, adc
}

func TestSysfsSourceRead(t *testing.T) {
	cpu, bme, adc := fakeTree(t)

	air, err := NewIIOAir(bme)
	require.NoError(t, err)
	src, err := NewSysfsSource(SysfsConfig{
		CPUTemperature:    cpu,
		ADCDir:            adc,
		ConductivityScale: DefaultConductivityScale,
	}, air)
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 2; i++ {
		r, err := src.Read()
		require.NoError(t, err)
		assert.InDelta(t, 48.312, r.CPUCelsius, 1e-9)
		assert.InDelta(t, 23.45, r.AirCelsius, 1e-9)
		assert.InDelta(t, 61.234, r.HumidityPercent, 1e-9)
		assert.InDelta(t, 101.325, r.PressureKPa, 1e-9)
		assert.InDelta(t, 125.0, r.Conductivity[0], 1e-9)
		assert.InDelta(t, 98.0, r.Conductivity[1], 1e-9)
	}
}

func TestSysfsSourceConfigErrors(t *testing.T) {
	cpu, bme, adc := fakeTree(t)
	air, err := NewIIOAir(bme)
	require.NoError(t, err)
	defer air.Close()

	_, err = NewSysfsSource(SysfsConfig{CPUTemperature: cpu, ADCDir: adc}, air)
	assert.Error(t, err, "zero scale")

	_, err = NewSysfsSource(SysfsConfig{CPUTemperature: cpu + ".missing", ADCDir: adc, ConductivityScale: 10}, air)
	assert.Error(t, err, "missing cpu file")

	_, err = NewSysfsSource(SysfsConfig{CPUTemperature: cpu, ADCDir: t.TempDir(), ConductivityScale: 10}, air)
	assert.Error(t, err, "missing adc channels")
}

func TestNewIIOAirMissingChannel(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, dir, "in_temp_input", "20000\n")

	_, err := NewIIOAir(dir)
	assert.Error(t, err)
}

func TestSysfsSourceReadError(t *testing.T) {
	cpu, bme, adc := fakeTree(t)
	air, err := NewIIOAir(bme)
	require.NoError(t, err)
	src, err := NewSysfsSource(SysfsConfig{CPUTemperature: cpu, ADCDir: adc, ConductivityScale: 10}, air)
	require.NoError(t, err)
	defer src.Close()

	writeAttr(t, bme, "in_humidityrelative_input", "EIO\n")
	_, err = src.Read()
	assert.Error(t, err)
}

func TestEnvToAir(t *testing.T) {
	e := physic.Env{
		Temperature: physic.ZeroCelsius + 25*physic.Kelvin,
		Humidity:    55 * physic.PercentRH,
		Pressure:    101325 * physic.Pascal,
	}
	air := envToAir(e)
	assert.InDelta(t, 25.0, air.Celsius, 1e-6)
	assert.InDelta(t, 55.0, air.HumidityPercent, 1e-6)
	assert.InDelta(t, 101.325, air.PressureKPa, 1e-6)
}

func TestFakeSource(t *testing.T) {
	f := NewFakeSource(Readings{AirCelsius: 30})
	r, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 30.0, r.AirCelsius)

	f.Set(Readings{AirCelsius: math.Inf(1)})
	r, _ = f.Read()
	assert.True(t, math.IsInf(r.AirCelsius, 1))
	assert.Equal(t, 2, f.Reads())
}
