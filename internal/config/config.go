// Package config holds the daemon configuration: built-in defaults, an
// optional YAML file on top, and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/greenhouse/internal/control"
	"github.com/sweeney/greenhouse/internal/gpio"
	"github.com/sweeney/greenhouse/internal/monitor"
	"github.com/sweeney/greenhouse/internal/pwm"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/sysfs"
)

// Board is the device layout of one supported Raspberry Pi model.
type Board struct {
	GPIOChip string
	PWMChip  string
}

// Boards lists the supported boards by name.
var Boards = map[string]Board{
	"rpi5":   {GPIOChip: "/dev/gpiochip4", PWMChip: "/sys/class/pwm/pwmchip2"},
	"rpiz2w": {GPIOChip: "/dev/gpiochip0", PWMChip: "/sys/class/pwm/pwmchip0"},
}

// DefaultBoard is used when no board is named.
const DefaultBoard = "rpi5"

// Air sensor backends.
const (
	AirIIO = "iio"
	AirI2C = "i2c"
)

// Pins are BCM line offsets on the GPIO chip.
type Pins struct {
	WaterLevel [2]int `yaml:"water_level"`
	Pumps      [2]int `yaml:"pumps"`
	FanRelay   int    `yaml:"fan_relay"`
	Tach       [2]int `yaml:"tach"`
}

// Sensors locates the sensor devices.
type Sensors struct {
	CPUTemperature string `yaml:"cpu_temperature"`
	IIORoot        string `yaml:"iio_root"`
	// Air is "iio" (kernel driver) or "i2c" (direct over periph.io).
	Air        string  `yaml:"air"`
	AirDevice  string  `yaml:"air_device"`
	ADCDevice  string  `yaml:"adc_device"`
	I2CBus     string  `yaml:"i2c_bus"`
	I2CAddress uint16  `yaml:"i2c_address"`
	ECScale    float64 `yaml:"ec_scale"`
}

// Config is the complete daemon configuration.
type Config struct {
	Board string `yaml:"board"`
	// GPIOChip and PWMChip override the board's devices when set.
	GPIOChip     string  `yaml:"gpio_chip"`
	PWMChip      string  `yaml:"pwm_chip"`
	PWMChannel   int     `yaml:"pwm_channel"`
	PWMFrequency float64 `yaml:"pwm_frequency"`

	Pins          Pins          `yaml:"pins"`
	WaterDebounce time.Duration `yaml:"water_debounce"`
	TachDebounce  time.Duration `yaml:"tach_debounce"`
	TachWindow    int           `yaml:"tach_window"`

	Sensors Sensors `yaml:"sensors"`

	Interval       time.Duration  `yaml:"interval"`
	AverageSamples int            `yaml:"average_samples"`
	Policy         control.Policy `yaml:"policy"`

	CSVDir     string `yaml:"csv_dir"`
	Broker     string `yaml:"broker"`
	BufferSize int    `yaml:"mqtt_buffer"`
	HTTPAddr   string `yaml:"http"`
}

// Default returns the stock configuration. CSVDir is left empty and resolved
// by DefaultCSVDir at startup.
func Default() Config {
	return Config{
		Board:        DefaultBoard,
		PWMChannel:   0,
		PWMFrequency: pwm.FanFrequency,
		Pins: Pins{
			WaterLevel: [2]int{gpio.DefaultWaterLevel1, gpio.DefaultWaterLevel2},
			Pumps:      [2]int{gpio.DefaultPump1Relay, gpio.DefaultPump2Relay},
			FanRelay:   gpio.DefaultFanRelay,
			Tach:       [2]int{gpio.DefaultFan1Tach, gpio.DefaultFan2Tach},
		},
		WaterDebounce: 10 * time.Millisecond,
		TachDebounce:  100 * time.Microsecond,
		TachWindow:    monitor.DefaultTachWindow,
		Sensors: Sensors{
			CPUTemperature: sysfs.CPUTemperature,
			IIORoot:        sysfs.IIORoot,
			Air:            AirIIO,
			AirDevice:      "bme280",
			ADCDevice:      "ads1015",
			I2CAddress:     sensor.DefaultBMXX80Address,
			ECScale:        sensor.DefaultConductivityScale,
		},
		Interval:       time.Minute,
		AverageSamples: control.DefaultAverageSamples,
		Policy:         control.DefaultPolicy(),
		BufferSize:     24 * 60,
		HTTPAddr:       ":80",
	}
}

// Load returns Default overlaid with the YAML file at path. Unknown keys are
// an error so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Chips returns the GPIO and PWM chip paths after board and overrides.
func (c Config) Chips() (gpioChip, pwmChip string) {
	b := Boards[c.Board]
	gpioChip, pwmChip = b.GPIOChip, b.PWMChip
	if c.GPIOChip != "" {
		gpioChip = c.GPIOChip
	}
	if c.PWMChip != "" {
		pwmChip = c.PWMChip
	}
	return gpioChip, pwmChip
}

// BoardNames returns the supported board names, sorted.
func BoardNames() []string {
	names := make([]string, 0, len(Boards))
	for name := range Boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks everything that can be checked without touching hardware.
func (c Config) Validate() error {
	if _, ok := Boards[c.Board]; !ok {
		return fmt.Errorf("unknown board %q (want one of %s)", c.Board, strings.Join(BoardNames(), ", "))
	}
	if c.PWMFrequency <= 0 {
		return fmt.Errorf("pwm frequency %v must be positive", c.PWMFrequency)
	}
	if c.PWMChannel < 0 {
		return fmt.Errorf("pwm channel %d must not be negative", c.PWMChannel)
	}
	if c.Pins.WaterLevel[1] != c.Pins.WaterLevel[0]+1 {
		return fmt.Errorf("water level lines %v must be consecutive", c.Pins.WaterLevel)
	}
	if c.Pins.Tach[1] != c.Pins.Tach[0]+1 {
		return fmt.Errorf("tach lines %v must be consecutive", c.Pins.Tach)
	}
	seen := map[int]bool{}
	for _, off := range c.Offsets() {
		if off < 0 {
			return fmt.Errorf("line %d must not be negative", off)
		}
		if seen[off] {
			return fmt.Errorf("line %d assigned twice", off)
		}
		seen[off] = true
	}
	if c.TachWindow < 2 {
		return fmt.Errorf("tach window %d must be at least 2", c.TachWindow)
	}
	if c.WaterDebounce < 0 || c.TachDebounce < 0 {
		return errors.New("debounce must not be negative")
	}
	switch c.Sensors.Air {
	case AirIIO, AirI2C:
	default:
		return fmt.Errorf("air sensor %q must be %q or %q", c.Sensors.Air, AirIIO, AirI2C)
	}
	if c.Sensors.ECScale <= 0 {
		return fmt.Errorf("ec scale %v must be positive", c.Sensors.ECScale)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval %v must be positive", c.Interval)
	}
	if c.AverageSamples < 1 {
		return fmt.Errorf("average samples %d must be at least 1", c.AverageSamples)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// Offsets returns every configured line.
func (c Config) Offsets() []int {
	return []int{
		c.Pins.WaterLevel[0], c.Pins.WaterLevel[1],
		c.Pins.Pumps[0], c.Pins.Pumps[1],
		c.Pins.FanRelay,
		c.Pins.Tach[0], c.Pins.Tach[1],
	}
}

// DefaultCSVDir is the working directory when run from a terminal and the
// home directory otherwise (systemd starts us in /).
func DefaultCSVDir() (string, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return os.Getwd()
	}
	return os.UserHomeDir()
}
