// Package pwm drives a single sysfs PWM channel.
package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// FanFrequency is the 4-pin fan PWM control frequency (Intel 4-wire fan standard).
const FanFrequency = 25000.0

// Chip sets the frequency and duty cycle of one PWM output.
type Chip interface {
	SetFrequency(hz float64) error
	SetDutyPercent(percent float64) error
	Close() error
}

var (
	ErrFrequency = errors.New("pwm: frequency must be positive")
	ErrPercent   = errors.New("pwm: duty percent must be between 0 and 100")
	ErrNoPeriod  = errors.New("pwm: frequency not set")
)

// exportSettle is how long the kernel needs to create the channel
// directory after an export.
var exportSettle = 500 * time.Millisecond

// SysfsChip is a PWM channel under /sys/class/pwm/pwmchipN.
type SysfsChip struct {
	chipPath string
	channel  string
	periodNs int64
}

// NewSysfsChip exports the channel if needed, programs the frequency and
// initial duty, and enables the output.
func NewSysfsChip(chipPath string, channel int, frequency, initialPercent float64) (*SysfsChip, error) {
	p := &SysfsChip{
		chipPath: chipPath,
		channel:  strconv.Itoa(channel),
	}
	if err := p.export(); err != nil {
		return nil, err
	}
	if err := p.SetFrequency(frequency); err != nil {
		return nil, err
	}
	if err := p.SetDutyPercent(initialPercent); err != nil {
		return nil, err
	}
	if err := p.write("enable", "1"); err != nil {
		return nil, fmt.Errorf("enable pwm%s: %w", p.channel, err)
	}
	return p, nil
}

func (p *SysfsChip) pinDir() string {
	return filepath.Join(p.chipPath, "pwm"+p.channel)
}

func (p *SysfsChip) export() error {
	if _, err := os.Stat(p.pinDir()); err == nil {
		return nil
	}
	err := os.WriteFile(filepath.Join(p.chipPath, "export"), []byte(p.channel), 0644)
	if err != nil && !errors.Is(err, syscall.EBUSY) {
		return fmt.Errorf("export pwm%s: %w", p.channel, err)
	}
	time.Sleep(exportSettle)
	return nil
}

func (p *SysfsChip) write(name, value string) error {
	return os.WriteFile(filepath.Join(p.pinDir(), name), []byte(value), 0644)
}

// SetFrequency programs the period for the given frequency in hertz.
func (p *SysfsChip) SetFrequency(hz float64) error {
	if hz <= 0 {
		return ErrFrequency
	}
	period := int64(1e9 / hz)
	if err := p.write("period", strconv.FormatInt(period, 10)); err != nil {
		return fmt.Errorf("set period: %w", err)
	}
	p.periodNs = period
	return nil
}

// SetDutyPercent programs the duty cycle as a share of the current period.
func (p *SysfsChip) SetDutyPercent(percent float64) error {
	if percent < 0 || percent > 100 {
		return ErrPercent
	}
	if p.periodNs <= 0 {
		return ErrNoPeriod
	}
	duty := int64(float64(p.periodNs) * percent / 100)
	if err := p.write("duty_cycle", strconv.FormatInt(duty, 10)); err != nil {
		return fmt.Errorf("set duty cycle: %w", err)
	}
	return nil
}

// Close drives the duty cycle to zero and disables the output.
func (p *SysfsChip) Close() error {
	if p.periodNs > 0 {
		if err := p.write("duty_cycle", "0"); err != nil {
			return fmt.Errorf("set duty cycle: %w", err)
		}
	}
	if err := p.write("enable", "0"); err != nil {
		return fmt.Errorf("disable pwm%s: %w", p.channel, err)
	}
	return nil
}
