package control

import "time"

// DutyPercent maps a temperature onto the fan duty cycle.
func (p Policy) DutyPercent(celsius float64) float64 {
	if celsius <= p.FanMinCelsius {
		return 0
	}
	if celsius >= p.FanMaxCelsius {
		return 100
	}
	return (celsius - p.FanMinCelsius) * 100 / (p.FanMaxCelsius - p.FanMinCelsius)
}

// FanRelay reports whether the fan supply should be energised.
// The relay gates power; DutyPercent sets the speed.
func (p Policy) FanRelay(celsius float64) bool {
	return celsius > p.FanMinCelsius
}

// IsNight reports whether t falls in the quiet hours.
func (p Policy) IsNight(t time.Time) bool {
	h := t.Hour()
	return h >= p.NightStartHour || h <= p.NightEndHour
}

// Pumps returns which irrigation pumps run during the given minute.
// At most one is ever on.
func (p Policy) Pumps(minute int) [2]bool {
	m := minute % p.IrrigationPeriod
	return [2]bool{m == 0, m == p.Pump2Offset}
}

// Decide computes the actuator command for the tick starting at t, given
// the smoothed air temperature.
func (p Policy) Decide(t time.Time, smoothedCelsius float64) Command {
	if p.IsNight(t) {
		cmd := Off
		cmd.Night = true
		cmd.FanRelay = p.FanRelay(AbsoluteZero)
		cmd.DutyPercent = p.DutyPercent(AbsoluteZero)
		return cmd
	}
	return Command{
		Pump:        p.Pumps(t.Minute()),
		FanRelay:    p.FanRelay(smoothedCelsius),
		DutyPercent: p.DutyPercent(smoothedCelsius),
	}
}
