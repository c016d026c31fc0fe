package control

import (
	"fmt"

	"github.com/asecurityteam/rolling"
)

// DefaultAverageSamples smooths air temperature over ten minutes of ticks.
const DefaultAverageSamples = 10

// RollingAverage is the mean of the last N samples.
// Not safe for concurrent use; it is owned by the control loop.
type RollingAverage struct {
	window *rolling.PointPolicy
	size   int
	count  int
}

// NewRollingAverage returns an empty average over size samples.
func NewRollingAverage(size int) *RollingAverage {
	if size <= 0 {
		panic(fmt.Sprintf("control: rolling average size %d must be positive", size))
	}
	return &RollingAverage{
		window: rolling.NewPointPolicy(rolling.NewWindow(size)),
		size:   size,
	}
}

// Add records a sample, evicting the oldest once the window is full.
func (a *RollingAverage) Add(v float64) {
	a.window.Append(v)
	if a.count < a.size {
		a.count++
	}
}

// Len returns the number of samples held.
func (a *RollingAverage) Len() int {
	return a.count
}

// Value returns the mean of the held samples.
func (a *RollingAverage) Value() (float64, error) {
	if a.count == 0 {
		return 0, ErrNoSamples
	}
	// The window is filled from bucket 0, so until it wraps only the first
	// count buckets hold samples.
	n := a.count
	return a.window.Reduce(func(w rolling.Window) float64 {
		var sum float64
		for _, bucket := range w[:n] {
			for _, v := range bucket {
				sum += v
			}
		}
		return sum / float64(n)
	}), nil
}
