// Package status keeps the latest control tick and daemon metadata for the
// HTTP status page and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/greenhouse/internal/control"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/state"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Board         string
	IntervalMs    int64
	TachWindow    int
	FanMinCelsius float64
	FanMaxCelsius float64
	Broker        string
	HTTPAddr      string
	CSVDir        string
}

// Record is everything one control tick saw and did.
type Record struct {
	Time            time.Time
	Readings        sensor.Readings
	SmoothedCelsius float64
	WaterLevel      [state.WaterLevelSensors]bool
	FanRPM          [state.Fans]uint16
	Command         control.Command
}

// Snapshot is a point-in-time view of daemon state.
type Snapshot struct {
	Last          Record
	Ticks         uint64
	CSVPath       string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one tick has completed.
func (s Snapshot) Ready() bool {
	return s.Ticks > 0
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Record stores the outcome of a control tick.
func (t *Tracker) Record(rec Record) {
	t.mu.Lock()
	t.snap.Last = rec
	t.snap.Ticks++
	t.mu.Unlock()
}

// SetCSVPath records the file currently receiving rows.
func (t *Tracker) SetCSVPath(path string) {
	t.mu.Lock()
	t.snap.CSVPath = path
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a copy of the daemon state with Now set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
