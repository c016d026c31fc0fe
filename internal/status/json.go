package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/greenhouse/internal/state"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Ticks         uint64       `json:"ticks"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Last          *RecordJSON  `json:"last,omitempty"`
	CSV           string       `json:"csv,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RecordJSON is the JSON form of a Record. MQTT telemetry uses it too.
type RecordJSON struct {
	Timestamp       string     `json:"timestamp"`
	Night           bool       `json:"night"`
	CPUCelsius      float64    `json:"cpu_c"`
	AirCelsius      float64    `json:"air_c"`
	SmoothedCelsius float64    `json:"air_smoothed_c"`
	HumidityPercent float64    `json:"humidity_pct"`
	PressureKPa     float64    `json:"pressure_kpa"`
	Conductivity    [2]float64 `json:"conductivity"`
	WaterLevel      [2]string  `json:"water_level"`
	Pump            [2]string  `json:"pump"`
	FanRelay        string     `json:"fan_relay"`
	DutyPercent     float64    `json:"duty_pct"`
	FanRPM          [2]uint16  `json:"fan_rpm"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Board         string  `json:"board"`
	IntervalMs    int64   `json:"interval_ms"`
	TachWindow    int     `json:"tach_window"`
	FanMinCelsius float64 `json:"fan_min_c"`
	FanMaxCelsius float64 `json:"fan_max_c"`
	Broker        string  `json:"broker"`
	HTTPAddr      string  `json:"http_addr"`
	CSVDir        string  `json:"csv_dir"`
}

// NewRecordJSON converts a Record for output.
func NewRecordJSON(rec Record) RecordJSON {
	r := rec.Readings
	return RecordJSON{
		Timestamp:       rec.Time.UTC().Format(time.RFC3339),
		Night:           rec.Command.Night,
		CPUCelsius:      r.CPUCelsius,
		AirCelsius:      r.AirCelsius,
		SmoothedCelsius: rec.SmoothedCelsius,
		HumidityPercent: r.HumidityPercent,
		PressureKPa:     r.PressureKPa,
		Conductivity:    r.Conductivity,
		WaterLevel:      [2]string{state.Level(rec.WaterLevel[0]), state.Level(rec.WaterLevel[1])},
		Pump:            [2]string{state.OnOff(rec.Command.Pump[0]), state.OnOff(rec.Command.Pump[1])},
		FanRelay:        state.OnOff(rec.Command.FanRelay),
		DutyPercent:     rec.Command.DutyPercent,
		FanRPM:          rec.FanRPM,
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready(),
		Ticks:         snap.Ticks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		CSV:           snap.CSVPath,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Board:         snap.Config.Board,
			IntervalMs:    snap.Config.IntervalMs,
			TachWindow:    snap.Config.TachWindow,
			FanMinCelsius: snap.Config.FanMinCelsius,
			FanMaxCelsius: snap.Config.FanMaxCelsius,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			CSVDir:        snap.Config.CSVDir,
		},
	}
	if snap.Ready() {
		last := NewRecordJSON(snap.Last)
		inner.Last = &last
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
