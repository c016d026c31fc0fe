// Package mqtt publishes greenhouse telemetry and lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/greenhouse/internal/status"
)

// TopicTelemetry carries one message per control tick.
const TopicTelemetry = "greenhouse/telemetry"

// TopicSystem carries lifecycle events. They are retained so a new
// subscriber learns whether the daemon is up.
const TopicSystem = "greenhouse/system"

// Publisher publishes to MQTT. Errors are reported but must never stop the
// control loop.
type Publisher interface {
	// PublishTelemetry sends the outcome of a control tick.
	PublishTelemetry(rec status.Record) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event such as STARTUP or SHUTDOWN.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// TelemetryPayload is the MQTT message for a control tick.
type TelemetryPayload struct {
	Greenhouse status.RecordJSON `json:"greenhouse"`
}

// FormatTelemetry creates the JSON payload for a control tick.
func FormatTelemetry(rec status.Record) ([]byte, error) {
	return json.Marshal(TelemetryPayload{Greenhouse: status.NewRecordJSON(rec)})
}

// SystemPayload is the payload for events that carry no status snapshot
// (the last will, mostly).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
