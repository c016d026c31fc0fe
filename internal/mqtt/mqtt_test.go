package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/greenhouse/internal/control"
	"github.com/sweeney/greenhouse/internal/sensor"
	"github.com/sweeney/greenhouse/internal/status"
)

func sampleRecord() status.Record {
	return status.Record{
		Time:            time.Date(2026, 6, 1, 12, 5, 0, 0, time.UTC),
		Readings:        sensor.Readings{CPUCelsius: 45, AirCelsius: 25, HumidityPercent: 70, PressureKPa: 100.9},
		SmoothedCelsius: 24.5,
		WaterLevel:      [2]bool{false, true},
		FanRPM:          [2]uint16{1200, 1210},
		Command:         control.Command{Pump: [2]bool{false, true}, FanRelay: true, DutyPercent: 22.5},
	}
}

func TestTopics(t *testing.T) {
	if TopicTelemetry != "greenhouse/telemetry" {
		t.Errorf("unexpected telemetry topic: %s", TopicTelemetry)
	}
	if TopicSystem != "greenhouse/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatTelemetry(t *testing.T) {
	payload, err := FormatTelemetry(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed TelemetryPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	g := parsed.Greenhouse
	if g.Timestamp != "2026-06-01T12:05:00Z" {
		t.Errorf("timestamp: got %s", g.Timestamp)
	}
	if g.Pump != [2]string{"off", "on"} {
		t.Errorf("pump: got %v", g.Pump)
	}
	if g.WaterLevel != [2]string{"low", "high"} {
		t.Errorf("water level: got %v", g.WaterLevel)
	}
	if g.DutyPercent != 22.5 || g.FanRelay != "on" || g.FanRPM != [2]uint16{1200, 1210} {
		t.Errorf("fan: got %+v", g)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Unix(0, 0), Event: "STARTUP"})
	expected := `{"system":{"timestamp":"1970-01-01T00:00:00Z","event":"STARTUP"}}`
	if string(payload) != expected {
		t.Errorf("got %s, want %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishTelemetry(sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.RecordCount() != 1 || len(f.Payloads) != 1 {
		t.Errorf("expected 1 telemetry message, got %d", f.RecordCount())
	}
	if len(f.SystemEvents) != 1 || !f.SystemEvents[0].Retained {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}

	f.PublishError = errors.New("broker down")
	if err := f.PublishTelemetry(sampleRecord()); err == nil {
		t.Error("expected error")
	}
	if f.RecordCount() != 1 {
		t.Error("failed publish should not be recorded")
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}
}

// fakeToken completes immediately with err.
type fakeToken struct {
	paho.Token
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	mu        sync.Mutex
	connected bool
	failAfter int // fail publishes once this many succeeded; <0 never
	sent      []published
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter >= 0 && len(c.sent) >= c.failAfter {
		return fakeToken{err: errors.New("not connected")}
	}
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {}

func newTestPublisher(c *fakeClient, size int) *RealPublisher {
	return &RealPublisher{client: c, buf: newRingBuffer(size)}
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{connected: true, failAfter: -1}
	p := newTestPublisher(c, 10)

	if err := p.PublishTelemetry(sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != TopicTelemetry || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("telemetry sent as %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("system event sent as %+v", c.sent[1])
	}
	if !p.IsConnected() {
		t.Error("expected connected")
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{failAfter: -1}
	p := newTestPublisher(c, 10)

	for i := 0; i < 3; i++ {
		if err := p.PublishTelemetry(sampleRecord()); err != nil {
			t.Fatalf("buffered publish should not fail: %v", err)
		}
	}
	if p.Buffered() != 3 || len(c.sent) != 0 {
		t.Fatalf("expected 3 buffered and none sent, got %d/%d", p.Buffered(), len(c.sent))
	}

	c.connected = true
	p.replay()

	if len(c.sent) != 3 || p.Buffered() != 0 {
		t.Errorf("expected 3 replayed, got %d sent, %d buffered", len(c.sent), p.Buffered())
	}
}

func TestRealPublisherReplayFailureRequeues(t *testing.T) {
	c := &fakeClient{failAfter: -1}
	p := newTestPublisher(c, 10)
	for i := 0; i < 4; i++ {
		p.PublishSystem(SystemEvent{Event: "STARTUP", RawPayload: []byte{byte('0' + i)}})
	}

	c.connected = true
	c.failAfter = 2
	p.replay()

	if len(c.sent) != 2 || p.Buffered() != 2 {
		t.Fatalf("expected 2 sent and 2 requeued, got %d/%d", len(c.sent), p.Buffered())
	}

	c.failAfter = -1
	p.replay()
	for i, msg := range c.sent {
		if msg.payload[0] != byte('0'+i) {
			t.Errorf("message %d out of order: %s", i, msg.payload)
		}
	}
}

func TestRealPublisherOverflowCountsDrops(t *testing.T) {
	p := newTestPublisher(&fakeClient{failAfter: -1}, 2)
	for i := 0; i < 5; i++ {
		p.PublishTelemetry(sampleRecord())
	}
	if p.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", p.Dropped())
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	c := &fakeClient{connected: true, failAfter: 0}
	p := newTestPublisher(c, 10)

	if err := p.PublishTelemetry(sampleRecord()); err == nil {
		t.Error("expected error from failed publish")
	}
	if p.Buffered() != 0 {
		t.Error("failed live publish should not be buffered")
	}
}

func TestWillPayload(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	got := willPayload(now, FormatSystemPayload)
	want := `{"system":{"timestamp":"2026-06-01T12:00:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if string(got) != want {
		t.Errorf("will: got %s, want %s", got, want)
	}
}

func TestWillPayloadFallsBackWhenFormatFails(t *testing.T) {
	failing := func(SystemEvent) ([]byte, error) { return nil, errors.New("marshal failed") }
	got := willPayload(time.Now(), failing)

	var p SystemPayload
	if err := json.Unmarshal(got, &p); err != nil {
		t.Fatalf("static will is not JSON: %v", err)
	}
	if p.System.Event != "OFFLINE" || p.System.Reason != "MQTT_DISCONNECT" {
		t.Errorf("unexpected static will: %s", got)
	}
}
