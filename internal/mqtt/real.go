package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse/internal/status"
)

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an MQTT broker. Messages published while the
// connection is down are held in a ring buffer and replayed, oldest first,
// when it comes back.
type RealPublisher struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately; the daemon must run without a broker.
func NewRealPublisher(broker string, bufferSize int) *RealPublisher {
	p := &RealPublisher{buf: newRingBuffer(bufferSize)}

	will := willPayload(time.Now(), FormatSystemPayload)
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("greenhouse").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Infof("mqtt: connected to %s", broker)
			p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt: connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns how many buffered messages were lost to overflow.
func (p *RealPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// PublishTelemetry sends a control tick at QoS 0.
func (p *RealPublisher) PublishTelemetry(rec status.Record) error {
	payload, err := FormatTelemetry(rec)
	if err != nil {
		return fmt.Errorf("format telemetry: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicTelemetry, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timeout")
	}
	return token.Error()
}

// replay sends everything buffered while disconnected. Whatever fails goes
// back to the front of the buffer for the next connection.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	for i, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.WithError(err).Warnf("mqtt: replay stopped after %d of %d messages", i, len(msgs))
			p.mu.Lock()
			p.buf.pushFront(msgs[i:])
			p.mu.Unlock()
			return
		}
	}
	log.Infof("mqtt: replayed %d buffered messages", len(msgs))
}

// Close disconnects from the broker, allowing one second to flush.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// offlineWill is sent by the broker if we vanish; used verbatim when the
// timestamped form cannot be built.
var offlineWill = []byte(`{"system":{"event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`)

func willPayload(now time.Time, format func(SystemEvent) ([]byte, error)) []byte {
	will, err := format(SystemEvent{
		Timestamp: now,
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		log.WithError(err).Warn("mqtt: format last will, using static payload")
		return offlineWill
	}
	return will
}
