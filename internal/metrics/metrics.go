// Package metrics exports the latest control tick as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/greenhouse/internal/status"
)

const namespace = "greenhouse"

// Metrics owns a private registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	temperature  *prometheus.GaugeVec
	humidity     prometheus.Gauge
	pressure     prometheus.Gauge
	conductivity *prometheus.GaugeVec
	waterLevel   *prometheus.GaugeVec
	pump         *prometheus.GaugeVec
	fanRelay     prometheus.Gauge
	fanDuty      prometheus.Gauge
	fanRPM       *prometheus.GaugeVec
	night        prometheus.Gauge
	ticks        prometheus.Counter
	tickErrors   prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Temperature by source: cpu, air, air_smoothed.",
		}, []string{"source"}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Relative humidity.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_kpa",
			Help:      "Barometric pressure.",
		}),
		conductivity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conductivity",
			Help:      "Scaled electrical conductivity per probe.",
		}, []string{"probe"}),
		waterLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_level_high",
			Help:      "1 when the float switch reads high.",
		}, []string{"sensor"}),
		pump: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "1 while the pump relay is energised.",
		}, []string{"pump"}),
		fanRelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_relay_on",
			Help:      "1 while the fan power relay is energised.",
		}),
		fanDuty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_duty_percent",
			Help:      "Commanded PWM duty.",
		}),
		fanRPM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_rpm",
			Help:      "Measured fan speed.",
		}, []string{"fan"}),
		night: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "night",
			Help:      "1 while the night override holds actuators off.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed control ticks.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Control ticks that ended in an error.",
		}),
	}
	m.reg.MustRegister(
		m.temperature, m.humidity, m.pressure, m.conductivity,
		m.waterLevel, m.pump, m.fanRelay, m.fanDuty, m.fanRPM, m.night,
		m.ticks, m.tickErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe records a completed tick.
func (m *Metrics) Observe(rec status.Record) {
	r := rec.Readings
	m.temperature.WithLabelValues("cpu").Set(r.CPUCelsius)
	m.temperature.WithLabelValues("air").Set(r.AirCelsius)
	m.temperature.WithLabelValues("air_smoothed").Set(rec.SmoothedCelsius)
	m.humidity.Set(r.HumidityPercent)
	m.pressure.Set(r.PressureKPa)
	for i, v := range r.Conductivity {
		m.conductivity.WithLabelValues(strconv.Itoa(i + 1)).Set(v)
	}
	for i, v := range rec.WaterLevel {
		m.waterLevel.WithLabelValues(strconv.Itoa(i + 1)).Set(bool01(v))
	}
	for i, v := range rec.Command.Pump {
		m.pump.WithLabelValues(strconv.Itoa(i + 1)).Set(bool01(v))
	}
	for i, v := range rec.FanRPM {
		m.fanRPM.WithLabelValues(strconv.Itoa(i + 1)).Set(float64(v))
	}
	m.fanRelay.Set(bool01(rec.Command.FanRelay))
	m.fanDuty.Set(rec.Command.DutyPercent)
	m.night.Set(bool01(rec.Command.Night))
	m.ticks.Inc()
}

// TickFailed counts a tick that did not complete.
func (m *Metrics) TickFailed() {
	m.tickErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
