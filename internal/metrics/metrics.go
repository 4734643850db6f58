// Package metrics exposes Prometheus collectors for pairing, device
// commands and the HTTP API.
//
// Collectors live in their own registry rather than the global default,
// so tests can build as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

const namespace = "thinglink"

// AttemptWriter persists pairing attempts as time series.
// *influxdb.Client satisfies it.
type AttemptWriter interface {
	WritePairingAttempt(mode, result string, duration time.Duration, at time.Time)
}

// Metrics holds every collector. It implements pairing.Recorder.
type Metrics struct {
	registry *prometheus.Registry
	writer   AttemptWriter
	now      func() time.Time

	scans       *prometheus.CounterVec
	discovered  prometheus.Counter
	activations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	commands    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	wsClients   prometheus.Gauge
}

// New registers the collectors plus the Go and process collectors.
// writer may be nil.
func New(writer AttemptWriter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writer:   writer,
		now:      time.Now,
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "scans_total",
			Help:      "Discovery scans started, by mode.",
		}, []string{"mode"}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "devices_discovered_total",
			Help:      "Unique devices reported by discovery scans.",
		}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "activations_total",
			Help:      "Finished activation attempts, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "activation_duration_seconds",
			Help:      "Time from activation start to result.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		}, []string{"mode"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Device commands, by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scans, m.discovered, m.activations, m.duration,
		m.commands, m.requests, m.wsClients,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ScanStarted implements pairing.Recorder.
func (m *Metrics) ScanStarted(mode pairing.Mode) {
	m.scans.WithLabelValues(string(mode)).Inc()
}

// DeviceDiscovered implements pairing.Recorder.
func (m *Metrics) DeviceDiscovered() {
	m.discovered.Inc()
}

// ActivationFinished implements pairing.Recorder.
func (m *Metrics) ActivationFinished(mode pairing.Mode, outcome pairing.Outcome, d time.Duration) {
	m.activations.WithLabelValues(string(mode), string(outcome)).Inc()
	m.duration.WithLabelValues(string(mode)).Observe(d.Seconds())
	if m.writer != nil {
		m.writer.WritePairingAttempt(string(mode), string(outcome), d, m.now())
	}
}

// CommandSent counts a device command. err nil counts as "ok".
func (m *Metrics) CommandSent(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}

// SetWSClients records the connected WebSocket client count.
func (m *Metrics) SetWSClients(n int) {
	m.wsClients.Set(float64(n))
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(route, method string, status int) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
