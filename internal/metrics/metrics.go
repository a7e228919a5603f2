// Package metrics defines the Prometheus instruments of a sensorview run.
//
// Instruments are registered on a per-run registry (not the global one) so
// several runs can coexist in one process, as tests do.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/slot"
)

const namespace = "sensorview"

// Metrics holds every instrument of a run.
type Metrics struct {
	Registry *prometheus.Registry

	// Acquisition
	SensorReads        *prometheus.CounterVec
	SensorReadDuration *prometheus.HistogramVec
	SlotPublishes      *prometheus.CounterVec
	SlotDrops          *prometheus.CounterVec

	// Render loop
	RenderFrames   prometheus.Counter
	RenderSkips    prometheus.Counter
	RenderDuration prometheus.Histogram
	RenderFPS      prometheus.Gauge

	// Errors logged to the error log, by code
	ErrorsLogged *prometheus.CounterVec

	// HTTP
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitRejects     prometheus.Counter
	PanicRecoveries      prometheus.Counter

	// Telemetry
	TelemetryPublished prometheus.Counter
	TelemetryDropped   *prometheus.CounterVec
	ControlCommands    *prometheus.CounterVec
}

// New creates and registers all instruments on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		SensorReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_reads_total",
			Help:      "Total number of sensor reads by result",
		}, []string{"sensor", "result"}),

		SensorReadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sensor_read_duration_seconds",
			Help:      "Sensor read latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"sensor"}),

		SlotPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_publishes_total",
			Help:      "Total number of samples published into latest-value slots",
		}, []string{"slot"}),

		SlotDrops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_drops_total",
			Help:      "Total number of samples overwritten before the renderer took them",
		}, []string{"slot"}),

		RenderFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_frames_total",
			Help:      "Total number of composited frames shown",
		}),

		RenderSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_skips_total",
			Help:      "Total number of render cycles skipped for lack of a frame",
		}),

		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Overlay composition and show latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),

		RenderFPS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_fps",
			Help:      "Configured render rate",
		}),

		ErrorsLogged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_logged_total",
			Help:      "Total number of errors written to the error log, by code",
		}, []string{"code"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		}),

		RateLimitRejects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Total number of requests rejected due to rate limiting",
		}),

		PanicRecoveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panic_recoveries_total",
			Help:      "Total number of panics recovered in HTTP handlers",
		}),

		TelemetryPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_published_total",
			Help:      "Total number of display-state messages published over MQTT",
		}),

		TelemetryDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Total number of display-state messages not published, by reason",
		}, []string{"reason"}),

		ControlCommands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_commands_total",
			Help:      "Total number of control-plane commands, by command and result",
		}, []string{"command", "result"}),
	}
}

// ObserveRead records one sensor read.
func (m *Metrics) ObserveRead(sensor string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SensorReads.WithLabelValues(sensor, result).Inc()
	m.SensorReadDuration.WithLabelValues(sensor).Observe(d.Seconds())
}

// ObservePublish records one slot publish.
func (m *Metrics) ObservePublish(slotName string, dropped bool) {
	m.SlotPublishes.WithLabelValues(slotName).Inc()
	if dropped {
		m.SlotDrops.WithLabelValues(slotName).Inc()
	}
}

// ObserveError counts an error written to the error log.
func (m *Metrics) ObserveError(code errors.ErrorCode) {
	m.ErrorsLogged.WithLabelValues(string(code)).Inc()
}

// RegisterSlotPending exposes whether a slot currently holds an unconsumed
// sample.
func (m *Metrics) RegisterSlotPending(name string, stats func() slot.Stats) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "slot_pending",
		Help:        "1 when the slot holds a sample the renderer has not taken yet",
		ConstLabels: prometheus.Labels{"slot": name},
	}, func() float64 {
		if stats().Pending {
			return 1
		}
		return 0
	})
}

// RegisterGauge exposes an arbitrary value read at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}
