// Package metrics exports dispatch telemetry in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsnotify/internal/notify"
)

const namespace = "opsnotify"

// Metrics implements notify.Observer on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	dispatches *prometheus.CounterVec
	selected   *prometheus.HistogramVec
	dispatchD  *prometheus.HistogramVec
	outcomes   *prometheus.CounterVec
	attemptD   *prometheus.HistogramVec
	ingested   *prometheus.CounterVec
}

var _ notify.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Events dispatched, by event kind.",
		}, []string{"event"}),
		selected: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_channels",
			Help:      "Channels selected per dispatch.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}, []string{"event"}),
		dispatchD: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from store read to the last settled attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_outcomes_total",
			Help:      "Channel attempts by channel kind, status and error kind.",
		}, []string{"event", "channel", "status", "error"}),
		attemptD: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_attempt_duration_seconds",
			Help:      "Duration of one channel attempt (format and send).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_events_total",
			Help:      "Events received, by source and result.",
		}, []string{"source", "result"}),
	}
	m.reg.MustRegister(
		m.dispatches, m.selected, m.dispatchD, m.outcomes, m.attemptD, m.ingested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveOutcome(event notify.EventKind, o notify.DispatchOutcome) {
	errKind := ""
	if o.Error != nil {
		errKind = string(o.Error.Kind)
	}
	m.outcomes.WithLabelValues(string(event), string(o.Kind), string(o.Status), errKind).Inc()
	m.attemptD.WithLabelValues(string(o.Kind)).Observe(o.Took.Seconds())
}

func (m *Metrics) ObserveDispatch(event notify.EventKind, selected int, took time.Duration) {
	m.dispatches.WithLabelValues(string(event)).Inc()
	m.selected.WithLabelValues(string(event)).Observe(float64(selected))
	m.dispatchD.WithLabelValues(string(event)).Observe(took.Seconds())
}

// Ingested counts an event received from source ("http", "kafka", "schedule",
// "startup"). result is "ok", "invalid" or "error".
func (m *Metrics) Ingested(source, result string) {
	m.ingested.WithLabelValues(source, result).Inc()
}

// Registry exposes the private registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
