// Package metrics provides Prometheus metrics for the reminder collection
// and its HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for remindcal.
type Metrics struct {
	ReloadsTotal    *prometheus.CounterVec
	ReloadDuration  prometheus.Histogram
	EventsLoaded    prometheus.Gauge
	MutationsTotal  *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindcal_reloads_total",
				Help: "Total collection reloads by result.",
			},
			[]string{"result"},
		),
		ReloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remindcal_reload_duration_seconds",
				Help:    "Time spent running remind and rebuilding the collection.",
				Buckets: prometheus.DefBuckets,
			},
		),
		EventsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "remindcal_events_loaded",
				Help: "Number of events in the current collection snapshot.",
			},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindcal_mutations_total",
				Help: "File mutations by operation and result.",
			},
			[]string{"op", "result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindcal_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remindcal_http_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ReloadsTotal)
	reg.MustRegister(m.ReloadDuration)
	reg.MustRegister(m.EventsLoaded)
	reg.MustRegister(m.MutationsTotal)
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordReload counts one reload and its duration.
func (m *Metrics) RecordReload(ok bool, seconds float64, events int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ReloadsTotal.WithLabelValues(result).Inc()
	m.ReloadDuration.Observe(seconds)
	if ok {
		m.EventsLoaded.Set(float64(events))
	}
}

// RecordMutation counts one append/remove/replace/move.
func (m *Metrics) RecordMutation(op, result string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, code).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
