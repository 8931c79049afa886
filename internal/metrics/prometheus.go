// Package metrics exporta metricas Prometheus del servicio de chat.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter agrupa los colectores y el registry propio del servicio.
type Exporter struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	generationLatency *prometheus.HistogramVec
	generationTotal   *prometheus.CounterVec
}

// Config configura el exporter.
type Config struct {
	// Registry a usar; si es nil se crea uno nuevo.
	Registry *prometheus.Registry
	// Buckets de latencia en segundos.
	LatencyBuckets []float64
}

func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	e := &Exporter{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthchat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   cfg.LatencyBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthchat",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthchat",
			Name:      "generation_duration_seconds",
			Help:      "Response generator latency by kind.",
			Buckets:   cfg.LatencyBuckets,
		}, []string{"kind"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Name:      "generations_total",
			Help:      "Response generator calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	registry.MustRegister(
		e.httpRequests,
		e.httpLatency,
		e.httpInFlight,
		e.generationLatency,
		e.generationTotal,
	)
	return e
}

// Handler devuelve el endpoint /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Registry expone el registry (tests y colectores adicionales).
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) RequestStarted() {
	e.httpInFlight.Inc()
}

// RequestFinished registra una peticion servida.
func (e *Exporter) RequestFinished(method, route string, status int, elapsed time.Duration) {
	e.httpInFlight.Dec()
	if route == "" {
		route = "unmatched"
	}
	e.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	e.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveGeneration registra una llamada al generador de respuestas.
func (e *Exporter) ObserveGeneration(kind string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.generationLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	e.generationTotal.WithLabelValues(kind, outcome).Inc()
}
