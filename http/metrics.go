package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that several servers (and tests) can
// coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	artifactChanges prometheus.Counter
	artifactInfo    *prometheus.GaugeVec
}

// NewMetrics registers the serving metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raincast",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raincast",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raincast",
			Name:      "predictions_total",
			Help:      "Predictions served by verdict.",
		}, []string{"verdict"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raincast",
			Name:      "prediction_cache_lookups_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		artifactChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raincast",
			Name:      "artifact_changes_total",
			Help:      "Changes of the model artifact on disk since startup.",
		}),
		artifactInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "raincast",
			Name:      "artifact_info",
			Help:      "The loaded model artifact.",
		}, []string{"artifact_id", "fingerprint"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.predictions, m.cacheLookups, m.artifactChanges, m.artifactInfo,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetArtifact publishes the served artifact as an info gauge.
func (m *Metrics) SetArtifact(id, fingerprint string) {
	m.artifactInfo.Reset()
	m.artifactInfo.WithLabelValues(id, fingerprint).Set(1)
}

func (m *Metrics) observePrediction(rain bool) {
	verdict := "no_rain"
	if rain {
		verdict = "rain"
	}
	m.predictions.WithLabelValues(verdict).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) observeArtifactChange() {
	m.artifactChanges.Inc()
}

// instrument records status and latency under a fixed route label.
func (m *Metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.requests.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
