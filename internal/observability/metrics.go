package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vesting"

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	claims          *prometheus.CounterVec
	claimedAmount   prometheus.Counter
	transfers       *prometheus.CounterVec
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Error responses by code.",
		}, []string{"path", "method", "code"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claims processed, split by whether tokens moved.",
		}, []string{"result"}),
		claimedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_base_units_total",
			Help:      "Base units released to beneficiaries.",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Treasury transfer attempts by outcome.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.errors,
		m.claims,
		m.claimedAmount,
		m.transfers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordClaim counts a claim; amount zero means nothing was claimable.
func (m *Metrics) RecordClaim(amount uint64) {
	if m == nil {
		return
	}
	if amount == 0 {
		m.claims.WithLabelValues("empty").Inc()
		return
	}
	m.claims.WithLabelValues("released").Inc()
	m.claimedAmount.Add(float64(amount))
}

// RecordTransfer counts a treasury submission outcome.
func (m *Metrics) RecordTransfer(status string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(status).Inc()
}
