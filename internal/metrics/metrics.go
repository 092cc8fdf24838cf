// Package metrics exports limiter activity to Prometheus.
//
// Metrics:
//   - gatekeeper_decisions_total: decisions by algorithm and result
//   - gatekeeper_decision_duration_seconds: time spent deciding
//   - gatekeeper_tracked_clients: clients with live state after the last sweep
//   - gatekeeper_evictions_total: idle clients evicted
//   - gatekeeper_http_requests_total: demo server requests by route and status
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
)

const namespace = "gatekeeper"

// Collector records limiter decisions and sweeps. It implements
// limiter.Observer, so it can be attached with limiter.WithObserver.
type Collector struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	trackedClients *prometheus.GaugeVec
	evictions      *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// NewCollector registers the gatekeeper metrics on registry. A nil registry
// gets a fresh one with the Go and process collectors.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Admission decisions by algorithm and result.",
		}, []string{"algorithm", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent computing an admission decision.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10), // 100ns to ~26ms
		}, []string{"algorithm"}),
		trackedClients: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_clients",
			Help:      "Clients with live limiter state as of the last sweep.",
		}, []string{"algorithm"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Idle clients evicted from limiter state.",
		}, []string{"algorithm"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Demo server requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// ObserveDecision implements limiter.Observer.
func (c *Collector) ObserveDecision(e limiter.Event) {
	alg := string(e.Algorithm)
	c.decisions.WithLabelValues(alg, string(e.Decision.Outcome())).Inc()
	c.duration.WithLabelValues(alg).Observe(e.Latency.Seconds())
}

// ObserveSweep implements limiter.Observer.
func (c *Collector) ObserveSweep(e limiter.SweepEvent) {
	alg := string(e.Algorithm)
	c.trackedClients.WithLabelValues(alg).Set(float64(e.Remaining))
	if e.Evicted > 0 {
		c.evictions.WithLabelValues(alg).Add(float64(e.Evicted))
	}
}

// ObserveHTTP counts one served request.
func (c *Collector) ObserveHTTP(route string, code int) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
