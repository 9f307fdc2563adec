package metrics

import (
	"sync"

	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// defaultRouteCardinality caps the number of distinct route labels the
// collector will emit. The gateway serves a small fixed route set, so
// anything beyond the cap is an unmatched path and aggregates into "other".
const defaultRouteCardinality = 64

// Collector owns the Prometheus metrics for the gateway. It registers
// every metric on a single registry and provides recording methods for
// the request path, the upstream health registry, and the background
// components.
//
// All recording methods are safe for concurrent use and become no-ops
// when metrics are disabled in the configuration.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Request metrics, recorded by the HTTP middleware.
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Upstream attempt metrics, recorded via the health registry's
	// observer hook.
	attemptsTotal  *prometheus.CounterVec
	cooldownsTotal *prometheus.CounterVec

	routeLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created
// so that the gateway's metrics are isolated from the default global one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "saturn"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Streamed completions hold the request open until the last
		// token, so the upper buckets reach into minutes.
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0}
	}

	c := &Collector{
		config:       cfg,
		registry:     registry,
		routeLimiter: NewCardinalityLimiter(defaultRouteCardinality),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of requests served, by route and response status",
			},
			[]string{"route", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds, measured to the end of the response body",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"route"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_attempts_total",
				Help:      "Total number of forwarding attempts, by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		cooldownsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "endpoint_cooldowns_total",
				Help:      "Total number of times an endpoint's failure threshold was crossed",
			},
			[]string{"endpoint"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.attemptsTotal,
		c.cooldownsTotal,
	)

	return c
}

// RecordRequest records a completed request. The route is the request
// path; paths beyond the cardinality cap aggregate into "other".
func (c *Collector) RecordRequest(route, status string, seconds float64) {
	if !c.config.Enabled {
		return
	}

	if !c.routeLimiter.Allow(route) {
		route = "other"
	}

	c.requestsTotal.WithLabelValues(route, status).Inc()
	c.requestDuration.WithLabelValues(route).Observe(seconds)
}

// Attempt records the outcome of a single forwarding attempt against an
// upstream endpoint. It satisfies the health registry's observer hook.
func (c *Collector) Attempt(endpoint string, success bool) {
	if !c.config.Enabled {
		return
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.attemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// CooldownOpened records that an endpoint crossed its failure threshold
// and entered cooldown.
func (c *Collector) CooldownOpened(endpoint string) {
	if !c.config.Enabled {
		return
	}

	c.cooldownsTotal.WithLabelValues(endpoint).Inc()
}

// RegisterRateLimited exposes the cumulative count of requests rejected
// by the per-token rate limiter. The function is read at scrape time.
func (c *Collector) RegisterRateLimited(fn func() int64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
		func() float64 { return float64(fn()) },
	))
}

// RegisterUsageDropped exposes the cumulative count of usage records
// dropped because the recorder's buffer was full.
func (c *Collector) RegisterUsageDropped(fn func() int64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "usage_dropped_records_total",
			Help:      "Total number of usage records dropped due to a full recorder buffer",
		},
		func() float64 { return float64(fn()) },
	))
}

// Registry returns the Prometheus registry used by this collector.
// It backs the /metrics endpoint and accepts additional collectors,
// such as the fleet collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the cardinality limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelValue string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelValue]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelValue]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelValue] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
