package metrics

import (
	"time"

	"mercator-hq/saturn/pkg/upstream"

	"github.com/prometheus/client_golang/prometheus"
)

// FleetCollector exposes the point-in-time state of the backend fleet:
// per-endpoint availability and failure counts from the health registry,
// and the number of distinct models discovery currently reports.
//
// State is read at scrape time, so the request path never updates gauges
// and a configuration reload is reflected on the next scrape. The
// endpoints function is called per scrape and must return the current
// pool's endpoints.
type FleetCollector struct {
	health    *upstream.Registry
	discovery *upstream.Discovery
	endpoints func() []*upstream.Endpoint

	availableDesc *prometheus.Desc
	failuresDesc  *prometheus.Desc
	modelsDesc    *prometheus.Desc
}

// NewFleetCollector creates a fleet collector. Register it on the
// collector's registry to include fleet state in /metrics output.
func NewFleetCollector(namespace string, health *upstream.Registry, discovery *upstream.Discovery, endpoints func() []*upstream.Endpoint) *FleetCollector {
	return &FleetCollector{
		health:    health,
		discovery: discovery,
		endpoints: endpoints,

		availableDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "endpoint_available"),
			"Whether the endpoint is eligible for selection (1) or cooling down (0)",
			[]string{"endpoint", "group"}, nil,
		),
		failuresDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "endpoint_failures"),
			"Consecutive failures recorded against the endpoint since its last success",
			[]string{"endpoint", "group"}, nil,
		),
		modelsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "discovered_models"),
			"Number of distinct models reported by endpoint discovery",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (fc *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- fc.availableDesc
	ch <- fc.failuresDesc
	ch <- fc.modelsDesc
}

// Collect implements prometheus.Collector.
func (fc *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	now := time.Now()

	for _, endpoint := range fc.endpoints() {
		key := endpoint.Key()

		available := 0.0
		if fc.health.IsAvailable(key, now) {
			available = 1.0
		}

		ch <- prometheus.MustNewConstMetric(
			fc.availableDesc, prometheus.GaugeValue, available, key, endpoint.Group.Name,
		)
		ch <- prometheus.MustNewConstMetric(
			fc.failuresDesc, prometheus.GaugeValue, float64(fc.health.Failures(key)), key, endpoint.Group.Name,
		)
	}

	models := make(map[string]struct{})
	for _, info := range fc.discovery.Entries() {
		models[info.ID] = struct{}{}
	}
	ch <- prometheus.MustNewConstMetric(
		fc.modelsDesc, prometheus.GaugeValue, float64(len(models)),
	)
}
