// Package metrics provides Prometheus metrics for the gateway.
//
// # Overview
//
// The Collector registers every metric on a single registry and exposes
// recording methods for the pieces of the gateway that produce signal:
// the HTTP middleware records request counts and durations, the upstream
// health registry reports per-attempt outcomes and cooldown openings
// through its observer hook, and the rate limiter and usage recorder
// publish their rejection and drop counters as scrape-time functions.
//
// The FleetCollector complements the counters with point-in-time fleet
// state. It implements prometheus.Collector and reads the health registry
// and discovery cache at scrape time, so per-endpoint availability gauges
// track configuration reloads without any bookkeeping on the request path.
//
// # Metrics
//
//	saturn_requests_total{route,status}         counter
//	saturn_request_duration_seconds{route}      histogram
//	saturn_upstream_attempts_total{endpoint,outcome} counter
//	saturn_endpoint_cooldowns_total{endpoint}   counter
//	saturn_rate_limited_total                   counter
//	saturn_usage_dropped_records_total          counter
//	saturn_endpoint_available{endpoint,group}   gauge
//	saturn_endpoint_failures{endpoint,group}    gauge
//	saturn_discovered_models                    gauge
//
// The namespace follows the configuration and defaults to "saturn".
//
// # Cardinality
//
// Route labels come from request paths, so the collector caps the number
// of distinct routes and folds the overflow into "other". Endpoint labels
// are bounded by the configured fleet and need no cap.
package metrics
