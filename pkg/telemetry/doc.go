// Package telemetry provides observability for the Saturn gateway.
//
// # Components
//
//   - metrics: Prometheus metrics collection and the /metrics handler
//
// Request logging lives in pkg/proxy/middleware; the saturn command
// configures the process-wide slog logger from the telemetry section of the
// configuration file.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	handler = collector.Middleware(handler)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package telemetry
