// Package server assembles and runs the gateway.
//
// This package is the top-level orchestrator. It builds the
// process-lifetime components (health registry, discovery, forwarder,
// usage ledger, metrics collector) from a configuration store, applies
// configuration snapshots atomically, and serves the HTTP stack.
//
// # Basic Usage
//
//	store := config.NewStore(configPath, secretsPath)
//	srv, err := server.New(store, slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, SIGTERM or SIGINT
// arrives, or the listener fails, and performs a graceful shutdown on
// the way out: the listener drains within the shutdown timeout, the
// background pollers stop, buffered usage records flush, and the ledger
// store closes.
//
// # Routes
//
//   - POST /v1/chat/completions, /v1/completions, /v1/embeddings -
//     forwarded inference requests (streaming and non-streaming)
//   - GET /v1/models - aggregated model listing across permitted endpoints
//   - GET /health - liveness probe (always 200, unauthenticated)
//   - GET /ready - readiness probe (503 until an endpoint is available)
//   - GET /admin/endpoints, /admin/health, /admin/models, /admin/usage -
//     operator views, admin group required
//   - POST /admin/reload - re-read configuration and secrets from disk
//   - GET /metrics - Prometheus exposition, path configurable
//
// # Middleware Chain
//
// Requests pass through, outermost first: Recovery, RequestID, Logging,
// Metrics, CORS, Auth, RateLimit. Authentication runs inside the
// observability layers so rejected requests are still logged and
// counted; the rate limiter runs innermost because it needs the caller
// identity Auth establishes.
//
// # Configuration Reloads
//
// Reload builds a fresh snapshot from disk and swaps it in atomically:
// new pool, new credential store, retuned breaker and rate limits, new
// service token. In-flight requests keep the snapshot they started
// with. A failed reload leaves the previous snapshot serving. The
// listen address, metrics settings, and usage backend are fixed at
// startup and need a restart to change.
package server
