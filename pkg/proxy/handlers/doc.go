// Package handlers provides HTTP request handlers for the gateway.
//
// This package implements all HTTP endpoint handlers: completion-style
// forwarding, model listing, health probes, and the operator surface under
// /admin. Each handler receives the gateway Runtime, which exposes the
// current configuration snapshot plus the long-lived routing machinery.
//
// # Handler Types
//
// Forwarding:
//   - CompletionsHandler: POST /v1/chat/completions, /v1/completions, and
//     /v1/embeddings, relayed to the backend fleet with retry across
//     candidates
//
// Listing:
//   - ModelsHandler: GET /v1/models, aggregated from discovered backend
//     models visible to the caller's groups
//
// Health checks:
//   - HealthHandler: liveness probe (always returns 200)
//   - ReadyHandler: readiness probe (checks that some endpoint is not
//     cooling down)
//
// Operator surface (admin group required):
//   - AdminHandler.Endpoints: fleet view with circuit state per endpoint
//   - AdminHandler.Health: raw circuit-breaker snapshot
//   - AdminHandler.Models: discovery cache by endpoint
//   - AdminHandler.Usage: recent usage ledger records
//   - AdminHandler.Reload: apply configuration changes without restart
//
// # Request Flow
//
// The completions handler follows the forwarding pipeline:
//
//  1. Read and buffer the request body (bounded)
//  2. Decode the model name and stream flag; everything else is opaque
//  3. Select candidate endpoints for the caller's groups and model
//  4. Attempt candidates in rotation order until one answers or the
//     attempt budget is spent
//  5. Stream the winning response back verbatim, or synthesize an error
//     envelope describing the last failure
//
// # Error Handling
//
// All gateway-originated errors use the OpenAI-compatible format:
//
//	{
//	  "error": {
//	    "message": "no available backend for model llama-3-8b: all permitted endpoints are cooling down",
//	    "type": "service_unavailable",
//	    "code": "no_available_backend"
//	  }
//	}
//
// # Health Checks
//
// Health check endpoints are designed for Kubernetes liveness/readiness
// probes:
//
//	livenessProbe:
//	  httpGet:
//	    path: /health
//	    port: 8000
//
//	readinessProbe:
//	  httpGet:
//	    path: /ready
//	    port: 8000
//
// Both are exempt from authentication.
package handlers
