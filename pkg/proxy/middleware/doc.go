// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions that handle common
// functionality across all HTTP requests: request ID generation, logging,
// CORS, panic recovery, bearer-token authentication, and per-caller rate
// limiting.
//
// # Middleware Chain
//
// Middleware functions are chained in a specific order:
//
//	handler = Recovery(RequestID(Logging(CORS(Auth(RateLimit(handler))))))
//
// Order (innermost to outermost):
//  1. RateLimit: Reject callers that exceed their request rate
//  2. Auth: Resolve the bearer token to an identity
//  3. CORS: Add Cross-Origin Resource Sharing headers
//  4. Logging: Log request/response details
//  5. RequestID: Generate and propagate request ID
//  6. Recovery: Recover from panics
//
// Auth runs inside logging so rejected requests still produce a completion
// log line; rate limiting runs inside auth because it keys on the resolved
// identity's token digest.
//
// # Authentication
//
// AuthMiddleware extracts the bearer token from the Authorization header
// and resolves it against the current credential snapshot. Requests without
// a valid token end with 401 before any backend is contacted. Health and
// metrics paths are exempted so probes need no credentials. The resolved
// identity travels in the request context:
//
//	identity := middleware.GetIdentity(r.Context())
//
// Raw token values are never stored in the context or logged; log lines
// carry the token digest instead.
//
// # Rate Limiting
//
// RateLimiter applies a token-bucket limit per caller (sustained
// requests-per-second plus burst). Callers over their limit receive 429
// with a Retry-After header in OpenAI error format.
//
// # Request ID
//
// RequestIDMiddleware generates a unique hex ID for each request unless
// the client supplied its own X-Request-ID:
//
//	X-Request-ID: a1b2c3d4e5f60718293a4b5c6d7e8f90
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request
// details:
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/chat/completions",
//	  "status": 200,
//	  "latency_ms": 1250,
//	  "request_id": "a1b2c3d4..."
//	}
//
// # Recovery
//
// RecoveryMiddleware catches panics in handlers and converts them to HTTP
// 500 errors in OpenAI error format. The panic stack trace is logged but
// not exposed to clients.
//
// # Thread Safety
//
// All middleware functions are thread-safe and can be called concurrently
// from multiple goroutines.
package middleware
