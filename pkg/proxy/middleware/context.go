package middleware

import (
	"context"

	"mercator-hq/saturn/pkg/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys for storing values in request context.
const (
	// RequestIDKey stores the unique request ID.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// IdentityKey stores the authenticated caller's identity.
	IdentityKey contextKey = "identity"

	// ModelKey stores the requested model name once the handler has
	// decoded it.
	ModelKey contextKey = "model"
)

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the authenticated identity from the context.
// Returns nil when the request was not authenticated.
func GetIdentity(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(IdentityKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}
