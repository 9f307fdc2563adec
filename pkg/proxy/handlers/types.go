package handlers

import (
	"context"
	"time"

	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/upstream"
	"mercator-hq/saturn/pkg/usage"
)

// Runtime is the handlers' view of the running gateway. Snapshot-derived
// objects (Pool, Settings) change on configuration reload; the rest live
// for the process lifetime.
type Runtime interface {
	// Pool returns the endpoint pool for the current configuration.
	Pool() *upstream.Pool

	// Selector returns the rotation-aware candidate selector.
	Selector() *routing.Selector

	// Forwarder returns the backend forwarder.
	Forwarder() *proxy.Forwarder

	// Health returns the endpoint health registry.
	Health() *upstream.Registry

	// Discovery returns the model discovery cache.
	Discovery() *upstream.Discovery

	// Usage returns the usage ledger recorder.
	Usage() *usage.Recorder

	// Settings returns the forwarding knobs for the current configuration.
	Settings() Settings

	// Reload re-reads configuration and secrets from disk and applies
	// them as a new snapshot.
	Reload(ctx context.Context) error
}

// Settings carries the per-snapshot forwarding knobs handlers need.
type Settings struct {
	// RequestTimeout bounds a single forward attempt.
	RequestTimeout time.Duration

	// ServiceToken replaces caller Authorization headers on outbound
	// requests when non-empty.
	ServiceToken string

	// ModelOwner is the owned_by attribution for aggregated model
	// listings.
	ModelOwner string

	// MaxFailures is the upper bound on forward attempts per request.
	MaxFailures int
}
