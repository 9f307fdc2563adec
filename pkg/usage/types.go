package usage

import (
	"context"
	"time"
)

// Record is a single usage ledger entry describing one completed (or
// failed) proxy request. Records identify callers only by token digest;
// raw token values are never stored.
type Record struct {
	// ID is a unique identifier for this record.
	ID string `json:"id"`

	// Time is when the gateway started handling the request.
	Time time.Time `json:"time"`

	// RequestID correlates the record with log lines for the same request.
	RequestID string `json:"request_id"`

	// TokenDigest identifies the caller's token without revealing it.
	TokenDigest string `json:"token_digest"`

	// Groups are the caller's resolved groups at request time.
	Groups []string `json:"groups"`

	// Model is the model the caller asked for, if the request body
	// carried one.
	Model string `json:"model,omitempty"`

	// Endpoint is the backend that served the request. Empty when no
	// attempt succeeded.
	Endpoint string `json:"endpoint,omitempty"`

	// Route is the gateway path the request arrived on.
	Route string `json:"route"`

	// Status is the HTTP status returned to the caller.
	Status int `json:"status"`

	// Attempts is how many backends were tried.
	Attempts int `json:"attempts"`

	// Stream reports whether the caller asked for a streaming response.
	Stream bool `json:"stream"`

	// LatencyMS is the total time spent handling the request.
	LatencyMS int64 `json:"latency_ms"`
}

// Query filters a ledger read. Zero-valued fields are ignored, so an
// empty Query matches every record.
type Query struct {
	// Model restricts results to records for one model.
	Model string

	// Group restricts results to callers resolved into the given group.
	Group string

	// Since excludes records older than the given time.
	Since time.Time

	// Limit caps the number of returned records. Non-positive selects
	// the backend default.
	Limit int
}

// Matches reports whether the record satisfies every set filter.
func (q Query) Matches(rec Record) bool {
	if q.Model != "" && rec.Model != q.Model {
		return false
	}
	if !q.Since.IsZero() && rec.Time.Before(q.Since) {
		return false
	}
	if q.Group != "" {
		for _, group := range rec.Groups {
			if group == q.Group {
				return true
			}
		}
		return false
	}
	return true
}

// Store defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert persists a usage record.
	Insert(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Query returns records matching the filters, newest first.
	Query(ctx context.Context, q Query) ([]Record, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// DeleteBefore removes records older than cutoff and returns how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest removes the n oldest records and returns how many
	// were removed.
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}
