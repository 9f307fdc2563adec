package routing

import (
	"sync/atomic"
	"time"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/upstream"
)

// counterResetThreshold bounds the rotation counter. It is reset via
// CompareAndSwap past this value to prevent unbounded growth.
const counterResetThreshold = 1_000_000_000

// ModelSource reports which model an endpoint is known to serve.
// The second return is false when the endpoint's model is unknown, in
// which case the endpoint remains a routing candidate.
type ModelSource interface {
	ModelFor(key string) (string, bool)
}

// Selector computes the ordered candidate list for one request: the
// endpoints the caller's groups permit, filtered by requested model and
// circuit breaker state, rotated so consecutive requests spread across
// the fleet.
//
// The selector is thread-safe: the only mutable state is an atomic
// rotation counter. The counter lives for the process lifetime, so a
// configuration reload does not disturb the rotation sequence.
type Selector struct {
	health  *upstream.Registry
	models  ModelSource
	counter atomic.Int64
}

// NewSelector creates a selector reading breaker state from health and
// model associations from models.
func NewSelector(health *upstream.Registry, models ModelSource) *Selector {
	return &Selector{
		health: health,
		models: models,
	}
}

// Candidates returns the endpoints eligible for the request, in the
// order they should be attempted.
//
// Filtering runs in three stages. Group eligibility first: if no host
// group permits the caller, the request fails with GroupNotAllowedError
// regardless of model or breaker state. Then endpoints known to serve a
// different model are dropped; endpoints with an unknown model stay.
// Finally endpoints inside a cooldown window are dropped. An empty
// result after those two filters is a NoAvailableBackendError.
//
// The surviving list is rotated by a monotonic counter so consecutive
// requests start at successive offsets. Failure counts never influence
// the order; they only gate exclusion.
func (s *Selector) Candidates(pool *upstream.Pool, model string, identity *auth.Identity, now time.Time) ([]*upstream.Endpoint, error) {
	eligible := pool.EndpointsForGroups(identity.Groups, identity.Admin)
	if len(eligible) == 0 {
		return nil, &auth.GroupNotAllowedError{Groups: identity.Groups}
	}

	serving := 0
	var candidates []*upstream.Endpoint
	for _, ep := range eligible {
		if model != "" {
			if served, known := s.models.ModelFor(ep.Key()); known && served != model {
				continue
			}
		}
		serving++
		if !s.health.IsAvailable(ep.Key(), now) {
			continue
		}
		candidates = append(candidates, ep)
	}

	if len(candidates) == 0 {
		reason := "all permitted endpoints are cooling down"
		if serving == 0 {
			reason = "no permitted endpoint serves the model"
		}
		return nil, &upstream.NoAvailableBackendError{Model: model, Reason: reason}
	}

	return s.rotate(candidates), nil
}

// rotate orders candidates starting at the offset picked by the
// rotation counter, wrapping around cyclically.
func (s *Selector) rotate(candidates []*upstream.Endpoint) []*upstream.Endpoint {
	count := s.counter.Add(1) - 1

	// Reset on overflow to keep the counter in a reasonable range.
	if count >= counterResetThreshold {
		s.counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	offset := int(count % int64(len(candidates)))
	if offset == 0 {
		return candidates
	}

	rotated := make([]*upstream.Endpoint, 0, len(candidates))
	rotated = append(rotated, candidates[offset:]...)
	rotated = append(rotated, candidates[:offset]...)
	return rotated
}

// Reset zeroes the rotation counter. This is primarily used for
// testing.
func (s *Selector) Reset() {
	s.counter.Store(0)
}
