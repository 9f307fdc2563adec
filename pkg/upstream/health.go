package upstream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Registry tracks per-endpoint failure state for circuit breaking.
//
// Records are keyed by the endpoint's "hostname:port" identity, created
// on first report, and kept for the process lifetime, so breaker state
// survives configuration reloads. Threshold and cooldown are held in
// atomics and may be retuned on reload without touching the records.
//
// Reports and availability checks are short atomic operations; no lock
// is ever held across network I/O.
type Registry struct {
	maxFailures atomic.Int64
	cooldown    atomic.Int64 // nanoseconds

	mu       sync.RWMutex
	records  map[string]*healthRecord
	observer Observer

	logger *slog.Logger
}

// Observer receives breaker events as they are reported. Implementations
// must be safe for concurrent use and must not block; the metrics
// collector is the expected implementation.
type Observer interface {
	// Attempt is called once per reported call with its outcome.
	Attempt(key string, success bool)

	// CooldownOpened is called when a failure report crosses the
	// threshold and starts a cooldown window.
	CooldownOpened(key string)
}

type healthRecord struct {
	failures      atomic.Int64
	cooldownUntil atomic.Int64 // unix nanoseconds, 0 when no cooldown is set
}

// HealthStatus is a point-in-time view of one endpoint's breaker state.
type HealthStatus struct {
	// Failures is the consecutive failure count since the last success.
	Failures int64 `json:"failures"`

	// Available reports whether the endpoint is currently eligible for
	// selection.
	Available bool `json:"available"`

	// CooldownUntil is when the current cooldown window ends. Zero when
	// no cooldown has been set since the last success.
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
}

// NewRegistry creates a registry with the given failure threshold and
// cooldown window. A nil logger falls back to slog.Default.
func NewRegistry(maxFailures int, cooldown time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		records: make(map[string]*healthRecord),
		logger:  logger.With("component", "health"),
	}
	r.SetLimits(maxFailures, cooldown)
	return r
}

// SetLimits retunes the failure threshold and cooldown window. Existing
// failure counts and cooldown windows are preserved.
func (r *Registry) SetLimits(maxFailures int, cooldown time.Duration) {
	r.maxFailures.Store(int64(maxFailures))
	r.cooldown.Store(int64(cooldown))
}

// SetObserver installs an observer for breaker events. Install during
// startup, before the registry receives traffic.
func (r *Registry) SetObserver(obs Observer) {
	r.mu.Lock()
	r.observer = obs
	r.mu.Unlock()
}

// ReportSuccess records a successful call to the endpoint: the failure
// count returns to zero and any cooldown window is cleared.
func (r *Registry) ReportSuccess(key string) {
	rec := r.record(key)
	hadFailures := rec.failures.Swap(0) > 0
	rec.cooldownUntil.Store(0)
	if hadFailures {
		r.logger.Debug("endpoint recovered", "endpoint", key)
	}
	if obs := r.currentObserver(); obs != nil {
		obs.Attempt(key, true)
	}
}

// ReportFailure records a failed call to the endpoint. Crossing the
// failure threshold opens the circuit: a cooldown window starts and the
// endpoint is excluded from selection until the window elapses. The
// count is not reset when the window elapses, only by a success, so an
// endpoint that keeps failing after cooldown reopens immediately.
func (r *Registry) ReportFailure(key string) {
	rec := r.record(key)
	obs := r.currentObserver()

	failures := rec.failures.Add(1)
	if failures >= r.maxFailures.Load() {
		until := time.Now().Add(time.Duration(r.cooldown.Load()))
		rec.cooldownUntil.Store(until.UnixNano())
		r.logger.Warn("endpoint cooling down after repeated failures",
			"endpoint", key,
			"failures", failures,
			"until", until,
		)
		if obs != nil {
			obs.CooldownOpened(key)
		}
	}
	if obs != nil {
		obs.Attempt(key, false)
	}
}

// IsAvailable reports whether the endpoint may be selected at the given
// time. An endpoint is unavailable only while inside a cooldown window;
// once the window has elapsed the very next forwarded request acts as
// the health probe.
func (r *Registry) IsAvailable(key string, now time.Time) bool {
	r.mu.RLock()
	rec, ok := r.records[key]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	until := rec.cooldownUntil.Load()
	return until == 0 || now.UnixNano() >= until
}

// Failures returns the current consecutive failure count for the
// endpoint, zero if it has never been reported.
func (r *Registry) Failures(key string) int64 {
	r.mu.RLock()
	rec, ok := r.records[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return rec.failures.Load()
}

// Snapshot returns the breaker state of every tracked endpoint.
func (r *Registry) Snapshot(now time.Time) map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthStatus, len(r.records))
	for key, rec := range r.records {
		status := HealthStatus{
			Failures:  rec.failures.Load(),
			Available: true,
		}
		if until := rec.cooldownUntil.Load(); until != 0 {
			status.CooldownUntil = time.Unix(0, until)
			status.Available = now.UnixNano() >= until
		}
		out[key] = status
	}
	return out
}

func (r *Registry) currentObserver() Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observer
}

func (r *Registry) record(key string) *healthRecord {
	r.mu.RLock()
	rec, ok := r.records[key]
	r.mu.RUnlock()
	if ok {
		return rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok = r.records[key]; ok {
		return rec
	}
	rec = &healthRecord{}
	r.records[key] = rec
	return rec
}
