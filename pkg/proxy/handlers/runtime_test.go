package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/saturn/internal/upstreamtest"
	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/proxy/middleware"
	"mercator-hq/saturn/pkg/proxy/types"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/upstream"
	"mercator-hq/saturn/pkg/usage"
	"mercator-hq/saturn/pkg/usage/storage"
)

// stubRuntime satisfies Runtime with real routing, health, and
// forwarding components pointed at scripted backends. Settings and
// reload behavior are controlled per test.
type stubRuntime struct {
	pool      *upstream.Pool
	selector  *routing.Selector
	forwarder *proxy.Forwarder
	health    *upstream.Registry
	discovery *upstream.Discovery
	recorder  *usage.Recorder
	settings  Settings

	reloadErr error
	reloads   atomic.Int64
}

func (s *stubRuntime) Pool() *upstream.Pool           { return s.pool }
func (s *stubRuntime) Selector() *routing.Selector    { return s.selector }
func (s *stubRuntime) Forwarder() *proxy.Forwarder    { return s.forwarder }
func (s *stubRuntime) Health() *upstream.Registry     { return s.health }
func (s *stubRuntime) Discovery() *upstream.Discovery { return s.discovery }
func (s *stubRuntime) Usage() *usage.Recorder         { return s.recorder }
func (s *stubRuntime) Settings() Settings             { return s.settings }

func (s *stubRuntime) Reload(ctx context.Context) error {
	s.reloads.Add(1)
	return s.reloadErr
}

// newTestRuntime builds a runtime over the given backends, each in its
// own host group allowed to the "research" group.
func newTestRuntime(t *testing.T, backends ...*upstreamtest.Backend) *stubRuntime {
	t.Helper()

	groups := make([]config.HostGroupConfig, len(backends))
	for i, b := range backends {
		groups[i] = upstreamtest.HostGroupFor(fmt.Sprintf("pool-%d", i), b, "research")
	}
	cfg := upstreamtest.UpstreamConfigFor(groups...)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := upstream.NewRegistry(cfg.MaxFailures, cfg.CooldownPeriod, logger)
	discovery := upstream.NewDiscovery(config.DiscoveryConfig{
		Timeout:  time.Second,
		CacheTTL: time.Minute,
	}, health, logger)

	recorder := usage.NewRecorder(storage.NewMemoryStore(0), &usage.Config{
		Enabled:      true,
		Buffer:       16,
		WriteTimeout: time.Second,
	})
	t.Cleanup(func() { _ = recorder.Close() })

	return &stubRuntime{
		pool:      upstream.NewPool(cfg),
		selector:  routing.NewSelector(health, discovery),
		forwarder: proxy.NewForwarder(health, logger),
		health:    health,
		discovery: discovery,
		recorder:  recorder,
		settings: Settings{
			RequestTimeout: cfg.RequestTimeout,
			ServiceToken:   "svc-test-token",
			ModelOwner:     cfg.ModelOwner,
			MaxFailures:    cfg.MaxFailures,
		},
	}
}

func researcherIdentity() *auth.Identity {
	return &auth.Identity{TokenDigest: "digest-research", Groups: []string{"research"}}
}

func adminIdentity() *auth.Identity {
	return &auth.Identity{TokenDigest: "digest-admin", Groups: []string{"platform"}, Admin: true}
}

// authedRequest builds a request carrying the identity the auth
// middleware would have attached. A nil identity leaves the context
// bare.
func authedRequest(method, target string, identity *auth.Identity, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
	}
	return req
}

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorDetail {
	t.Helper()

	var envelope types.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return envelope.Error
}
