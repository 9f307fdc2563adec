package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/config"
)

// ModelInfo is one model as reported by a backend's model listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// Discovery learns which model each endpoint serves by polling the
// backends' /v1/models listing. Each vLLM instance serves exactly one
// model, so the first entry of the listing identifies the endpoint.
//
// Entries expire after the configured TTL. An endpoint with no fresh
// entry is treated as serving an unknown model and remains a routing
// candidate; routing never blocks on a probe.
type Discovery struct {
	client   *http.Client
	health   *Registry
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	ttl      time.Duration

	mu    sync.RWMutex
	token string
	cache map[string]cacheEntry
}

type cacheEntry struct {
	info    ModelInfo
	fetched time.Time
}

// NewDiscovery creates a poller using the given settings. The health
// registry is consulted read-only so endpoints in cooldown are not
// probed. A nil logger falls back to slog.Default.
func NewDiscovery(cfg config.DiscoveryConfig, health *Registry, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		client:   &http.Client{Timeout: cfg.Timeout},
		health:   health,
		logger:   logger.With("component", "discovery"),
		interval: cfg.RefreshInterval,
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		cache:    make(map[string]cacheEntry),
	}
}

// SetServiceToken sets the bearer token presented to backends when
// probing. An empty token sends no Authorization header.
func (d *Discovery) SetServiceToken(token string) {
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()
}

// Run polls until the context is cancelled. The endpoints function is
// consulted on every cycle, so a configuration reload that changes the
// fleet takes effect without restarting the poller.
func (d *Discovery) Run(ctx context.Context, endpoints func() []*Endpoint) {
	d.logger.Info("model discovery started", "interval", d.interval, "cache_ttl", d.ttl)

	d.Refresh(ctx, endpoints())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("model discovery stopped")
			return
		case <-ticker.C:
			d.Refresh(ctx, endpoints())
		}
	}
}

// Refresh probes every endpoint whose cache entry is missing or stale.
// Endpoints currently in cooldown are skipped. Probes run concurrently
// and Refresh returns when all have finished.
func (d *Discovery) Refresh(ctx context.Context, endpoints []*Endpoint) {
	now := time.Now()

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		ep := ep
		if !d.health.IsAvailable(ep.Key(), now) {
			continue
		}
		if d.freshAt(ep.Key(), now) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.probe(ctx, ep)
		}()
	}
	wg.Wait()
}

// ModelFor returns the model ID the endpoint is known to serve. The
// second return is false when no fresh entry exists, meaning the
// endpoint's model is unknown.
func (d *Discovery) ModelFor(key string) (string, bool) {
	info, ok := d.InfoFor(key)
	return info.ID, ok
}

// freshAt reports whether the endpoint has a cache entry newer than
// the TTL at the given instant.
func (d *Discovery) freshAt(key string, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.cache[key]
	return ok && now.Sub(entry.fetched) < d.ttl
}

// InfoFor returns the fresh model entry for the endpoint, if any.
func (d *Discovery) InfoFor(key string) (ModelInfo, bool) {
	now := time.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.cache[key]
	if !ok || now.Sub(entry.fetched) >= d.ttl {
		return ModelInfo{}, false
	}
	return entry.info, true
}

// Entries returns every fresh cache entry keyed by endpoint.
func (d *Discovery) Entries() map[string]ModelInfo {
	now := time.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]ModelInfo, len(d.cache))
	for key, entry := range d.cache {
		if now.Sub(entry.fetched) < d.ttl {
			out[key] = entry.info
		}
	}
	return out
}

func (d *Discovery) probe(ctx context.Context, ep *Endpoint) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL("/v1/models"), nil)
	if err != nil {
		d.logger.Debug("model probe request failed", "endpoint", ep.Key(), "error", err)
		return
	}
	d.mu.RLock()
	token := d.token
	d.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("model probe failed", "endpoint", ep.Key(), "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Debug("model probe rejected", "endpoint", ep.Key(), "status", resp.StatusCode)
		return
	}

	var list modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		d.logger.Debug("model probe returned malformed listing", "endpoint", ep.Key(), "error", err)
		return
	}
	if len(list.Data) == 0 {
		d.logger.Debug("model probe returned empty listing", "endpoint", ep.Key())
		return
	}

	info := list.Data[0]
	d.mu.Lock()
	previous, existed := d.cache[ep.Key()]
	d.cache[ep.Key()] = cacheEntry{info: info, fetched: time.Now()}
	d.mu.Unlock()

	if !existed || previous.info.ID != info.ID {
		d.logger.Info("endpoint model discovered", "endpoint", ep.Key(), "model", info.ID)
	}
}

// String describes the poller settings for startup logging.
func (d *Discovery) String() string {
	return fmt.Sprintf("discovery(interval=%s, timeout=%s, ttl=%s)", d.interval, d.timeout, d.ttl)
}
