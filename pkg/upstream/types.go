package upstream

import (
	"fmt"

	"mercator-hq/saturn/pkg/config"
)

// HostGroup is one configured backend cluster: a hostname whose
// contiguous port range expands to a set of serving endpoints, plus the
// caller groups allowed to use it.
type HostGroup struct {
	// Name identifies the host group in logs and admin listings.
	Name string

	// Hostname is the shared host of every endpoint in the group.
	Hostname string

	// AllowedGroups are the caller groups permitted to route here.
	AllowedGroups []string
}

// Allows reports whether any of the caller's groups is on this host
// group's allow-list. Administrative callers bypass this check at the
// pool level.
func (g *HostGroup) Allows(groups []string) bool {
	for _, allowed := range g.AllowedGroups {
		for _, have := range groups {
			if allowed == have {
				return true
			}
		}
	}
	return false
}

// Endpoint is one concrete serving instance within a host group,
// identified by (hostname, port).
type Endpoint struct {
	// Group is the owning host group.
	Group *HostGroup

	// Hostname and Port address the instance.
	Hostname string
	Port     int

	baseURL string
}

// Key returns the stable "hostname:port" identity of the endpoint.
// Health records and discovery entries are keyed by it, so endpoint
// state survives configuration reloads that keep the same address.
func (e *Endpoint) Key() string {
	return fmt.Sprintf("%s:%d", e.Hostname, e.Port)
}

// BaseURL returns "scheme://hostname:port" without a trailing slash.
func (e *Endpoint) BaseURL() string {
	return e.baseURL
}

// URL joins the endpoint base with a request path.
func (e *Endpoint) URL(path string) string {
	if path == "" {
		return e.baseURL
	}
	if path[0] != '/' {
		return e.baseURL + "/" + path
	}
	return e.baseURL + path
}

// Pool is the expanded, immutable view of the configured backend fleet.
// A configuration reload builds a new pool and swaps it in whole;
// in-flight requests keep the pool they started with.
type Pool struct {
	groups    []*HostGroup
	endpoints []*Endpoint
}

// NewPool expands every configured host group into its endpoints.
// Expansion order is deterministic: host groups in configuration order,
// ports ascending within each group.
func NewPool(cfg config.UpstreamConfig) *Pool {
	pool := &Pool{}
	for _, hg := range cfg.HostGroups {
		group := &HostGroup{
			Name:          hg.Name,
			Hostname:      hg.Hostname,
			AllowedGroups: append([]string(nil), hg.AllowedGroups...),
		}
		pool.groups = append(pool.groups, group)

		for port := hg.Ports.Start; port <= hg.Ports.End; port++ {
			pool.endpoints = append(pool.endpoints, &Endpoint{
				Group:    group,
				Hostname: hg.Hostname,
				Port:     port,
				baseURL:  fmt.Sprintf("%s://%s:%d", cfg.Scheme, hg.Hostname, port),
			})
		}
	}
	return pool
}

// Endpoints returns all endpoints in expansion order. The returned
// slice is shared; callers must not modify it.
func (p *Pool) Endpoints() []*Endpoint {
	return p.endpoints
}

// Groups returns the host groups in configuration order.
func (p *Pool) Groups() []*HostGroup {
	return p.groups
}

// Size returns the total number of endpoints.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// EndpointsForGroups returns the endpoints the caller may use, in
// expansion order. Admin callers see every endpoint; other callers see
// only endpoints whose host group allow-list intersects their groups.
func (p *Pool) EndpointsForGroups(groups []string, admin bool) []*Endpoint {
	if admin {
		return p.endpoints
	}
	var eligible []*Endpoint
	for _, ep := range p.endpoints {
		if ep.Group.Allows(groups) {
			eligible = append(eligible, ep)
		}
	}
	return eligible
}
