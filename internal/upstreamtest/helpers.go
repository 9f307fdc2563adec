package upstreamtest

import (
	"testing"
	"time"

	"mercator-hq/saturn/pkg/config"
)

// HostGroupFor builds a single-endpoint host group pointing at the
// backend. httptest picks random ports, so multi-endpoint fleets in
// tests are modelled as several single-port host groups.
func HostGroupFor(name string, b *Backend, allowedGroups ...string) config.HostGroupConfig {
	return config.HostGroupConfig{
		Name:          name,
		Hostname:      b.Host(),
		Ports:         config.PortRange{Start: b.Port(), End: b.Port()},
		AllowedGroups: allowedGroups,
	}
}

// UpstreamConfigFor builds an upstream configuration covering the given
// host groups, with test-friendly breaker settings.
func UpstreamConfigFor(hostGroups ...config.HostGroupConfig) config.UpstreamConfig {
	return config.UpstreamConfig{
		Scheme:         "http",
		HostGroups:     hostGroups,
		ModelOwner:     "saturn-test",
		MaxFailures:    3,
		CooldownPeriod: time.Minute,
		RequestTimeout: 2 * time.Second,
	}
}

// WaitForCondition polls until the condition holds or the timeout
// elapses.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}
		<-ticker.C
	}
}
