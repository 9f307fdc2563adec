/*
Package upstream models the backend fleet Saturn routes to.

A Pool expands the configured host groups into concrete endpoints, one
per port in each group's range. Pools are immutable; reloads build a
new pool and swap it in whole.

The Registry is the circuit breaker: it counts consecutive failures per
endpoint and excludes an endpoint from selection for a cooldown window
once the failure threshold is crossed. Records are keyed by address, so
breaker state carries across configuration reloads. There is no
synthetic probing; after a cooldown elapses, the next real request is
the probe.

Discovery polls each endpoint's OpenAI model listing in the background
and caches which model it serves. Routing consults the cache without
blocking; endpoints whose model is unknown stay eligible.
*/
package upstream
