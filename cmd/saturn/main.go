// Saturn is an OpenAI-compatible request-routing gateway for vLLM fleets.
//
// It sits in front of self-hosted vLLM backends and provides:
//   - Bearer-token authentication with group-based access control
//   - Round-robin routing across host groups of vLLM endpoints
//   - Per-endpoint failure tracking with cooldown-based circuit breaking
//   - Streaming passthrough of chat and legacy completions
//   - Aggregated model listing across the fleet
//
// Usage:
//
//	# Start the gateway with default configuration
//	saturn run
//
//	# Start with a custom configuration file
//	saturn run --config /etc/saturn/config.yaml
//
//	# Validate configuration and secrets without starting
//	saturn validate
//
//	# Show version information
//	saturn version
//
// For complete documentation, see: https://github.com/mercator-hq/saturn
package main

func main() {
	Execute()
}
