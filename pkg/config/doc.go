// Package config provides configuration management for the Saturn gateway.
//
// Configuration lives in two YAML files: the main configuration file
// (server, upstream fleet, discovery, telemetry, usage) and a secrets file
// (token-to-group mapping plus the upstream service token). Both are loaded
// into an immutable Snapshot held by a Store and swapped atomically on
// reload, so in-flight requests always observe a consistent view.
//
// # Loading
//
//	store := config.NewStore("config.yaml", "")
//	snap, err := store.Load()
//
// Load reads the files, applies defaults, applies SATURN_* environment
// variable overrides, and validates. A failed reload leaves the previous
// snapshot in place.
//
// # Environment variable overrides
//
// Variables follow the naming convention SATURN_SECTION_FIELD:
//
//   - SATURN_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SATURN_UPSTREAM_MAX_FAILURES overrides upstream.max_failures
//   - SATURN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Watching
//
// FileWatcher observes both files through their parent directories and
// drives Store reloads with debouncing, so editor rename-replace saves
// trigger exactly one reload.
package config
