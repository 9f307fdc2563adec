package config

import "time"

// Config is the root configuration structure for the Saturn gateway.
// It is loaded from a YAML file with optional environment variable overrides.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Upstream describes the backend fleet and circuit-breaker settings.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Auth contains authentication settings.
	Auth AuthConfig `yaml:"auth"`

	// Discovery contains model discovery settings.
	Discovery DiscoveryConfig `yaml:"discovery"`

	// RateLimit contains per-token rate limiting settings.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Usage contains usage ledger settings.
	Usage UsageConfig `yaml:"usage"`

	// Watch enables automatic reload when the configuration or secrets
	// file changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`
}

// ServerConfig contains HTTP server settings. The gateway listens on plain
// HTTP; TLS termination belongs to the edge proxy in front of it.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "0.0.0.0:8000").
	// Default: "127.0.0.1:8000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Streaming completions can run long, so this must exceed the
	// full retry budget (max_failures x request_timeout).
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are dropped.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing settings.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) settings.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. Use ["*"] to allow all
	// origins (not recommended for production).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers exposed to browsers.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// UpstreamConfig describes the backend fleet and the circuit-breaker and
// retry settings applied to it.
type UpstreamConfig struct {
	// Scheme is the URL scheme for outbound calls.
	// Default: "http"
	Scheme string `yaml:"scheme"`

	// HostGroups is the list of backend host groups. Each group expands
	// to one endpoint per port in its range.
	HostGroups []HostGroupConfig `yaml:"host_groups"`

	// ModelOwner is the attribution label attached to aggregated model
	// listings (the owned_by field).
	// Default: "saturn"
	ModelOwner string `yaml:"model_owner"`

	// MaxFailures is the consecutive failure threshold that opens an
	// endpoint's cooldown, and the upper bound on forwarding attempts per
	// inbound request.
	// Default: 3
	MaxFailures int `yaml:"max_failures"`

	// CooldownPeriod is how long a tripped endpoint stays out of rotation.
	// Default: 5m
	CooldownPeriod time.Duration `yaml:"cooldown_period"`

	// RequestTimeout is the deadline for a single outbound attempt.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// HostGroupConfig describes one backend cluster: a shared hostname, a
// contiguous port range, and the caller groups allowed to use it.
type HostGroupConfig struct {
	// Name identifies the group in logs and admin output. Optional;
	// defaults to the hostname.
	Name string `yaml:"name"`

	// Hostname is the shared host for every endpoint in the group.
	Hostname string `yaml:"hostname"`

	// Ports is the inclusive port range. start=8000 end=8003 expands to
	// four endpoints.
	Ports PortRange `yaml:"ports"`

	// AllowedGroups is the set of caller groups permitted to reach this
	// host group. Admin groups bypass this check.
	AllowedGroups []string `yaml:"allowed_groups"`
}

// PortRange is an inclusive [Start, End] port interval.
type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Count returns the number of ports in the range.
func (r PortRange) Count() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	// SecretsFile is the path to the secrets YAML file holding the
	// token-to-group mapping and the upstream service token.
	// Default: "secrets.yaml"
	SecretsFile string `yaml:"secrets_file"`

	// AdminGroups is the set of caller groups exempt from host group
	// allow-list checks. Admin callers may also use /admin endpoints.
	// Default: ["admin"]
	AdminGroups []string `yaml:"admin_groups"`
}

// DiscoveryConfig contains model discovery settings. The gateway polls each
// endpoint's /v1/models to learn which model it serves.
type DiscoveryConfig struct {
	// Enabled controls whether background discovery runs.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// RefreshInterval is how often endpoints are polled.
	// Default: 5s
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Timeout is the per-poll HTTP timeout.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL is how long a discovered model name stays valid without a
	// fresh poll result.
	// Default: 30s
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig contains per-token rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is applied.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained per-token request rate.
	// Default: 10
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the per-token burst allowance.
	// Default: 20
	Burst int `yaml:"burst"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// Logging contains logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: json, text.
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "saturn"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets overrides the request duration histogram
	// buckets, in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// UsageConfig contains usage ledger settings.
type UsageConfig struct {
	// Enabled controls whether per-request usage records are written.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend: sqlite, memory.
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains async recorder settings.
	Recorder UsageRecorderConfig `yaml:"recorder"`

	// Retention contains retention pruning settings.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite storage settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the write-ahead log is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// UsageRecorderConfig contains async usage recorder settings.
type UsageRecorderConfig struct {
	// Buffer is the size of the async write channel. When the buffer is
	// full, records are dropped rather than blocking request handling.
	// Default: 1000
	Buffer int `yaml:"buffer"`

	// WriteTimeout is the per-record storage write deadline.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains usage retention settings.
type RetentionConfig struct {
	// Days is how many days of records to keep. Zero disables age-based
	// pruning.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduled pruning. Empty
	// disables the scheduler.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps the total record count. Zero means unlimited.
	MaxRecords int64 `yaml:"max_records"`
}
