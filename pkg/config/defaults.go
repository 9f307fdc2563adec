package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// Upstream defaults
	DefaultScheme         = "http"
	DefaultModelOwner     = "saturn"
	DefaultMaxFailures    = 3
	DefaultCooldownPeriod = 5 * time.Minute
	DefaultRequestTimeout = 60 * time.Second

	// Auth defaults
	DefaultSecretsFile = "secrets.yaml"

	// Discovery defaults
	DefaultDiscoveryRefreshInterval = 5 * time.Second
	DefaultDiscoveryTimeout         = 2 * time.Second
	DefaultDiscoveryCacheTTL        = 30 * time.Second

	// Rate limit defaults
	DefaultRateLimitRPS   = 10.0
	DefaultRateLimitBurst = 20

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNamespace = "saturn"

	// Usage defaults
	DefaultUsageBackend            = "sqlite"
	DefaultUsageSQLitePath         = "data/usage.db"
	DefaultUsageSQLiteBusyTimeout  = 5 * time.Second
	DefaultUsageCheckpointInterval = 5 * time.Minute
	DefaultUsageRecorderBuffer     = 1000
	DefaultUsageWriteTimeout       = 5 * time.Second
	DefaultUsageRetentionDays      = 30
	DefaultUsageRetentionSchedule  = "0 3 * * *"
)

// DefaultAdminGroups is the default set of admin groups.
var DefaultAdminGroups = []string{"admin"}

// ApplyDefaults applies default values to any zero-valued fields of cfg.
// It is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)

	// Upstream defaults
	if cfg.Upstream.Scheme == "" {
		cfg.Upstream.Scheme = DefaultScheme
	}
	if cfg.Upstream.ModelOwner == "" {
		cfg.Upstream.ModelOwner = DefaultModelOwner
	}
	if cfg.Upstream.MaxFailures == 0 {
		cfg.Upstream.MaxFailures = DefaultMaxFailures
	}
	if cfg.Upstream.CooldownPeriod == 0 {
		cfg.Upstream.CooldownPeriod = DefaultCooldownPeriod
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = DefaultRequestTimeout
	}
	for i := range cfg.Upstream.HostGroups {
		if cfg.Upstream.HostGroups[i].Name == "" {
			cfg.Upstream.HostGroups[i].Name = cfg.Upstream.HostGroups[i].Hostname
		}
	}

	// Auth defaults
	if cfg.Auth.SecretsFile == "" {
		cfg.Auth.SecretsFile = DefaultSecretsFile
	}
	if len(cfg.Auth.AdminGroups) == 0 {
		cfg.Auth.AdminGroups = append([]string(nil), DefaultAdminGroups...)
	}

	// Discovery defaults
	if cfg.Discovery.RefreshInterval == 0 {
		cfg.Discovery.RefreshInterval = DefaultDiscoveryRefreshInterval
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = DefaultDiscoveryTimeout
	}
	if cfg.Discovery.CacheTTL == 0 {
		cfg.Discovery.CacheTTL = DefaultDiscoveryCacheTTL
	}

	// Rate limit defaults
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Usage defaults
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.SQLite.Path == "" {
		cfg.Usage.SQLite.Path = DefaultUsageSQLitePath
	}
	if cfg.Usage.SQLite.BusyTimeout == 0 {
		cfg.Usage.SQLite.BusyTimeout = DefaultUsageSQLiteBusyTimeout
	}
	if cfg.Usage.SQLite.CheckpointInterval == 0 {
		cfg.Usage.SQLite.CheckpointInterval = DefaultUsageCheckpointInterval
	}
	if cfg.Usage.Recorder.Buffer == 0 {
		cfg.Usage.Recorder.Buffer = DefaultUsageRecorderBuffer
	}
	if cfg.Usage.Recorder.WriteTimeout == 0 {
		cfg.Usage.Recorder.WriteTimeout = DefaultUsageWriteTimeout
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = DefaultUsageRetentionDays
	}
	if cfg.Usage.Retention.PruneSchedule == "" {
		cfg.Usage.Retention.PruneSchedule = DefaultUsageRetentionSchedule
	}
}

// applyCORSDefaults applies default values to CORS settings. CORS is
// enabled by default only when the section is entirely unset.
func applyCORSDefaults(cors *CORSConfig) {
	if !cors.Enabled {
		hasAnyConfig := len(cors.AllowedOrigins) > 0 ||
			len(cors.AllowedMethods) > 0 ||
			len(cors.AllowedHeaders) > 0 ||
			len(cors.ExposedHeaders) > 0 ||
			cors.MaxAge > 0

		if !hasAnyConfig {
			cors.Enabled = true
		}
	}

	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}
