package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "upstream.host_groups[0].hostname").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any rules fail. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateDiscovery(&cfg.Discovery)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server settings.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must not be negative",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must not be negative",
		})
	}

	return errs
}

// validateUpstream validates backend fleet settings.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.Scheme != "http" && cfg.Scheme != "https" {
		errs = append(errs, FieldError{
			Field:   "upstream.scheme",
			Message: fmt.Sprintf("scheme must be http or https, got %q", cfg.Scheme),
		})
	}
	if len(cfg.HostGroups) == 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.host_groups",
			Message: "at least one host group is required",
		})
	}
	for i, hg := range cfg.HostGroups {
		prefix := fmt.Sprintf("upstream.host_groups[%d]", i)
		if hg.Hostname == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".hostname",
				Message: "hostname is required",
			})
		} else if strings.Contains(hg.Hostname, "://") {
			errs = append(errs, FieldError{
				Field:   prefix + ".hostname",
				Message: "hostname must not include a scheme; set upstream.scheme instead",
			})
		}
		if hg.Ports.Start <= 0 || hg.Ports.Start > 65535 {
			errs = append(errs, FieldError{
				Field:   prefix + ".ports.start",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", hg.Ports.Start),
			})
		}
		if hg.Ports.End > 65535 {
			errs = append(errs, FieldError{
				Field:   prefix + ".ports.end",
				Message: fmt.Sprintf("port must be at most 65535, got %d", hg.Ports.End),
			})
		}
		if hg.Ports.End < hg.Ports.Start {
			errs = append(errs, FieldError{
				Field:   prefix + ".ports",
				Message: fmt.Sprintf("port range is empty: end %d before start %d", hg.Ports.End, hg.Ports.Start),
			})
		}
	}
	if cfg.MaxFailures < 1 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_failures",
			Message: "max failures must be at least 1",
		})
	}
	if cfg.CooldownPeriod <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.cooldown_period",
			Message: "cooldown period must be positive",
		})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.request_timeout",
			Message: "request timeout must be positive",
		})
	}

	return errs
}

// validateAuth validates authentication settings.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if cfg.SecretsFile == "" {
		errs = append(errs, FieldError{
			Field:   "auth.secrets_file",
			Message: "secrets file path is required",
		})
	}

	return errs
}

// validateDiscovery validates model discovery settings.
func validateDiscovery(cfg *DiscoveryConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.RefreshInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "discovery.refresh_interval",
			Message: "refresh interval must be positive",
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "discovery.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.CacheTTL < cfg.RefreshInterval {
		errs = append(errs, FieldError{
			Field:   "discovery.cache_ttl",
			Message: "cache TTL must be at least the refresh interval",
		})
	}

	return errs
}

// validateRateLimit validates rate limiting settings.
func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.requests_per_second",
			Message: "requests per second must be positive",
		})
	}
	if cfg.Burst < 1 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.burst",
			Message: "burst must be at least 1",
		})
	}

	return errs
}

// validateTelemetry validates logging and metrics settings.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("level must be one of debug, info, warn, error; got %q", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("format must be json or text, got %q", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	return errs
}

// validateUsage validates usage ledger settings.
func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("backend must be sqlite or memory, got %q", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "usage.sqlite.path",
			Message: "sqlite path is required for the sqlite backend",
		})
	}
	if cfg.Recorder.Buffer < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.recorder.buffer",
			Message: "recorder buffer must not be negative",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retention.days",
			Message: "retention days must not be negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retention.max_records",
			Message: "max records must not be negative",
		})
	}

	return errs
}

// CrossValidate checks the configuration against the loaded secrets and
// returns human-readable warnings for credentials that can never route:
// a group that appears in no host group allow-list and is not an admin
// group grants no access at all. These are operator mistakes worth
// surfacing but not fatal.
func CrossValidate(cfg *Config, secrets *Secrets) []string {
	var warnings []string

	routable := make(map[string]bool)
	for _, hg := range cfg.Upstream.HostGroups {
		for _, g := range hg.AllowedGroups {
			routable[g] = true
		}
	}
	admin := make(map[string]bool)
	for _, g := range cfg.Auth.AdminGroups {
		admin[g] = true
	}

	for group, tokens := range secrets.Groups {
		if !routable[group] && !admin[group] {
			warnings = append(warnings, fmt.Sprintf(
				"group %q (%d tokens) appears in no host group allow-list and is not an admin group; its tokens cannot route",
				group, len(tokens)))
		}
	}

	if secrets.ServiceToken == "" {
		warnings = append(warnings, "no service_token configured; caller tokens will be forwarded to backends unchanged")
	}

	return warnings
}
