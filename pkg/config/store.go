package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the configuration and secrets taken at
// load time. Request handling reads a snapshot once and uses it for the
// whole request, so a reload mid-request never produces a mixed view.
type Snapshot struct {
	// Config is the loaded configuration.
	Config *Config

	// Secrets is the loaded credential material.
	Secrets *Secrets

	// LoadedAt is when this snapshot was built.
	LoadedAt time.Time
}

// Store holds the current configuration snapshot and swaps it atomically on
// reload. In-flight readers keep whatever snapshot they already hold;
// a failed reload leaves the current snapshot untouched.
type Store struct {
	configPath  string
	secretsPath string
	current     atomic.Pointer[Snapshot]
}

// NewStore creates a snapshot store for the given file paths. If secretsPath
// is empty, the secrets file named by the loaded configuration is used.
// Call Load before Current.
func NewStore(configPath, secretsPath string) *Store {
	return &Store{
		configPath:  configPath,
		secretsPath: secretsPath,
	}
}

// Load reads the configuration and secrets files, validates them, and swaps
// the new snapshot in. On error the previous snapshot stays current.
func (s *Store) Load() (*Snapshot, error) {
	cfg, err := LoadConfigWithEnvOverrides(s.configPath)
	if err != nil {
		return nil, err
	}

	secretsPath := s.secretsPath
	if secretsPath == "" {
		secretsPath = cfg.Auth.SecretsFile
	}
	secrets, err := LoadSecrets(secretsPath)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Config:   cfg,
		Secrets:  secrets,
		LoadedAt: time.Now(),
	}
	s.current.Store(snap)
	return snap, nil
}

// Current returns the most recent snapshot, or nil if Load has never
// succeeded. Safe for concurrent use.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// MustCurrent returns the current snapshot and panics if Load has never
// succeeded. Use only after startup has completed.
func (s *Store) MustCurrent() *Snapshot {
	snap := s.current.Load()
	if snap == nil {
		panic("configuration not loaded: call Load first")
	}
	return snap
}

// ConfigPath returns the configuration file path this store reads from.
func (s *Store) ConfigPath() string {
	return s.configPath
}

// SecretsPath returns the secrets file path in effect: the explicit override
// if one was given, otherwise the path named by the current configuration.
func (s *Store) SecretsPath() string {
	if s.secretsPath != "" {
		return s.secretsPath
	}
	if snap := s.current.Load(); snap != nil {
		return snap.Config.Auth.SecretsFile
	}
	return ""
}

// WatchPaths returns the file paths a watcher should observe for this store.
func (s *Store) WatchPaths() []string {
	paths := []string{s.configPath}
	if sp := s.SecretsPath(); sp != "" {
		paths = append(paths, sp)
	}
	return paths
}

// String implements fmt.Stringer for logging.
func (s *Store) String() string {
	return fmt.Sprintf("config.Store(config=%s, secrets=%s)", s.configPath, s.SecretsPath())
}
