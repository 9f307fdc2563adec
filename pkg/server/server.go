// Package server assembles the gateway from its parts: configuration
// snapshots, the endpoint pool, health tracking, discovery, the usage
// ledger, metrics, and the HTTP stack that ties them together.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/proxy/handlers"
	"mercator-hq/saturn/pkg/proxy/middleware"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/telemetry/metrics"
	"mercator-hq/saturn/pkg/upstream"
	"mercator-hq/saturn/pkg/usage"
	"mercator-hq/saturn/pkg/usage/retention"
	"mercator-hq/saturn/pkg/usage/storage"
)

// Server is the running gateway. Process-lifetime components (health
// registry, discovery, forwarder, usage ledger, metrics) are created
// once; snapshot-scoped state (pool, credentials, settings) is swapped
// atomically on every configuration reload.
type Server struct {
	store  *config.Store
	logger *slog.Logger

	health     *upstream.Registry
	discovery  *upstream.Discovery
	forwarder  *proxy.Forwarder
	selector   *routing.Selector
	limiter    *middleware.RateLimiter
	usageStore usage.Store
	recorder   *usage.Recorder
	pruner     *retention.Pruner
	collector  *metrics.Collector

	current atomic.Pointer[runtimeState]

	httpServer       *http.Server
	background       sync.WaitGroup
	cancelBackground context.CancelFunc
	shutdownChan     chan struct{}
	stopOnce         sync.Once
	shutdownOnce     sync.Once
	mu               sync.RWMutex
	isRunning        bool
}

// runtimeState is the snapshot-scoped half of the server: everything a
// configuration reload replaces wholesale.
type runtimeState struct {
	pool        *upstream.Pool
	credentials *auth.CredentialStore
	settings    handlers.Settings
	rateLimit   config.RateLimitConfig
}

// New builds a gateway server from the configuration store. The store is
// loaded if it has no current snapshot yet.
func New(store *config.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	snap := store.Current()
	if snap == nil {
		var err error
		snap, err = store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
	}
	cfg := snap.Config

	usageStore, err := newUsageStore(cfg.Usage)
	if err != nil {
		return nil, fmt.Errorf("opening usage store: %w", err)
	}

	health := upstream.NewRegistry(cfg.Upstream.MaxFailures, cfg.Upstream.CooldownPeriod, logger)
	discovery := upstream.NewDiscovery(cfg.Discovery, health, logger)

	s := &Server{
		store:        store,
		logger:       logger.With("component", "server"),
		health:       health,
		discovery:    discovery,
		forwarder:    proxy.NewForwarder(health, logger),
		selector:     routing.NewSelector(health, discovery),
		limiter:      middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		usageStore:   usageStore,
		shutdownChan: make(chan struct{}),
	}

	s.recorder = usage.NewRecorder(usageStore, &usage.Config{
		Enabled:      cfg.Usage.Enabled,
		Buffer:       cfg.Usage.Recorder.Buffer,
		WriteTimeout: cfg.Usage.Recorder.WriteTimeout,
	})
	s.pruner = retention.NewPruner(usageStore, &retention.Config{
		RetentionDays: cfg.Usage.Retention.Days,
		PruneSchedule: cfg.Usage.Retention.PruneSchedule,
		MaxRecords:    cfg.Usage.Retention.MaxRecords,
	})

	s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	health.SetObserver(s.collector)
	s.collector.Registry().MustRegister(metrics.NewFleetCollector(
		cfg.Telemetry.Metrics.Namespace, health, discovery,
		func() []*upstream.Endpoint { return s.Pool().Endpoints() },
	))
	s.collector.RegisterRateLimited(s.limiter.Rejected)
	s.collector.RegisterUsageDropped(s.recorder.Dropped)

	s.apply(snap)
	return s, nil
}

// newUsageStore selects the ledger backend. When the ledger is disabled
// the in-memory store backs admin queries without touching disk.
func newUsageStore(cfg config.UsageConfig) (usage.Store, error) {
	if !cfg.Enabled || cfg.Backend == "memory" {
		return storage.NewMemoryStore(0), nil
	}
	return storage.NewSQLiteStore(&storage.SQLiteConfig{
		Path:               cfg.SQLite.Path,
		BusyTimeout:        cfg.SQLite.BusyTimeout,
		CheckpointInterval: cfg.SQLite.CheckpointInterval,
	})
}

// Pool returns the endpoint pool for the current configuration.
func (s *Server) Pool() *upstream.Pool {
	return s.current.Load().pool
}

// Selector returns the rotation-aware candidate selector.
func (s *Server) Selector() *routing.Selector {
	return s.selector
}

// Forwarder returns the backend forwarder.
func (s *Server) Forwarder() *proxy.Forwarder {
	return s.forwarder
}

// Health returns the endpoint health registry.
func (s *Server) Health() *upstream.Registry {
	return s.health
}

// Discovery returns the model discovery cache.
func (s *Server) Discovery() *upstream.Discovery {
	return s.discovery
}

// Usage returns the usage ledger recorder.
func (s *Server) Usage() *usage.Recorder {
	return s.recorder
}

// Settings returns the forwarding knobs for the current configuration.
func (s *Server) Settings() handlers.Settings {
	return s.current.Load().settings
}

// Reload re-reads configuration and secrets from disk and applies them as
// a new snapshot. A load failure leaves the previous snapshot serving.
func (s *Server) Reload(ctx context.Context) error {
	snap, err := s.store.Load()
	if err != nil {
		return err
	}
	s.apply(snap)

	// Probe new endpoints before they see traffic so model routing has
	// entries for them.
	if snap.Config.Discovery.Enabled {
		s.discovery.Refresh(ctx, s.Pool().Endpoints())
	}
	return nil
}

// apply swaps in the snapshot-scoped state and retunes the long-lived
// components that take their limits from configuration.
func (s *Server) apply(snap *config.Snapshot) {
	cfg := snap.Config

	pool := upstream.NewPool(cfg.Upstream)
	credentials := auth.NewCredentialStore(snap.Secrets.TokenGroups(), cfg.Auth.AdminGroups)

	s.health.SetLimits(cfg.Upstream.MaxFailures, cfg.Upstream.CooldownPeriod)
	s.discovery.SetServiceToken(snap.Secrets.ServiceToken)

	// Replacing rate limit settings discards per-caller buckets, so only
	// do it when the settings actually changed.
	prev := s.current.Load()
	if prev == nil || prev.rateLimit != cfg.RateLimit {
		s.limiter.SetLimits(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.current.Store(&runtimeState{
		pool:        pool,
		credentials: credentials,
		settings: handlers.Settings{
			RequestTimeout: cfg.Upstream.RequestTimeout,
			ServiceToken:   snap.Secrets.ServiceToken,
			ModelOwner:     cfg.Upstream.ModelOwner,
			MaxFailures:    cfg.Upstream.MaxFailures,
		},
		rateLimit: cfg.RateLimit,
	})

	s.logger.Info("configuration applied",
		"host_groups", len(pool.Groups()),
		"endpoints", pool.Size(),
		"tokens", credentials.Tokens(),
		"loaded_at", snap.LoadedAt,
	)
}

// Start runs the HTTP server and background components, blocking until
// the context is cancelled, a shutdown signal arrives, or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	cfg := s.store.MustCurrent().Config

	s.httpServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	s.startBackground(cfg)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway",
			"address", cfg.Server.ListenAddress,
			"host_groups", len(s.Pool().Groups()),
			"endpoints", s.Pool().Size(),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests shutdown of a running server. Start returns once the
// shutdown completes.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// startBackground launches model discovery and the retention scheduler.
func (s *Server) startBackground(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	if cfg.Discovery.Enabled {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.discovery.Run(ctx, func() []*upstream.Endpoint { return s.Pool().Endpoints() })
		}()
	}

	if cfg.Usage.Enabled {
		if err := s.pruner.Start(ctx); err != nil {
			s.logger.Error("failed to start retention scheduler", "error", err)
		}
	}
}

// Shutdown stops the HTTP server, waits for background components, drains
// the usage recorder, and releases the ledger store.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		cfg := s.store.MustCurrent().Config
		s.logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown: %w", err)
			}
		}

		if s.cancelBackground != nil {
			s.cancelBackground()
		}
		s.background.Wait()
		s.pruner.Stop()

		// Drain buffered usage records before the store goes away.
		if err := s.recorder.Close(); err != nil {
			s.logger.Error("error closing usage recorder", "error", err)
		}
		if err := s.usageStore.Close(); err != nil {
			s.logger.Error("error closing usage store", "error", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	cfg := s.store.MustCurrent().Config
	mux := http.NewServeMux()

	completions := handlers.NewCompletionsHandler(s)
	models := handlers.NewModelsHandler(s)
	admin := handlers.NewAdminHandler(s)

	// The three OpenAI-compatible inference routes share one handler;
	// the request path carries through to the selected backend.
	mux.Handle("/v1/chat/completions", completions)
	mux.Handle("/v1/completions", completions)
	mux.Handle("/v1/embeddings", completions)
	mux.Handle("/v1/models", models)

	mux.Handle("/health", handlers.NewHealthHandler())
	mux.Handle("/ready", handlers.NewReadyHandler(s))

	mux.HandleFunc("/admin/endpoints", admin.Endpoints)
	mux.HandleFunc("/admin/health", admin.Health)
	mux.HandleFunc("/admin/models", admin.Models)
	mux.HandleFunc("/admin/usage", admin.Usage)
	mux.HandleFunc("/admin/reload", admin.Reload)

	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}

	// Apply middleware innermost first. Auth runs inside the metrics and
	// logging layers so rejected requests still show up in both.
	var handler http.Handler = mux

	if cfg.RateLimit.Enabled {
		handler = s.limiter.Middleware(handler)
	}

	skipPaths := []string{"/health", "/ready"}
	if cfg.Telemetry.Metrics.Enabled {
		skipPaths = append(skipPaths, cfg.Telemetry.Metrics.Path)
	}
	handler = middleware.AuthMiddleware(s.credentialSource, skipPaths...)(handler)

	handler = middleware.CORSMiddleware(s.convertCORSConfig(&cfg.Server.CORS))(handler)
	handler = s.collector.Middleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// credentialSource hands the auth middleware the credential store of the
// current snapshot, so reloaded token mappings apply to the next request.
func (s *Server) credentialSource() *auth.CredentialStore {
	return s.current.Load().credentials
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler. Exposed for tests that
// drive the full chain without a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig(cors *config.CORSConfig) *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:        cors.Enabled,
		AllowedOrigins: cors.AllowedOrigins,
		AllowedMethods: cors.AllowedMethods,
		AllowedHeaders: cors.AllowedHeaders,
		ExposedHeaders: cors.ExposedHeaders,
		MaxAge:         cors.MaxAge,
	}
}
