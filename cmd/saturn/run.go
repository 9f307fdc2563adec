package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Saturn gateway",
	Long: `Start the Saturn gateway with the specified configuration.

The gateway listens on the configured address, authenticates callers with
bearer tokens, and routes OpenAI-compatible requests round-robin across the
configured vLLM host groups.

Examples:
  # Start with default config
  saturn run

  # Start with custom config
  saturn run --config /etc/saturn/config.yaml

  # Override listen address
  saturn run --listen 0.0.0.0:8080

  # Reload automatically when config or secrets change
  saturn run --watch

  # Validate config without starting the gateway
  saturn run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload when config or secrets files change")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	// Load configuration and secrets
	store := config.NewStore(cfgFile, secretsFile)
	snap, err := store.Load()
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := snap.Config

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	// Initialize logging based on config
	logger := newLogger(cfg.Telemetry.Logging)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		for _, warning := range config.CrossValidate(cfg, snap.Secrets) {
			fmt.Printf("⚠ %s\n", warning)
		}
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Print startup banner
	printBanner(cfg)

	// Surface credential mistakes that validation alone cannot catch
	for _, warning := range config.CrossValidate(cfg, snap.Secrets) {
		slog.Warn("configuration warning", "detail", warning)
	}

	// Create the gateway
	slog.Info("creating gateway")
	srv, err := server.New(store, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Printf("✓ Upstream pool ready (%d host groups, %d endpoints)\n",
		len(srv.Pool().Groups()), srv.Pool().Size())

	// One context for the watcher and the gateway, cancelled on SIGINT/SIGTERM
	ctx := cli.SetupSignalHandler()

	// Watch config and secrets files when requested
	if cfg.Watch || runFlags.watch {
		watcher, werr := config.NewFileWatcher(store.WatchPaths(), logger)
		if werr != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to create config watcher: %w", werr))
		}
		go func() {
			if werr := watcher.Watch(ctx, func() error {
				return srv.Reload(context.Background())
			}); werr != nil {
				slog.Error("config watcher stopped", "error", werr)
			}
		}()
		defer watcher.Stop()
		fmt.Println("✓ Watching configuration for changes")
	}

	fmt.Println()
	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a shutdown signal arrives or the listener fails,
	// and drains in-flight requests before returning.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Gateway stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Saturn v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("configuration",
		"listen_address", cfg.Server.ListenAddress,
		"host_groups", len(cfg.Upstream.HostGroups),
		"model_owner", cfg.Upstream.ModelOwner,
		"discovery", cfg.Discovery.Enabled,
		"usage", cfg.Usage.Enabled,
	)
}
