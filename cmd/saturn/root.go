package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	secretsFile string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "saturn",
	Short: "Saturn - OpenAI-compatible gateway for vLLM fleets",
	Long: `Saturn is an OpenAI-compatible request-routing gateway for self-hosted
vLLM backends.

It authenticates callers with bearer tokens, maps tokens to access groups,
and routes chat and completion requests round-robin across host groups of
vLLM endpoints, with:
  - Per-endpoint failure tracking and cooldown-based circuit breaking
  - Automatic retry of failed attempts on other permitted endpoints
  - Streaming passthrough for server-sent event responses
  - Aggregated /v1/models listing across the fleet
  - Hot reload of configuration and credentials

For more information, visit: https://github.com/mercator-hq/saturn`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", "", "secrets file path (overrides auth.secrets_file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
