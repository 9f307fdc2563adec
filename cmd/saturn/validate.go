package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/config"
)

var validateFlags struct {
	format string
}

// validationReport summarizes a loaded configuration for operators.
type validationReport struct {
	Valid       bool     `json:"valid"`
	ConfigPath  string   `json:"config_path"`
	SecretsPath string   `json:"secrets_path"`
	HostGroups  int      `json:"host_groups"`
	Endpoints   int      `json:"endpoints"`
	Groups      int      `json:"groups"`
	Tokens      int      `json:"tokens"`
	Warnings    []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and secrets",
	Long: `Load and validate the configuration and secrets files without starting
the gateway.

The validate command checks:
  - YAML syntax and field types
  - Listen address, scheme, port ranges, and timeout values
  - Host group definitions and allow-lists
  - Secrets file structure and token-to-group mappings

It also warns about credentials that can never route, such as a group that
appears in no host group allow-list and is not an admin group.

Examples:
  # Validate the default config
  saturn validate

  # Validate a specific config and secrets pair
  saturn validate --config /etc/saturn/config.yaml --secrets /etc/saturn/secrets.yaml

  # Machine-readable report
  saturn validate --format json`,
	RunE: validateConfiguration,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateConfiguration(cmd *cobra.Command, args []string) error {
	store := config.NewStore(cfgFile, secretsFile)
	snap, err := store.Load()
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("validation failed: %v", err))
	}

	cfg := snap.Config
	endpoints := 0
	for _, hg := range cfg.Upstream.HostGroups {
		endpoints += hg.Ports.Count()
	}

	report := validationReport{
		Valid:       true,
		ConfigPath:  store.ConfigPath(),
		SecretsPath: store.SecretsPath(),
		HostGroups:  len(cfg.Upstream.HostGroups),
		Endpoints:   endpoints,
		Groups:      len(snap.Secrets.Groups),
		Tokens:      len(snap.Secrets.TokenGroups()),
		Warnings:    config.CrossValidate(cfg, snap.Secrets),
	}

	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, report)
	}

	fmt.Println("Validating configuration...")
	fmt.Println()
	fmt.Printf("Config file:  %s\n", report.ConfigPath)
	fmt.Printf("Secrets file: %s\n", report.SecretsPath)
	fmt.Println()
	fmt.Printf("✓ Host groups: %d (%d endpoints)\n", report.HostGroups, report.Endpoints)
	fmt.Printf("✓ Credential groups: %d (%d tokens)\n", report.Groups, report.Tokens)

	if len(report.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, warning := range report.Warnings {
			fmt.Printf("  ⚠ %s\n", warning)
		}
	}

	fmt.Println()
	fmt.Println("✓ Configuration valid")
	return nil
}
