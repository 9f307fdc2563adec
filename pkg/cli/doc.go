/*
Package cli provides command-line interface utilities for Saturn.

The cli package includes output formatters, error types, and signal handling
helpers used by the saturn command.

Output Formatting:

The cli package supports text and JSON output formats for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
