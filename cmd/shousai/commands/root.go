package commands

import (
	"github.com/spf13/cobra"
)

var (
	// apiAddr is the base URL of the shousaid HTTP API.
	apiAddr string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "shousai",
	Short: "Cluster detail summary CLI",
	Long: `Shousai CLI drives the shousaid daemon over its HTTP API.

Use this CLI to browse content clusters, request long-form detail
summaries, watch generation progress and inspect remembered failures.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(
		&apiAddr, "api", "http://localhost:8080",
		"Base URL of the shousaid HTTP API",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	// Add subcommands.
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(detailCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(versionCmd)
}
