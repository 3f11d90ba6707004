// reminder-run executes or previews one reminder batch from the command
// line, for cron-driven deployments and operator use.
//
// Usage:
//
//	reminder-run run
//	reminder-run run --date 2024-06-24 --dry-run
//	reminder-run due -o json
//	reminder-run schema
//	reminder-run activities
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "expiry-reminders/internal/common/errors"
)

var (
	version    = "dev"
	configPath string
	outputFmt  string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reminder-run",
		Short: "Run or preview the expiry reminder batch",
		Long: `reminder-run evaluates every tracked item for one date and sends the
reminders that fall due, or lists them without sending.

Configuration is read from configs/config.yaml and the environment, the
same way the long-running reminder worker reads it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(dueCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(activitiesCmd())
	return rootCmd
}

// exitCode is 2 when the batch was aborted by the data store, so cron
// wrappers can tell an outage from a bad invocation.
func exitCode(err error) int {
	if apperrors.IsDataStoreError(err) {
		return 2
	}
	return 1
}
