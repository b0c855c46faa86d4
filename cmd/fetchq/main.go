package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solvik/fetchq/cmd/fetchq/commands"
	"github.com/solvik/fetchq/logger"
)

var rootCmd = &cobra.Command{
	Use:   "fetchq",
	Short: "fetchq - rate-limited async execution core for market data tools",
	Long: `fetchq runs rate-limited upstream API requests with retry, tracks
long-running work as durable file-backed jobs, and routes results inline
or to the async path based on estimated output size.

Available commands:
  run    - Start the job daemon (runner + cleanup ticker)
  fetch  - Fetch one upstream endpoint through the full pipeline
  jobs   - Inspect and manage jobs (ls, show, cancel, cleanup)

Examples:
  fetchq run                           # Start daemon in foreground
  fetchq fetch /quote --param symbol=AAPL
  fetchq jobs ls                       # List all jobs
  fetchq jobs show <id>                # Show job details
  fetchq jobs cancel <id>              # Cancel a pending or running job`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.FetchCmd)
	rootCmd.AddCommand(commands.JobsCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
