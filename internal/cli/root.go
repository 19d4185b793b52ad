package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "csvdelta",
	Short: "Compare today's CSV exports with yesterday's archive over SFTP",
	Long: `csvdelta lists the CSV files in a remote SFTP directory, finds the copy of
each one archived in yesterday's YYYY-MM-DD sub-directory, and reports how
much each file grew or shrank in bytes and rows.

Row counts are streamed in bounded chunks, so file size does not matter.
Dropped connections are re-established and the affected file is re-read
from the start.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Server unreachable or connection kept failing
  12 - Authentication failed
  13 - Yesterday's directory does not exist
  14 - Cancelled
  15 - Some files could not be compared`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("config", "", "Path to csvdelta.yaml (default: ./csvdelta.yaml if present)")
	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default: ./.env if present)")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return v
}
