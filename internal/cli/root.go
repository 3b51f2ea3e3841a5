package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/stockimport/internal/logging"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

var rootCmd = &cobra.Command{
	Use:   "stockimport",
	Short: "Staged bulk import of stock price files into PostgreSQL",
	Long: `stockimport loads daily stock price CSV files into PostgreSQL.

Rows are parsed, grouped into chunks, bulk-copied into a per-chunk staging
table and merged into the permanent table without touching rows that are
already there. Each chunk commits or rolls back on its own, so re-running a
file is always safe.

Exit Codes:
  0  - Success (every chunk committed)
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Database connection failed or lost
  13 - Import partially failed (at least one chunk did not commit)
  14 - Source file unavailable`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	// -h belongs to --host, so help gets no shorthand.
	rootCmd.PersistentFlags().Bool("help", false, "Help for stockimport")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text|json")
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

// newLogger builds the logger selected by --log-format.
func newLogger(cmd *cobra.Command, verbose bool) (stockimport.Logger, error) {
	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format = "text"
	}
	switch strings.ToLower(format) {
	case "", "text":
		return logging.NewConsoleLogger(verbose), nil
	case "json":
		return logging.NewJSONLogger(verbose), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json): %w", format, stockimport.ErrInvalidConfig)
	}
}
