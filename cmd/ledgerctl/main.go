package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	useMirror bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the equity ownership ledger",
	Long: `ledgerctl manages the equity ledger database: it applies migrations,
registers and deactivates token contracts and prints indexer status and
cap tables. Connection settings come from the same environment variables
as the indexer and API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&useMirror, "mirror", false, "operate on the SQLite mirror store instead of Postgres")

	rootCmd.AddCommand(migrateCmd, registerCmd, deactivateCmd, activateCmd, statusCmd, capTableCmd, purgeCacheCmd)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
