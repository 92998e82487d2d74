package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medsourcepro/msapi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "msapi",
	Short: "MedSource Pro API server",
	Long: `MedSource Pro API server provides the B2B medical supply platform backend:
catalog, orders, quotes, customer accounts and analytics behind a
threshold-based RBAC permission core.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
