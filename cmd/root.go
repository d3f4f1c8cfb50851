package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadops",
	Short: "Lead operations for subway advertising sales",
	Long:  "Ingests LOCALDATA business-registry leads, matches them to Seoul subway stations, deduplicates and stores them, and serves them to the sales UI.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
