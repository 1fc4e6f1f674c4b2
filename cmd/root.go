package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scopewatch",
	Short: "Scope-drift detection service for freelancer operations",
	Long:  "Ingests client messages from webhooks and Gmail polling, classifies scope drift through Claude, and drafts proposals and invoices on request.",
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
