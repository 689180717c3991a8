package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "navigator",
	Short: "POI website and events URL discovery worker",
	Long:  "Resolves official websites for OpenStreetMap POIs, probes them for events pages, verifies candidates with Claude models, and records discovered event sources.",
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
