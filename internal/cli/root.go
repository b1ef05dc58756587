// Package cli implements the chainfill command tree.
package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/chainfill/chainfill/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "chainfill",
	Short: "Chainfill block backfill tool",
	Long: `Chainfill backfills block data from supported networks into PostgreSQL,
keeping a ledger of covered block ranges so repeated runs never re-fetch
what is already stored.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		setupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	level := slog.LevelInfo
	if isDebug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))
}

// loadConfig loads the YAML config and applies the configured log level.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Level == "debug" && !isDebug {
		isDebug = true
		setupLogging()
	}
	return cfg, nil
}
