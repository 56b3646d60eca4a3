// Package cmd defines the CLI commands of the diskseek executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/config"
	"github.com/diskseek/diskseek/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diskseek",
		Short: "Keyword-driven netdisk resource crawler",
		Long: `diskseek accepts keyword search tasks over HTTP, crawls a set of
configured resource sites for matching netdisk links, and serves the
classified results back with expiry and notification handling.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newImportSitesCmd())
	return cmd
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	// Sync on stderr fails on some platforms; nothing to do about it.
	_ = logger.Sync()
}
