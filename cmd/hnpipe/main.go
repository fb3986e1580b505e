// Command hnpipe runs the Hacker News analytics pipeline: one-shot
// stage commands for batch use and a serve mode with an HTTP API and a
// daily schedule.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gerardo1909/hn-analytical-platform/internal/config"
)

var version = "dev"

var (
	configPath string
	flagDate   string
)

var rootCmd = &cobra.Command{
	Use:           "hnpipe",
	Short:         "Hacker News daily analytics pipeline",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	for _, cmd := range []*cobra.Command{ingestCmd, processCmd, transformCmd, reportCmd, runCmd} {
		cmd.Flags().StringVar(&flagDate, "date", "", "ingestion date (YYYY-MM-DD, default today UTC)")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}
