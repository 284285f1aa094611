package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"starcam-link/internal/config"
	"starcam-link/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "starcam-link",
	Short:        "Star camera remote link",
	Long:         "starcam-link connects to a star camera, records its telemetry and images, and sends it commands.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration (defaults apply when empty)")
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration and installs the default logger. Logs go to
// STDERR so STDOUT stays JSON lines; quiet discards them while the terminal UI owns
// the screen.
func loadConfig(quiet bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}
	logger := logging.NewWriter(out, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
