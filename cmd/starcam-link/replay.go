package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"starcam-link/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayBackup    bool
	replaySession   string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log or backup file",
	Long:  "replay feeds telemetry rows from a JSONL export or, with --backup, from the CSV backup log into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		if replaySpeed < 0 {
			return fmt.Errorf("speed must not be negative")
		}
		cfg, _, err := loadConfig(false)
		if err != nil {
			return err
		}
		writer, cleanup, err := newTelemetryWriter(cfg, replayPrintOnly)
		if err != nil {
			return err
		}
		defer cleanup()
		if replayBackup {
			return sink.ReplayBackupFile(replayInput, replaySession, writer, replaySpeed)
		}
		return sink.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without pacing)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to DB")
	replayCmd.Flags().BoolVar(&replayBackup, "backup", false, "Input is the CSV backup log")
	replayCmd.Flags().StringVar(&replaySession, "session", "replay", "Session id stamped on rows replayed from the backup log")
	replayCmd.MarkFlagRequired("input")
}
