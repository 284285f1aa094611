package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"starcam-link/internal/logging"
	"starcam-link/internal/scenario"
)

var (
	runScenarioPath string
	runBuiltIn      string
	runPoll         time.Duration
	runPrintOnly    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an observing plan against the camera",
	Long:  "run connects, receives telemetry and steps through the phases of a scenario file or built-in plan, sending each phase's command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := pickScenario(runScenarioPath, runBuiltIn)
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		writer, cleanup, err := newWriters(cfg, runPrintOnly, false)
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := newSession(cfg, writer, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(logging.NewContext(context.Background(), logger), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if err := sess.Connect(ctx, cfg.Camera.Address, cfg.Camera.Port); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			sess.Disconnect(shutdownCtx)
		}()
		// aperture steps are relative, so the camera has to report first
		if err := awaitTelemetry(ctx, sess, cfg.Camera.ConnectTimeout); err != nil {
			return err
		}

		r := &scenario.Runner{Ctl: sess, Poll: runPoll}
		return r.Run(ctx, sc)
	},
}

func init() {
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "Path to YAML scenario file")
	runCmd.Flags().StringVar(&runBuiltIn, "builtin", "", "Name of a built-in plan ("+strings.Join(builtInNames(), ", ")+")")
	runCmd.Flags().DurationVar(&runPoll, "poll", 200*time.Millisecond, "Trigger polling interval")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to GreptimeDB")
}

func builtInNames() []string {
	var names []string
	for n := range scenario.BuiltIn() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pickScenario loads the scenario file, or the named built-in when no file is given.
func pickScenario(path, builtin string) (*scenario.Scenario, error) {
	switch {
	case path != "" && builtin != "":
		return nil, fmt.Errorf("use either --scenario or --builtin")
	case path != "":
		return scenario.Load(path)
	case builtin != "":
		sc, ok := scenario.BuiltIn()[builtin]
		if !ok {
			return nil, fmt.Errorf("unknown built-in plan %q", builtin)
		}
		return &sc, nil
	}
	fmt.Fprintln(os.Stderr, "available plans:", strings.Join(builtInNames(), ", "))
	return nil, fmt.Errorf("a scenario is required")
}
