package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"starcam-link/internal/camsim"
	"starcam-link/internal/logging"
	"starcam-link/internal/wire"
)

var (
	simAddr      string
	simProtocol  int
	simInterval  time.Duration
	simChunk     int
	simSeed      int64
	simMaxCycles int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated star camera",
	Long:  "simulate serves telemetry and image cycles the way the camera does and applies the commands it receives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		proto, err := wire.LookupProtocol(simProtocol)
		if err != nil {
			return err
		}
		if envInterval := os.Getenv("STARCAM_SIM_INTERVAL"); envInterval != "" {
			d, err := time.ParseDuration(envInterval)
			if err != nil {
				return err
			}
			simInterval = d
		}
		if simInterval <= 0 {
			return fmt.Errorf("interval must be positive")
		}

		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logger))
		defer cancel()

		cam := camsim.New(camsim.Config{
			Protocol:  proto,
			Interval:  simInterval,
			Chunk:     simChunk,
			MaxCycles: simMaxCycles,
			Seed:      simSeed,
		})
		errc := make(chan error, 1)
		go func() { errc <- cam.ListenAndServe(ctx, simAddr) }()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case <-sigs:
		case err := <-errc:
			return err
		}

		cancel()
		<-errc
		logger.Info("camera simulator stopped", "cycles", cam.Cycles(), "commands", len(cam.Commands()))
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simAddr, "addr", fmt.Sprintf(":%d", wire.DefaultPort), "Listen address")
	simulateCmd.Flags().IntVar(&simProtocol, "protocol", 2, "Wire protocol version (1 or 2)")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "Cycle interval (e.g. 500ms, 2s)")
	simulateCmd.Flags().IntVar(&simChunk, "chunk", 0, "Split each cycle into writes of at most this many bytes")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Noise seed")
	simulateCmd.Flags().IntVar(&simMaxCycles, "max-cycles", 0, "Close each connection after this many cycles (0 runs until interrupted)")
}
