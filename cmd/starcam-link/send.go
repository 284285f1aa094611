package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"starcam-link/internal/command"
	"starcam-link/internal/logging"
	"starcam-link/internal/session"
)

var (
	sendFile string
	sendWait time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one command record to the camera",
	Long:  "send reads a YAML command file, connects to the camera and transmits it once. Fields the file leaves out keep the camera's current values, so send waits for a telemetry record unless the file sets every one of them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readRequest(sendFile)
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		writer, cleanup, err := newWriters(cfg, true, false)
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := newSession(cfg, writer, logger)
		if err != nil {
			return err
		}

		ctx := logging.NewContext(context.Background(), logger)
		if err := sess.Connect(ctx, cfg.Camera.Address, cfg.Camera.Port); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sess.Disconnect(shutdownCtx)
		}()

		if req.NeedsCurrent() {
			if err := awaitTelemetry(ctx, sess, sendWait); err != nil {
				return err
			}
		}
		receipt, err := sess.SendCommand(req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), receipt)
		for _, n := range receipt.Notices {
			fmt.Fprintln(cmd.OutOrStdout(), "note:", n)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendFile, "file", "", "Path to YAML command file")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 5*time.Second, "How long to wait for telemetry when the command keeps current settings")
	sendCmd.MarkFlagRequired("file")
}

// readRequest loads a command file. Unknown keys are rejected.
func readRequest(path string) (command.Request, error) {
	var req command.Request
	f, err := os.Open(path)
	if err != nil {
		return req, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

// awaitTelemetry starts receiving and waits for the first record.
func awaitTelemetry(ctx context.Context, sess *session.Session, wait time.Duration) error {
	if err := sess.StartReceiving(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok := sess.Settings(); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no telemetry within %s: %w", wait, ctx.Err())
		case <-sess.Done():
			return fmt.Errorf("link closed before telemetry arrived")
		case <-ticker.C:
		}
	}
}
