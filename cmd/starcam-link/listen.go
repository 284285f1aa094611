package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"starcam-link/internal/admin"
	"starcam-link/internal/config"
	"starcam-link/internal/link"
	"starcam-link/internal/logging"
	"starcam-link/internal/session"
)

var (
	listenPrintOnly bool
	listenNoTUI     bool
	listenText      bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to the camera and record telemetry and images",
	Long:  "listen connects to the star camera, appends every telemetry record to the backup log and exports rows until interrupted or the camera closes the link.",
	RunE: func(cmd *cobra.Command, args []string) error {
		useTUI := !listenNoTUI && term.IsTerminal(int(os.Stdout.Fd()))
		cfg, logger, err := loadConfig(useTUI)
		if err != nil {
			return err
		}
		if listenText {
			cfg.Export.StdoutFormat = "text"
		}
		writer, cleanup, err := newWriters(cfg, listenPrintOnly, useTUI)
		if err != nil {
			return err
		}
		defer cleanup()

		sess, err := newSession(cfg, writer, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logger))
		defer cancel()

		if err := sess.Connect(ctx, cfg.Camera.Address, cfg.Camera.Port); err != nil {
			return err
		}
		if err := sess.StartReceiving(ctx); err != nil {
			return err
		}
		logger.Info("receiving", "camera", cfg.Camera.Name, "remote", sess.Status().Remote, "protocol", cfg.Camera.ProtocolVersion)

		go sess.ReportState(ctx, cfg.Export.StateInterval)

		if cfg.Admin.Listen != "" {
			srv := admin.NewServer(sess, admin.Target{Name: cfg.Camera.Name, Address: cfg.Camera.Address, Port: cfg.Camera.Port}, logger)
			go func() {
				logger.Info("admin server listening", "addr", cfg.Admin.Listen)
				if err := srv.Start(ctx, cfg.Admin.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin server failed", "err", err)
				}
			}()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case <-sigs:
		case <-sess.Done():
			// with the admin server up the operator may reconnect, so keep running
			if cfg.Admin.Listen != "" {
				<-sigs
			}
		}

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := sess.Disconnect(shutdownCtx); err != nil {
			logger.Warn("disconnect", "err", err)
		}
		cancel()
		st := sess.Status()
		logger.Info("link closed", "records", st.Records, "frames", st.Frames, "malformed", st.Malformed, "backup", cfg.Backup.Path)
		return nil
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenPrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to GreptimeDB")
	listenCmd.Flags().BoolVar(&listenNoTUI, "no-tui", false, "Print lines even when STDOUT is a terminal")
	listenCmd.Flags().BoolVar(&listenText, "text", false, "Print colored text lines instead of JSON")
}

// newSession builds a session from the camera, backup and export settings.
func newSession(cfg *config.Config, writer any, logger *slog.Logger) (*session.Session, error) {
	proto, err := cfg.Protocol()
	if err != nil {
		return nil, err
	}
	return session.New(session.Options{
		Protocol: proto,
		Link: link.Options{
			ConnectTimeout: cfg.Camera.ConnectTimeout,
			ReadTimeout:    cfg.Camera.ReadTimeout,
			Logger:         logger,
		},
		BackupPath: cfg.Backup.Path,
		Writer:     writer,
		Camera:     cfg.Camera.Name,
		Logger:     logger,
	}), nil
}
