package camsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"starcam-link/internal/logging"
)

// Serve accepts operator connections on ln, one at a time, until ctx is done.
func (c *Camera) Serve(ctx context.Context, ln net.Listener) error {
	log := logging.FromContext(ctx)
	log.Info("camera simulator listening", "addr", ln.Addr().String(), "protocol", c.cfg.Protocol.Version, "interval", c.cfg.Interval)
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info("operator connected", "remote", nc.RemoteAddr().String())
		c.handle(ctx, nc, log)
		log.Info("operator disconnected", "remote", nc.RemoteAddr().String())
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (c *Camera) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return c.Serve(ctx, ln)
}

func (c *Camera) handle(ctx context.Context, nc net.Conn, log *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()
	defer nc.Close()

	go c.readCommands(nc, cancel, log)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	sent := 0
	for {
		rec, frame := c.Next(c.cfg.Now())
		cycle := append(c.cfg.Protocol.Telemetry.Encode(&rec), frame...)
		if err := c.writeAll(nc, cycle); err != nil {
			log.Warn("cycle write failed", "err", err)
			return
		}
		sent++
		if c.cfg.MaxCycles > 0 && sent >= c.cfg.MaxCycles {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// writeAll writes b in chunks of at most Chunk bytes until everything is sent.
func (c *Camera) writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n := len(b)
		if c.cfg.Chunk > 0 && n > c.cfg.Chunk {
			n = c.cfg.Chunk
		}
		written, err := w.Write(b[:n])
		if err != nil {
			return err
		}
		b = b[written:]
	}
	return nil
}

func (c *Camera) readCommands(r io.Reader, cancel context.CancelFunc, log *slog.Logger) {
	defer cancel()
	layout := c.cfg.Protocol.Command
	buf := make([]byte, layout.Length)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("command read failed", "err", err)
			}
			return
		}
		cmd, err := layout.Decode(buf)
		if err != nil {
			log.Warn("dropping command", "err", err)
			continue
		}
		c.Apply(cmd)
		log.Info("command applied", "auto_focus", cmd.AutoFocus != 0, "aperture_steps", cmd.ApertureSteps, "exposure", cmd.Exposure)
	}
}
