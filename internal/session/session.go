// Package session ties one camera link together: connection, receive loop, backup
// log, command sender, settings tracking and export.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"starcam-link/internal/backup"
	"starcam-link/internal/command"
	"starcam-link/internal/link"
	"starcam-link/internal/receiver"
	"starcam-link/internal/settings"
	"starcam-link/internal/sink"
	"starcam-link/internal/telemetry"
	"starcam-link/internal/track"
	"starcam-link/internal/wire"
)

// Options configure a Session.
type Options struct {
	Protocol   *wire.Protocol
	Link       link.Options
	BackupPath string
	// Handler receives the receiver events after the session has processed them.
	Handler receiver.Handler
	// Writer is any mix of sink writers; see sink.MultiWriter.
	Writer           any
	Camera           string
	PointingCapacity int
	Logger           *slog.Logger
	Now              func() time.Time
}

// Session is the operator-side facade for one camera.
type Session struct {
	opts     Options
	log      *slog.Logger
	links    *link.Manager
	backup   *backup.Logger
	recv     *receiver.Receiver
	sender   *command.Sender
	pub      *sink.Publisher
	tracker  settings.Tracker
	focus    track.FocusCurve
	pointing *track.Pointing

	mu          sync.Mutex
	active      *link.Conn
	lastAt      time.Time
	connectedAt time.Time
}

// New builds an unconnected Session. A nil Protocol selects protocol v2 and an empty
// BackupPath disables the backup log.
func New(opts Options) *Session {
	if opts.Protocol == nil {
		opts.Protocol = wire.ProtocolV2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Handler == nil {
		opts.Handler = receiver.HandlerFuncs{}
	}
	if opts.Camera == "" {
		opts.Camera = "starcam"
	}
	if opts.Link.Logger == nil {
		opts.Link.Logger = opts.Logger
	}

	s := &Session{
		opts:     opts,
		log:      opts.Logger,
		links:    link.NewManager(opts.Link),
		pointing: track.NewPointing(opts.PointingCapacity),
	}
	s.pub = &sink.Publisher{
		Writer:    opts.Writer,
		SessionID: s.SessionID,
		Camera:    opts.Camera,
		Logger:    opts.Logger,
		Now:       opts.Now,
	}
	cfg := receiver.Config{
		Protocol: opts.Protocol,
		Handler:  s,
		Logger:   opts.Logger,
	}
	if opts.BackupPath != "" {
		s.backup = backup.New(opts.BackupPath)
		cfg.Backup = s.backup
	}
	s.recv = receiver.New(cfg)
	s.sender = command.NewSender(command.Options{
		Protocol: opts.Protocol,
		Logger:   opts.Logger,
		Current:  s.recv.LastTelemetry,
		Now:      opts.Now,
	})
	return s
}

// Protocol returns the protocol the session speaks.
func (s *Session) Protocol() *wire.Protocol { return s.opts.Protocol }

// Connect opens the camera connection and, once it is up, prepares the backup log.
func (s *Session) Connect(ctx context.Context, address string, port int) error {
	c, err := s.links.Connect(ctx, address, port)
	if err != nil {
		return err
	}
	if s.backup != nil {
		if err := s.backup.Prepare(); err != nil {
			_ = s.links.Close()
			return err
		}
	}
	s.mu.Lock()
	s.connectedAt = s.opts.Now()
	s.lastAt = time.Time{}
	s.mu.Unlock()
	s.pub.Event(telemetry.EventConnected, c.Remote())
	return nil
}

// StartReceiving launches the receive loop on the open connection.
func (s *Session) StartReceiving(ctx context.Context) error {
	c := s.links.Current()
	if c == nil {
		return link.ErrNotConnected
	}
	s.mu.Lock()
	s.active = c
	s.mu.Unlock()
	return s.recv.Start(ctx, c)
}

// StopReceiving asks the receive loop to exit at its next iteration boundary.
func (s *Session) StopReceiving() {
	s.recv.Stop()
}

// Done is closed when the current receive loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.recv.Done()
}

// SendCommand fills the fields req leaves unset from the last reported settings,
// converts it and transmits it once. It fails with command.ErrNoTelemetry when req
// needs the current settings and no telemetry has arrived.
func (s *Session) SendCommand(req command.Request) (command.Receipt, error) {
	c := s.links.Current()
	if c == nil {
		return command.Receipt{}, link.ErrNotConnected
	}
	var current *settings.Snapshot
	if snap, ok := s.tracker.Current(); ok {
		current = &snap
	}
	rec, err := req.Record(current, s.opts.Protocol)
	if err != nil {
		return command.Receipt{}, err
	}
	receipt, err := s.sender.Send(c, rec)
	if err != nil {
		return receipt, err
	}
	s.tracker.Applied(rec)
	s.pub.Event(telemetry.EventCommandSent, receipt.String())
	for _, n := range receipt.Notices {
		s.log.Warn("command notice", "notice", n)
	}
	return receipt, nil
}

// Disconnect stops the receive loop and closes the connection. It waits for the
// loop to exit or ctx to end.
func (s *Session) Disconnect(ctx context.Context) error {
	running := s.recv.State() != receiver.Idle
	s.recv.Stop()
	c := s.links.Current()
	err := s.links.Close()
	if running {
		select {
		case <-s.recv.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if c != nil {
		s.pub.Event(telemetry.EventDisconnected, "closed by operator")
	}
	return err
}

// OnTelemetry implements receiver.Handler.
func (s *Session) OnTelemetry(rec wire.TelemetryRecord) {
	s.mu.Lock()
	s.lastAt = s.opts.Now()
	s.mu.Unlock()

	for _, ch := range s.tracker.Observe(rec) {
		s.log.Info("camera setting changed", "field", ch.Field, "from", ch.From, "to", ch.To)
		s.pub.Event(telemetry.EventSettingChanged, ch.String())
	}

	wasActive := s.focus.Active()
	s.focus.Observe(rec)
	switch active := s.focus.Active(); {
	case active && !wasActive:
		s.pub.Event(telemetry.EventFocusSweep, fmt.Sprintf("started %d..%d step %d", rec.AutoFocusStart, rec.AutoFocusEnd, rec.AutoFocusStep))
	case !active && wasActive:
		detail := "finished"
		if best, ok := s.focus.Best(); ok {
			detail = fmt.Sprintf("finished, best position %d flux %d", best.Position, best.Flux)
		}
		s.pub.Event(telemetry.EventFocusSweep, detail)
	}

	s.pointing.Observe(rec)
	s.pub.OnTelemetry(rec)
	s.opts.Handler.OnTelemetry(rec)
}

// OnImage implements receiver.Handler.
func (s *Session) OnImage(frame []byte) {
	s.pub.OnImage(frame)
	s.opts.Handler.OnImage(frame)
}

// OnDisconnected implements receiver.Handler. The connection the loop ran on is
// closed so a later Connect succeeds.
func (s *Session) OnDisconnected(err error) {
	s.mu.Lock()
	c := s.active
	s.active = nil
	s.mu.Unlock()
	if c != nil && s.links.Current() == c {
		_ = s.links.Close()
	}
	s.pub.OnDisconnected(err)
	s.opts.Handler.OnDisconnected(err)
}

// FocusCurve returns the samples of the current or last auto-focus sweep.
func (s *Session) FocusCurve() []track.FocusSample {
	return s.focus.Samples()
}

// Pointing returns the pointing history, oldest first.
func (s *Session) Pointing() []track.PointingSample {
	return s.pointing.Samples()
}

// Settings returns the tracked camera settings.
func (s *Session) Settings() (settings.Snapshot, bool) {
	return s.tracker.Current()
}

// SessionID returns the id of the open connection, or "".
func (s *Session) SessionID() string {
	if c := s.links.Current(); c != nil {
		return c.ID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active.ID()
	}
	return ""
}
