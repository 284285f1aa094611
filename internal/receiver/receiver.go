// Package receiver runs the telemetry + image receive loop for one camera link.
package receiver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"starcam-link/internal/metrics"
	"starcam-link/internal/wire"
)

// ErrNotIdle is returned by Start while a worker is already running or stopping.
var ErrNotIdle = errors.New("receiver not idle")

// State of the receive loop.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Handler receives the events of the loop. All callbacks run on the worker goroutine,
// record before image, cycle N before cycle N+1.
type Handler interface {
	OnTelemetry(rec wire.TelemetryRecord)
	OnImage(frame []byte)
	OnDisconnected(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil funcs are skipped.
type HandlerFuncs struct {
	Telemetry    func(wire.TelemetryRecord)
	Image        func([]byte)
	Disconnected func(error)
}

func (h HandlerFuncs) OnTelemetry(rec wire.TelemetryRecord) {
	if h.Telemetry != nil {
		h.Telemetry(rec)
	}
}

func (h HandlerFuncs) OnImage(frame []byte) {
	if h.Image != nil {
		h.Image(frame)
	}
}

func (h HandlerFuncs) OnDisconnected(err error) {
	if h.Disconnected != nil {
		h.Disconnected(err)
	}
}

// Backup persists each decoded record. *backup.Logger satisfies it.
type Backup interface {
	Append(rec wire.TelemetryRecord) error
}

// Stream is the read side of a camera connection. *link.Conn satisfies it.
type Stream interface {
	ReceiveInto(buf []byte) error
}

// Config wires a Receiver.
type Config struct {
	Protocol *wire.Protocol
	Backup   Backup
	Handler  Handler
	Logger   *slog.Logger
}

// Receiver owns at most one worker goroutine at a time.
type Receiver struct {
	cfg Config

	mu      sync.Mutex
	state   State
	done    chan struct{}
	last    wire.TelemetryRecord
	hasLast bool

	stop      atomic.Bool
	records   atomic.Uint64
	frames    atomic.Uint64
	malformed atomic.Uint64
}

// Counters are totals over the receiver's lifetime.
type Counters struct {
	Records   uint64 `json:"records"`
	Frames    uint64 `json:"frames"`
	Malformed uint64 `json:"malformed"`
}

// Counters returns the record, frame and malformed totals.
func (r *Receiver) Counters() Counters {
	return Counters{
		Records:   r.records.Load(),
		Frames:    r.frames.Load(),
		Malformed: r.malformed.Load(),
	}
}

// New creates an idle Receiver. A nil Protocol selects protocol v2.
func New(cfg Config) *Receiver {
	if cfg.Protocol == nil {
		cfg.Protocol = wire.ProtocolV2
	}
	if cfg.Handler == nil {
		cfg.Handler = HandlerFuncs{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Receiver{cfg: cfg, done: done}
}

// State returns the current loop state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed when the current worker has exited. Before the first Start it is
// already closed.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// LastTelemetry returns the most recent decoded record.
func (r *Receiver) LastTelemetry() (wire.TelemetryRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

// Start launches the worker on s. Cancelling ctx behaves like Stop.
func (r *Receiver) Start(ctx context.Context, s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return ErrNotIdle
	}
	r.stop.Store(false)
	r.done = make(chan struct{})
	r.setStateLocked(Running)
	go r.run(ctx, s, r.done)
	return nil
}

// Stop asks the worker to exit at the next iteration boundary. It does not wait;
// use Done. A read blocked on the socket ends only on data, close or read timeout.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return
	}
	r.stop.Store(true)
	r.setStateLocked(Stopping)
}

func (r *Receiver) setStateLocked(s State) {
	r.state = s
	metrics.ReceiverState.Set(float64(s))
}

func (r *Receiver) run(ctx context.Context, s Stream, done chan struct{}) {
	log := r.cfg.Logger
	defer func() {
		r.mu.Lock()
		r.setStateLocked(Idle)
		r.mu.Unlock()
		close(done)
		log.Info("receiver stopped")
	}()

	proto := r.cfg.Protocol
	recBuf := make([]byte, proto.Telemetry.Length)
	log.Info("receiver started", "protocol", proto.Version, "record_bytes", len(recBuf), "image_bytes", proto.ImageSize)

	for {
		if r.stop.Load() || ctx.Err() != nil {
			return
		}

		if err := s.ReceiveInto(recBuf); err != nil {
			r.disconnected(err)
			return
		}
		rec, err := proto.Telemetry.Decode(recBuf)
		valid := err == nil
		if !valid {
			r.malformed.Add(1)
			metrics.MalformedRecords.Inc()
			log.Warn("dropping malformed telemetry record", "err", err)
		} else {
			r.mu.Lock()
			r.last, r.hasLast = rec, true
			r.mu.Unlock()
			if r.cfg.Backup != nil {
				if err := r.cfg.Backup.Append(rec); err != nil {
					metrics.BackupFailures.Inc()
					log.Error("backup append failed", "err", err)
				}
			}
			r.records.Add(1)
			metrics.TelemetryRecords.Inc()
			r.cfg.Handler.OnTelemetry(rec)
		}

		// The image is always consumed so the next record starts on a cycle boundary.
		frame := make([]byte, proto.ImageSize)
		if err := s.ReceiveInto(frame); err != nil {
			r.disconnected(err)
			return
		}
		if !valid {
			continue
		}
		r.frames.Add(1)
		metrics.ImageFrames.Inc()
		r.cfg.Handler.OnImage(frame)
	}
}

func (r *Receiver) disconnected(err error) {
	metrics.Disconnects.Inc()
	r.cfg.Logger.Warn("camera link lost", "err", err)
	r.cfg.Handler.OnDisconnected(err)
}
