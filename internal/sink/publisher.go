package sink

import (
	"log/slog"
	"sync/atomic"
	"time"

	"starcam-link/internal/telemetry"
	"starcam-link/internal/wire"
)

// Publisher turns receiver callbacks into exported rows. It satisfies
// receiver.Handler. Writer errors are logged and never stop the link.
type Publisher struct {
	Writer    any
	SessionID func() string
	Camera    string
	Logger    *slog.Logger
	Now       func() time.Time

	seq atomic.Uint64
}

func (p *Publisher) session() string {
	if p.SessionID == nil {
		return ""
	}
	return p.SessionID()
}

func (p *Publisher) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Publisher) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// OnTelemetry exports the record as a TelemetryRow.
func (p *Publisher) OnTelemetry(rec wire.TelemetryRecord) {
	w, ok := p.Writer.(TelemetryWriter)
	if !ok {
		return
	}
	if err := w.Write(telemetry.NewTelemetryRow(p.session(), p.Camera, rec)); err != nil {
		p.log().Error("telemetry export failed", "err", err)
	}
}

// OnImage exports a frame summary. Sequence numbers start at 1 per Publisher.
func (p *Publisher) OnImage(frame []byte) {
	w, ok := p.Writer.(FrameWriter)
	if !ok {
		return
	}
	row := telemetry.NewFrameRow(p.session(), p.seq.Add(1), frame, p.now())
	if err := w.WriteFrame(row); err != nil {
		p.log().Error("frame export failed", "err", err)
	}
}

// OnDisconnected exports a disconnect event.
func (p *Publisher) OnDisconnected(err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	p.Event(telemetry.EventDisconnected, detail)
}

// Event exports an arbitrary event row.
func (p *Publisher) Event(kind, detail string) {
	w, ok := p.Writer.(EventWriter)
	if !ok {
		return
	}
	row := telemetry.EventRow{SessionID: p.session(), EventType: kind, Detail: detail, Timestamp: p.now()}
	if err := w.WriteEvent(row); err != nil {
		p.log().Error("event export failed", "event", kind, "err", err)
	}
}

// State exports a link state row.
func (p *Publisher) State(row telemetry.LinkStateRow) {
	w, ok := p.Writer.(StateWriter)
	if !ok {
		return
	}
	if err := w.WriteState(row); err != nil {
		p.log().Error("state export failed", "err", err)
	}
}
