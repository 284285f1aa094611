// Package command builds and transmits operator command records.
package command

import (
	"fmt"
	"log/slog"
	"time"

	"starcam-link/internal/metrics"
	"starcam-link/internal/wire"
)

// Transmitter writes one encoded buffer. *link.Conn satisfies it.
type Transmitter interface {
	Send(b []byte) error
}

// Notices attached to a receipt.
const (
	NoticeAutoFocusPrecedence = "auto-focus was requested together with lens commands; the camera runs auto-focus first and lens commands may be superseded"
	NoticeStaticMapOneShot    = "a static hot-pixel map was requested; the camera makes the map once and then clears the flag"
)

// Receipt describes a transmitted command.
type Receipt struct {
	Bytes     int       `json:"bytes"`
	Protocol  int       `json:"protocol"`
	SentAt    time.Time `json:"sent_at"`
	AutoFocus bool      `json:"auto_focus"`
	StaticMap bool      `json:"static_map"`
	Notices   []string  `json:"notices,omitempty"`
}

// Options configure a Sender.
type Options struct {
	Protocol *wire.Protocol
	Logger   *slog.Logger
	// Current returns the last telemetry, used to tell whether the exposure changes.
	Current func() (wire.TelemetryRecord, bool)
	Now     func() time.Time
}

// Sender encodes command records with one protocol and writes them in a single send.
type Sender struct {
	opts Options
}

// NewSender returns a Sender. A nil Protocol selects protocol v2.
func NewSender(opts Options) *Sender {
	if opts.Protocol == nil {
		opts.Protocol = wire.ProtocolV2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sender{opts: opts}
}

// Protocol returns the protocol used for encoding.
func (s *Sender) Protocol() *wire.Protocol { return s.opts.Protocol }

// Send encodes rec and transmits it once. Failures are returned as-is; commands are
// never retried.
func (s *Sender) Send(t Transmitter, rec wire.CommandRecord) (Receipt, error) {
	buf := s.opts.Protocol.Command.Encode(&rec)
	if err := t.Send(buf); err != nil {
		metrics.CommandsSent.WithLabelValues("error").Inc()
		s.opts.Logger.Error("command send failed", "err", err)
		return Receipt{}, err
	}
	metrics.CommandsSent.WithLabelValues("ok").Inc()

	r := Receipt{
		Bytes:     len(buf),
		Protocol:  s.opts.Protocol.Version,
		SentAt:    s.opts.Now(),
		AutoFocus: rec.RequestsAutoFocus(),
		StaticMap: rec.MakeStaticHotPixelMap != 0,
	}
	if r.AutoFocus && s.lensChange(rec) {
		r.Notices = append(r.Notices, NoticeAutoFocusPrecedence)
	}
	if r.StaticMap {
		r.Notices = append(r.Notices, NoticeStaticMapOneShot)
	}
	s.opts.Logger.Info("command sent", "bytes", r.Bytes, "protocol", r.Protocol, "notices", len(r.Notices))
	return r, nil
}

func (s *Sender) lensChange(rec wire.CommandRecord) bool {
	if rec.RequestsLensChange() {
		return true
	}
	if s.opts.Current == nil {
		return false
	}
	cur, ok := s.opts.Current()
	return ok && cur.Exposure != rec.Exposure
}

// String is used in log and CLI output.
func (r Receipt) String() string {
	return fmt.Sprintf("sent %d bytes (protocol v%d) at %s", r.Bytes, r.Protocol, r.SentAt.UTC().Format(time.RFC3339))
}
