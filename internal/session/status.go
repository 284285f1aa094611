package session

import (
	"context"
	"time"

	"starcam-link/internal/receiver"
	"starcam-link/internal/telemetry"
)

// Status is a point-in-time view of the session.
type Status struct {
	Connected bool   `json:"connected"`
	Remote    string `json:"remote,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Receiver  string `json:"receiver"`
	Protocol  int    `json:"protocol"`
	receiver.Counters
	// SinceTelemetry counts seconds since the last record, or since connecting when
	// none has arrived yet. Zero while disconnected.
	SinceTelemetry   float64                 `json:"since_telemetry_s"`
	FocusCurveLength int                     `json:"focus_curve_len"`
	FocusActive      bool                    `json:"focus_active"`
	Last             *telemetry.TelemetryRow `json:"last,omitempty"`
	// Pending holds commanded settings telemetry has not reported yet.
	Pending map[string]float64 `json:"pending,omitempty"`
}

// Status reports the current link state.
func (s *Session) Status() Status {
	st := Status{
		Receiver:         s.recv.State().String(),
		Protocol:         s.opts.Protocol.Version,
		Counters:         s.recv.Counters(),
		FocusCurveLength: len(s.focus.Samples()),
		FocusActive:      s.focus.Active(),
		SessionID:        s.SessionID(),
		Pending:          s.tracker.Pending(),
	}
	if c := s.links.Current(); c != nil {
		st.Connected = true
		st.Remote = c.Remote()
		s.mu.Lock()
		since := s.lastAt
		if since.IsZero() {
			since = s.connectedAt
		}
		s.mu.Unlock()
		if !since.IsZero() {
			st.SinceTelemetry = s.opts.Now().Sub(since).Seconds()
		}
	}
	if rec, ok := s.recv.LastTelemetry(); ok {
		row := telemetry.NewTelemetryRow(st.SessionID, s.opts.Camera, rec)
		st.Last = &row
	}
	return st
}

// StateRow converts the status for export.
func (st Status) StateRow(at time.Time) telemetry.LinkStateRow {
	return telemetry.LinkStateRow{
		SessionID:        st.SessionID,
		Remote:           st.Remote,
		Receiver:         st.Receiver,
		Records:          st.Records,
		Frames:           st.Frames,
		Malformed:        st.Malformed,
		SinceTelemetry:   st.SinceTelemetry,
		FocusCurveLength: st.FocusCurveLength,
		Timestamp:        at.UTC(),
	}
}

// ReportState publishes a state row every interval until ctx is done.
func (s *Session) ReportState(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pub.State(s.Status().StateRow(s.opts.Now()))
		}
	}
}
