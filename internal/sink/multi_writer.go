package sink

import "starcam-link/internal/telemetry"

// MultiWriter fan-outs rows to multiple writers. A writer is registered for each
// row kind it implements.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	framewriters []FrameWriter
	eventwriters []EventWriter
	statewriters []StateWriter
}

// NewMultiWriter creates a MultiWriter from any mix of writers.
func NewMultiWriter(writers ...any) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		mw.Add(w)
	}
	return mw
}

// Add registers w for every row kind it supports.
func (mw *MultiWriter) Add(w any) {
	if tw, ok := w.(TelemetryWriter); ok {
		mw.telewriters = append(mw.telewriters, tw)
	}
	if fw, ok := w.(FrameWriter); ok {
		mw.framewriters = append(mw.framewriters, fw)
	}
	if ew, ok := w.(EventWriter); ok {
		mw.eventwriters = append(mw.eventwriters, ew)
	}
	if sw, ok := w.(StateWriter); ok {
		mw.statewriters = append(mw.statewriters, sw)
	}
}

// Write sends a telemetry row to all writers.
func (mw *MultiWriter) Write(row telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple telemetry rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFrame sends a frame row to all frame writers.
func (mw *MultiWriter) WriteFrame(row telemetry.FrameRow) error {
	for _, w := range mw.framewriters {
		if err := w.WriteFrame(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent sends an event row to all event writers.
func (mw *MultiWriter) WriteEvent(row telemetry.EventRow) error {
	for _, w := range mw.eventwriters {
		if err := w.WriteEvent(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteState sends a link state row to all state writers.
func (mw *MultiWriter) WriteState(row telemetry.LinkStateRow) error {
	for _, w := range mw.statewriters {
		if err := w.WriteState(row); err != nil {
			return err
		}
	}
	return nil
}
