// Package sink exports link telemetry to files, stdout, GreptimeDB and a terminal UI.
package sink

import "starcam-link/internal/telemetry"

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(row telemetry.TelemetryRow) error
}

// FrameWriter receives per-image summaries.
type FrameWriter interface {
	WriteFrame(row telemetry.FrameRow) error
}

// EventWriter receives link and camera events.
type EventWriter interface {
	WriteEvent(row telemetry.EventRow) error
}

// StateWriter receives periodic link state.
type StateWriter interface {
	WriteState(row telemetry.LinkStateRow) error
}

type batchWriter interface {
	WriteBatch(rows []telemetry.TelemetryRow) error
}
