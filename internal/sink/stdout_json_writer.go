package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"starcam-link/internal/telemetry"
)

// JSONStdoutWriter prints rows as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a telemetry row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.TelemetryRow) error {
	return w.emit(row)
}

// WriteBatch outputs multiple telemetry rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame outputs a frame summary in JSON format.
func (w *JSONStdoutWriter) WriteFrame(row telemetry.FrameRow) error {
	return w.emit(row)
}

// WriteEvent outputs an event in JSON format.
func (w *JSONStdoutWriter) WriteEvent(row telemetry.EventRow) error {
	return w.emit(row)
}
