package sink

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"starcam-link/internal/telemetry"
)

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	ts := time.Unix(0, 0).UTC()
	if err := w.WriteBatch([]telemetry.TelemetryRow{{SessionID: "s", RA: 1}, {SessionID: "s", RA: 2}}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := w.WriteEvent(telemetry.EventRow{EventType: telemetry.EventFocusSweep, Timestamp: ts}); err != nil {
		t.Fatalf("event: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	var row telemetry.TelemetryRow
	if err := json.Unmarshal([]byte(lines[1]), &row); err != nil || row.RA != 2 {
		t.Fatalf("row = %#v, %v", row, err)
	}
	if !strings.Contains(lines[2], `"event_type":"focus_sweep"`) {
		t.Fatalf("event line = %s", lines[2])
	}
}
