package sink

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"starcam-link/internal/config"
	"starcam-link/internal/telemetry"
)

func TestColorStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	cam := &config.Camera{Name: "starcam", Address: "10.0.0.5", Port: 8000, ProtocolVersion: 2}
	w := NewColorStdoutWriter(cam)
	w.out = &buf
	ts := time.Unix(1700000000, 0).UTC()

	rows := []telemetry.TelemetryRow{
		{SessionID: "0123456789abcdef", RA: 180.5, Dec: -23.25, FocusPosition: 2450, Aperture: 2.8, Exposure: 100, Timestamp: ts},
		{SessionID: "0123456789abcdef", FocusPosition: 2300, AutoFocusActive: true, AutoFocusFlux: 1234, Timestamp: ts},
	}
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := w.WriteFrame(telemetry.FrameRow{Sequence: 3, Bytes: 64, Mean: 12.5, Max: 200, Timestamp: ts}); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if err := w.WriteEvent(telemetry.EventRow{EventType: telemetry.EventDisconnected, Detail: "peer closed", Timestamp: ts}); err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := w.WriteState(telemetry.LinkStateRow{Receiver: "running", Records: 7, Frames: 6, Timestamp: ts}); err != nil {
		t.Fatalf("state: %v", err)
	}

	out := buf.String()
	if strings.Count(out, "Camera:") != 1 || !strings.Contains(out, "10.0.0.5:8000") || !strings.Contains(out, "v2") {
		t.Fatalf("overview missing or repeated:\n%s", out)
	}
	for _, want := range []string{
		"[2023-11-14T22:13:20Z]",
		"session=01234567" + colorReset,
		"ra=180.5000 dec=-23.2500",
		"focus=2450",
		"f/2.8 exp=100ms",
		"sweep flux=1234",
		colorBlue + "FRAME" + colorReset + " seq=3 bytes=64 mean=12.5 max=200",
		colorRed + "EVENT" + colorReset + " type=disconnected peer closed",
		"STATE" + colorReset + " receiver=running records=7 frames=6",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "sweep"); n != 1 {
		t.Errorf("sweep marker printed %d times", n)
	}
}

func TestColorStdoutWriterWithoutOverview(t *testing.T) {
	var buf bytes.Buffer
	w := NewColorStdoutWriter(nil)
	w.out = &buf
	if err := w.Write(telemetry.TelemetryRow{SessionID: "a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Contains(buf.String(), "Camera:") {
		t.Fatalf("unexpected overview:\n%s", buf.String())
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("want one line, got:\n%s", buf.String())
	}
}
