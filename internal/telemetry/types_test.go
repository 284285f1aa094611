package telemetry

import (
	"testing"
	"time"

	"starcam-link/internal/wire"
)

func TestNewTelemetryRow(t *testing.T) {
	rec := wire.TelemetryRecord{
		Timestamp:       1700000000.0,
		RA:              180.5,
		Dec:             -23.25,
		FocusPosition:   2100,
		Aperture:        56,
		Exposure:        250,
		AutoFocusActive: 1,
		AutoFocusFlux:   900,
	}
	row := NewTelemetryRow("s1", "starcam", rec)
	if row.SessionID != "s1" || row.Camera != "starcam" {
		t.Fatalf("tags = %q %q", row.SessionID, row.Camera)
	}
	if row.RA != 180.5 || row.Dec != -23.25 || row.Aperture != 5.6 || row.Exposure != 250 {
		t.Fatalf("row = %+v", row)
	}
	if !row.AutoFocusActive || row.AutoFocusFlux != 900 || row.FocusPosition != 2100 {
		t.Fatalf("focus fields = %+v", row)
	}
	if !row.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("timestamp = %v", row.Timestamp)
	}
	if row.TableName() != TelemetryTableName {
		t.Fatalf("table = %s", row.TableName())
	}
}

func TestNewFrameRow(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	cases := []struct {
		name  string
		frame []byte
		mean  float64
		max   uint8
	}{
		{"empty", nil, 0, 0},
		{"flat", []byte{10, 10, 10, 10}, 10, 10},
		{"star", []byte{0, 0, 0, 200}, 50, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := NewFrameRow("s1", 7, tc.frame, at)
			if row.Bytes != len(tc.frame) || row.Mean != tc.mean || row.Max != tc.max || row.Sequence != 7 {
				t.Fatalf("row = %+v", row)
			}
			if row.Timestamp.Location() != time.UTC || !row.Timestamp.Equal(at) {
				t.Fatalf("timestamp = %v", row.Timestamp)
			}
		})
	}
}
