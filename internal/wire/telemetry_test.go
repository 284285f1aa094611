package wire

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func sampleTelemetry() TelemetryRecord {
	return TelemetryRecord{
		Timestamp:             1700000000.25,
		LogOdds:               1e8,
		Latitude:              0.5515,
		Longitude:             -104.2,
		Height:                1200.5,
		RA:                    180.5,
		Dec:                   -23.25,
		FieldRotation:         12.75,
		PixelScale:            6.2,
		ImageRotation:         -3.5,
		Altitude:              45.1,
		Azimuth:               270.3,
		PrevFocusPosition:     2100,
		FocusPosition:         2150,
		InfinityFocus:         1,
		ApertureSteps:         -3,
		MaxAperture:           0,
		MinFocusPosition:      0,
		MaxFocusPosition:      3500,
		Aperture:              56,
		Exposure:              700,
		CurrentExposure:       650,
		SpikeLimit:            3,
		DynamicHotPixels:      1,
		SmoothRadius:          2,
		HighPassFilter:        0,
		HighPassRadius:        10,
		CentroidBorder:        1,
		FilterReturnImage:     0,
		NSigma:                2.5,
		UniqueStarSpacing:     15,
		MakeStaticHotPixelMap: 0,
		UseStaticHotPixelMap:  1,
		Timeout:               60,
		AutoFocusBegin:        0,
		AutoFocusActive:       1,
		AutoFocusStart:        1900,
		AutoFocusEnd:          2400,
		AutoFocusStep:         10,
		PhotosPerStep:         3,
		AutoFocusFlux:         48213,
	}
}

func TestLayoutLengths(t *testing.T) {
	cases := []struct {
		name    string
		length  int
		data    int
		nfields int
		got     func() (int, int, int)
	}{
		{"telemetry v1", 220, 188, 33, func() (int, int, int) {
			return TelemetryV1.Length, TelemetryV1.DataLength(), len(TelemetryV1.Fields)
		}},
		{"telemetry v2", 224, 224, 41, func() (int, int, int) {
			return TelemetryV2.Length, TelemetryV2.DataLength(), len(TelemetryV2.Fields)
		}},
		{"command v1", 100, 100, 20, func() (int, int, int) {
			return CommandV1.Length, CommandV1.DataLength(), len(CommandV1.Fields)
		}},
		{"command v2", 128, 128, 26, func() (int, int, int) {
			return CommandV2.Length, CommandV2.DataLength(), len(CommandV2.Fields)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			length, data, n := tc.got()
			if length != tc.length || data != tc.data || n != tc.nfields {
				t.Fatalf("length=%d data=%d fields=%d, want %d/%d/%d", length, data, n, tc.length, tc.data, tc.nfields)
			}
		})
	}
}

func TestTelemetryRoundTripV2(t *testing.T) {
	in := sampleTelemetry()
	buf := TelemetryV2.Encode(&in)
	if len(buf) != 224 {
		t.Fatalf("encoded %d bytes, want 224", len(buf))
	}
	out, err := TelemetryV2.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestTelemetryRoundTripV1DropsV2Fields(t *testing.T) {
	in := sampleTelemetry()
	buf := TelemetryV1.Encode(&in)
	if len(buf) != 220 {
		t.Fatalf("encoded %d bytes, want 220", len(buf))
	}
	for i, b := range buf[188:] {
		if b != 0 {
			t.Fatalf("reserved byte %d = %#x, want 0", 188+i, b)
		}
	}
	out, err := TelemetryV1.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := in
	want.Timeout, want.AutoFocusBegin, want.AutoFocusActive = 0, 0, 0
	want.AutoFocusStart, want.AutoFocusEnd, want.AutoFocusStep = 0, 0, 0
	want.PhotosPerStep, want.AutoFocusFlux = 0, 0
	if out != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, want)
	}
}

func TestTelemetryDecodeWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 188, 220, 223, 225, 4096} {
		rec, err := TelemetryV2.Decode(make([]byte, n))
		if !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("len %d: err = %v, want ErrMalformedRecord", n, err)
		}
		if rec != (TelemetryRecord{}) {
			t.Fatalf("len %d: partial record returned: %+v", n, rec)
		}
	}
}

func TestTelemetryDecodeTimestamp(t *testing.T) {
	tests := []struct {
		ts      float64
		wantErr bool
	}{
		{math.NaN(), true},
		{math.Inf(1), true},
		{math.Inf(-1), true},
		{-1, false},
		{0, false},
	}
	for _, tt := range tests {
		buf := make([]byte, TelemetryV2.Length)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(tt.ts))
		rec, err := TelemetryV2.Decode(buf)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("timestamp %v: err = %v, want ErrMalformedRecord", tt.ts, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("timestamp %v: %v", tt.ts, err)
		}
		if got := rec.Time().Unix(); got != int64(tt.ts) {
			t.Fatalf("timestamp %v: Time().Unix() = %d", tt.ts, got)
		}
	}
}

func TestTelemetryDecodeKnownOffsets(t *testing.T) {
	buf := make([]byte, 224)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(1700000000.0))
	binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(180.5))
	binary.LittleEndian.PutUint64(buf[48:], math.Float64bits(-23.25))

	rec, err := TelemetryV2.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.RA != 180.5 || rec.Dec != -23.25 {
		t.Fatalf("ra/dec = %v/%v, want 180.5/-23.25", rec.RA, rec.Dec)
	}
	if got, want := rec.GMT(), "Tue Nov 14 22:13:20 2023"; got != want {
		t.Fatalf("GMT() = %q, want %q", got, want)
	}
	if got := rec.Time().Unix(); got != 1700000000 {
		t.Fatalf("Time().Unix() = %d", got)
	}
}

func TestTelemetryOffsets(t *testing.T) {
	cases := map[string]int{
		"timestamp":          0,
		"ra":                 40,
		"dec":                48,
		"focus_position":     100,
		"aperture":           124,
		"exposure":           128,
		"n_sigma":            172,
		"use_static_hp_mask": 184,
		"timeout":            188,
		"flux":               220,
	}
	for name, want := range cases {
		if got := TelemetryV2.Offset(name); got != want {
			t.Errorf("offset(%s) = %d, want %d", name, got, want)
		}
	}
	if got := TelemetryV1.Offset("timeout"); got != -1 {
		t.Errorf("v1 offset(timeout) = %d, want -1", got)
	}
}

func TestApertureIndex(t *testing.T) {
	rec := TelemetryRecord{Aperture: 56}
	idx, err := rec.ApertureIndex()
	if err != nil || FStops[idx] != "5.6" {
		t.Fatalf("ApertureIndex = %d, %v", idx, err)
	}
	if _, err := (TelemetryRecord{Aperture: 57}).ApertureIndex(); !errors.Is(err, ErrUnknownAperture) {
		t.Fatalf("expected ErrUnknownAperture, got %v", err)
	}
	steps, err := ApertureSteps("2.8", "4.0")
	if err != nil || steps != 4 {
		t.Fatalf("ApertureSteps(2.8, 4.0) = %d, %v", steps, err)
	}
	steps, err = ApertureSteps("32.0", "29.3")
	if err != nil || steps != -1 {
		t.Fatalf("ApertureSteps(32.0, 29.3) = %d, %v", steps, err)
	}
	if _, err := ApertureSteps("2.8", "f/4"); !errors.Is(err, ErrUnknownAperture) {
		t.Fatalf("expected ErrUnknownAperture, got %v", err)
	}
}

func TestLookupProtocol(t *testing.T) {
	p, err := LookupProtocol(2)
	if err != nil || p.Telemetry.Length != 224 || p.Command.Length != 128 {
		t.Fatalf("LookupProtocol(2) = %+v, %v", p, err)
	}
	if _, err := LookupProtocol(3); !errors.Is(err, ErrUnknownProtocol) {
		t.Fatalf("expected ErrUnknownProtocol, got %v", err)
	}
}
