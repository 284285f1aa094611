package wire

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestCommandEncodeFixedLength(t *testing.T) {
	records := []CommandRecord{
		{},
		{ApertureSteps: -28, FocusPosition: -1, SpikeLimit: Unchanged, NSigma: Unchanged},
		{InfinityFocus: 1, MaxAperture: 1, AutoFocus: 1, UseStaticHotPixelMap: 1, MakeStaticHotPixelMap: StaticHotPixelThreshold},
		{LogOdds: math.MaxFloat64, Latitude: -90, Longitude: 180, ApertureSteps: math.MaxInt32, AutoFocusStep: math.MinInt32},
	}
	for _, layout := range []*Layout[CommandRecord]{CommandV1, CommandV2} {
		for i := range records {
			buf := layout.Encode(&records[i])
			if len(buf) != layout.Length {
				t.Fatalf("v%d record %d: encoded %d bytes, want %d", layout.Version, i, len(buf), layout.Length)
			}
		}
	}
}

func TestCommandV1MatchesLegacyPacking(t *testing.T) {
	rec := CommandRecord{
		LogOdds:               1e9,
		Latitude:              31.6,
		Longitude:             -110.9,
		Height:                2100,
		Exposure:              800,
		FocusPosition:         2222,
		InfinityFocus:         0,
		ApertureSteps:         -2,
		MaxAperture:           1,
		MakeStaticHotPixelMap: StaticHotPixelThreshold,
		UseStaticHotPixelMap:  1,
		SpikeLimit:            Unchanged,
		NSigma:                2.5,
		UniqueStarSpacing:     15,
	}
	buf := CommandV1.Encode(&rec)

	if got := math.Float64frombits(binary.LittleEndian.Uint64(buf[32:])); got != 800 {
		t.Fatalf("exposure = %v", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[40:])); got != 2222 {
		t.Fatalf("focus = %v", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[48:])); got != -2 {
		t.Fatalf("aperture steps = %d", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[56:])); got != StaticHotPixelThreshold {
		t.Fatalf("make static map = %d", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[64:])); got != Unchanged {
		t.Fatalf("spike limit = %v", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[96:])); got != 15 {
		t.Fatalf("unique star spacing = %v", got)
	}
}

func TestCommandRoundTripV2(t *testing.T) {
	in := CommandRecord{
		LogOdds: 1e8, Latitude: 31.6, Longitude: -110.9, Height: 2100, Exposure: 800, Timeout: 30,
		FocusPosition: 2000, AutoFocus: 1, AutoFocusStart: 1800, AutoFocusEnd: 2300, AutoFocusStep: 25, PhotosPerStep: 2,
		ApertureSteps: 3, SmoothRadius: 2, HighPassRadius: 10, CentroidBorder: 1, NSigma: 2, UniqueStarSpacing: 15,
	}
	out, err := CommandV2.Decode(CommandV2.Encode(&in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
	if off := CommandV2.Offset("focus_position"); off != 48 {
		t.Fatalf("focus_position offset = %d, want 48", off)
	}
}

func TestCommandRequestsFlags(t *testing.T) {
	rec := CommandRecord{AutoFocus: 1, ApertureSteps: -1}
	if !rec.RequestsAutoFocus() || !rec.RequestsLensChange() {
		t.Fatalf("expected auto-focus and lens change: %+v", rec)
	}
	if (CommandRecord{}).RequestsLensChange() {
		t.Fatalf("empty record should not request lens change")
	}
}
