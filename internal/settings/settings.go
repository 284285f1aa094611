// Package settings compares the camera settings reported in telemetry with the
// settings last commanded by the operator.
package settings

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"starcam-link/internal/wire"
)

// Snapshot holds the operator-adjustable camera settings. Flags are 0 or 1 and the
// aperture is an f-number.
type Snapshot struct {
	LogOdds   float64 `json:"logodds"`
	Latitude  float64 `json:"latitude"` // degrees
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"height"`
	Exposure  float64 `json:"exposure"`
	Timeout   float64 `json:"timeout"`

	FocusPosition    float64 `json:"focus_position"`
	MinFocusPosition float64 `json:"min_focus_position"`
	MaxFocusPosition float64 `json:"max_focus_position"`
	InfinityFocus    float64 `json:"infinity_focus"`

	Aperture    float64 `json:"aperture"`
	MaxAperture float64 `json:"max_aperture"`

	SpikeLimit            float64 `json:"spike_limit"`
	DynamicHotPixels      float64 `json:"dynamic_hot_pixels"`
	SmoothRadius          float64 `json:"smooth_radius"`
	HighPassFilter        float64 `json:"high_pass_filter"`
	HighPassRadius        float64 `json:"high_pass_radius"`
	CentroidBorder        float64 `json:"centroid_border"`
	FilterReturnImage     float64 `json:"filter_return_image"`
	NSigma                float64 `json:"n_sigma"`
	UniqueStarSpacing     float64 `json:"unique_star_spacing"`
	MakeStaticHotPixelMap float64 `json:"make_static_hot_pixel_map"`
	UseStaticHotPixelMap  float64 `json:"use_static_hot_pixel_map"`
}

type field struct {
	name string
	ref  func(*Snapshot) *float64
}

var fields = []field{
	{"logodds", func(s *Snapshot) *float64 { return &s.LogOdds }},
	{"latitude", func(s *Snapshot) *float64 { return &s.Latitude }},
	{"longitude", func(s *Snapshot) *float64 { return &s.Longitude }},
	{"height", func(s *Snapshot) *float64 { return &s.Height }},
	{"exposure", func(s *Snapshot) *float64 { return &s.Exposure }},
	{"timeout", func(s *Snapshot) *float64 { return &s.Timeout }},
	{"focus_position", func(s *Snapshot) *float64 { return &s.FocusPosition }},
	{"min_focus_position", func(s *Snapshot) *float64 { return &s.MinFocusPosition }},
	{"max_focus_position", func(s *Snapshot) *float64 { return &s.MaxFocusPosition }},
	{"infinity_focus", func(s *Snapshot) *float64 { return &s.InfinityFocus }},
	{"aperture", func(s *Snapshot) *float64 { return &s.Aperture }},
	{"max_aperture", func(s *Snapshot) *float64 { return &s.MaxAperture }},
	{"spike_limit", func(s *Snapshot) *float64 { return &s.SpikeLimit }},
	{"dynamic_hot_pixels", func(s *Snapshot) *float64 { return &s.DynamicHotPixels }},
	{"smooth_radius", func(s *Snapshot) *float64 { return &s.SmoothRadius }},
	{"high_pass_filter", func(s *Snapshot) *float64 { return &s.HighPassFilter }},
	{"high_pass_radius", func(s *Snapshot) *float64 { return &s.HighPassRadius }},
	{"centroid_border", func(s *Snapshot) *float64 { return &s.CentroidBorder }},
	{"filter_return_image", func(s *Snapshot) *float64 { return &s.FilterReturnImage }},
	{"n_sigma", func(s *Snapshot) *float64 { return &s.NSigma }},
	{"unique_star_spacing", func(s *Snapshot) *float64 { return &s.UniqueStarSpacing }},
	{"make_static_hot_pixel_map", func(s *Snapshot) *float64 { return &s.MakeStaticHotPixelMap }},
	{"use_static_hot_pixel_map", func(s *Snapshot) *float64 { return &s.UseStaticHotPixelMap }},
}

// FromTelemetry extracts the settings from a telemetry record. Latitude is reported in
// radians and converted to degrees.
func FromTelemetry(rec wire.TelemetryRecord) Snapshot {
	return Snapshot{
		LogOdds:   rec.LogOdds,
		Latitude:  rec.Latitude * 180 / math.Pi,
		Longitude: rec.Longitude,
		Height:    rec.Height,
		Exposure:  rec.Exposure,
		Timeout:   rec.Timeout,

		FocusPosition:    float64(rec.FocusPosition),
		MinFocusPosition: float64(rec.MinFocusPosition),
		MaxFocusPosition: float64(rec.MaxFocusPosition),
		InfinityFocus:    flag(rec.InfinityFocus),

		Aperture:    rec.FNumber(),
		MaxAperture: flag(rec.MaxAperture),

		SpikeLimit:            float64(rec.SpikeLimit),
		DynamicHotPixels:      flag(rec.DynamicHotPixels),
		SmoothRadius:          float64(rec.SmoothRadius),
		HighPassFilter:        flag(rec.HighPassFilter),
		HighPassRadius:        float64(rec.HighPassRadius),
		CentroidBorder:        float64(rec.CentroidBorder),
		FilterReturnImage:     flag(rec.FilterReturnImage),
		NSigma:                float64(rec.NSigma),
		UniqueStarSpacing:     float64(rec.UniqueStarSpacing),
		MakeStaticHotPixelMap: flag(rec.MakeStaticHotPixelMap),
		UseStaticHotPixelMap:  flag(rec.UseStaticHotPixelMap),
	}
}

func flag(v int32) float64 {
	if v != 0 {
		return 1
	}
	return 0
}

func flagF(v float32) float64 {
	if v != 0 {
		return 1
	}
	return 0
}

// Apply returns the settings expected after the camera services cmd. Blob parameters
// sent as wire.Unchanged keep their value; aperture steps move along wire.FStops.
// An auto-focus sweep leaves the focus position to the camera.
func (s Snapshot) Apply(cmd wire.CommandRecord) Snapshot {
	n := s
	n.LogOdds = cmd.LogOdds
	n.Latitude = cmd.Latitude
	n.Longitude = cmd.Longitude
	n.Height = cmd.Height
	n.Exposure = cmd.Exposure
	n.Timeout = cmd.Timeout

	n.InfinityFocus = flagF(cmd.InfinityFocus)
	if cmd.AutoFocus == 0 && cmd.InfinityFocus == 0 {
		n.FocusPosition = float64(cmd.FocusPosition)
	}

	n.MaxAperture = flagF(cmd.MaxAperture)
	if cmd.ApertureSteps != 0 {
		if idx, err := wire.ApertureIndexForValue(s.Aperture); err == nil {
			idx = min(max(idx+int(cmd.ApertureSteps), 0), len(wire.FStops)-1)
			n.Aperture = fnumber(idx)
		}
	}

	keep(&n.SpikeLimit, cmd.SpikeLimit)
	keep(&n.SmoothRadius, cmd.SmoothRadius)
	keep(&n.HighPassRadius, cmd.HighPassRadius)
	keep(&n.CentroidBorder, cmd.CentroidBorder)
	keep(&n.NSigma, cmd.NSigma)
	keep(&n.UniqueStarSpacing, cmd.UniqueStarSpacing)
	n.DynamicHotPixels = flagF(cmd.DynamicHotPixels)
	n.HighPassFilter = flagF(cmd.HighPassFilter)
	n.FilterReturnImage = flagF(cmd.FilterReturnImage)
	n.MakeStaticHotPixelMap = flag(cmd.MakeStaticHotPixelMap)
	n.UseStaticHotPixelMap = flag(cmd.UseStaticHotPixelMap)
	return n
}

func keep(dst *float64, v float32) {
	if v != wire.Unchanged {
		*dst = float64(v)
	}
}

func fnumber(idx int) float64 {
	v, _ := strconv.ParseFloat(wire.FStops[idx], 64)
	return v
}

// Change is one field whose value differs between two snapshots.
type Change struct {
	Field string  `json:"field"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %g -> %g", c.Field, c.From, c.To)
}

// Diff lists the fields that differ between prev and next, in a fixed order. Values
// within a relative 1e-9 of each other, such as a latitude that went through a
// degree/radian round trip, are equal.
func Diff(prev, next Snapshot) []Change {
	var out []Change
	for _, f := range fields {
		a, b := *f.ref(&prev), *f.ref(&next)
		if !same(a, b) {
			out = append(out, Change{Field: f.name, From: a, To: b})
		}
	}
	return out
}

func same(a, b float64) bool {
	if a == b || (math.IsNaN(a) && math.IsNaN(b)) {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// pendingRecords is how many telemetry records a commanded value may take to show up
// before the tracker stops waiting for it.
const pendingRecords = 16

type pending struct {
	want float64
	left int
}

// Tracker keeps the settings last reported by the camera and reports changes the
// camera made that the operator did not command. A commanded value is pending until
// telemetry reports it; records that still carry the old value are not changes, and
// the record that reports the commanded value is not one either.
type Tracker struct {
	mu       sync.Mutex
	last     Snapshot
	have     bool
	sweeping bool
	pending  map[string]pending
}

// Observe compares rec with the last reported state and adopts rec as the new state.
// The first record only seeds the tracker. Focus moves made by an auto-focus sweep
// are not reported.
func (t *Tracker) Observe(rec wire.TelemetryRecord) []Change {
	next := FromTelemetry(rec)
	sweeping := rec.AutoFocusActive != 0
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.have {
		t.last, t.have, t.sweeping = next, true, sweeping
		return nil
	}

	var out []Change
	for _, c := range Diff(t.last, next) {
		if c.Field == "focus_position" && (sweeping || t.sweeping) {
			continue
		}
		if p, ok := t.pending[c.Field]; ok && same(c.To, p.want) {
			delete(t.pending, c.Field)
			continue
		}
		out = append(out, c)
	}
	for name, p := range t.pending {
		if p.left--; p.left <= 0 {
			delete(t.pending, name)
			continue
		}
		t.pending[name] = p
	}
	t.last, t.sweeping = next, sweeping
	return out
}

// Applied records a transmitted command. Fields it changes stay pending until
// telemetry reports the commanded value or pendingRecords records have passed.
func (t *Tracker) Applied(cmd wire.CommandRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = make(map[string]pending)
	}
	want := t.last.Apply(cmd)
	for _, f := range fields {
		a, b := *f.ref(&t.last), *f.ref(&want)
		if same(a, b) {
			delete(t.pending, f.name)
			continue
		}
		t.pending[f.name] = pending{want: b, left: pendingRecords}
	}
}

// Current returns the settings the camera last reported.
func (t *Tracker) Current() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.have
}

// Pending returns the commanded values telemetry has not reported yet, by field name.
func (t *Tracker) Pending() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.pending))
	for name, p := range t.pending {
		out[name] = p.want
	}
	return out
}
