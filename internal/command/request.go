package command

import (
	"errors"
	"fmt"
	"strconv"

	"starcam-link/internal/settings"
	"starcam-link/internal/wire"
)

var (
	// ErrNotSupported is returned when a request uses fields the protocol cannot carry.
	ErrNotSupported = errors.New("not supported by protocol")
	// ErrNoTelemetry is returned when a request keeps a current setting but the camera
	// has not reported its settings yet.
	ErrNoTelemetry = errors.New("no telemetry received yet")
)

// AutoFocus describes a focus sweep.
type AutoFocus struct {
	Start         int `yaml:"start" json:"start"`
	End           int `yaml:"end" json:"end"`
	Step          int `yaml:"step" json:"step"`
	PhotosPerStep int `yaml:"photos_per_step" json:"photos_per_step"`
}

// Request is an operator-level command. Nil blob parameters are sent as "unchanged".
// Nil site, exposure, timeout and focus fields keep the value the camera last reported.
type Request struct {
	LogOdds   *float64 `yaml:"logodds,omitempty" json:"logodds,omitempty"`
	Latitude  *float64 `yaml:"latitude,omitempty" json:"latitude,omitempty"` // degrees
	Longitude *float64 `yaml:"longitude,omitempty" json:"longitude,omitempty"`
	Height    *float64 `yaml:"height,omitempty" json:"height,omitempty"`
	Exposure  *float64 `yaml:"exposure,omitempty" json:"exposure,omitempty"`
	Timeout   *float64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	FocusPosition *int       `yaml:"focus_position,omitempty" json:"focus_position,omitempty"`
	InfinityFocus bool       `yaml:"infinity_focus" json:"infinity_focus"`
	AutoFocus     *AutoFocus `yaml:"auto_focus,omitempty" json:"auto_focus,omitempty"`

	// Aperture is the target f-number, e.g. "5.6". Empty keeps the current aperture.
	Aperture    string `yaml:"aperture" json:"aperture"`
	MaxAperture bool   `yaml:"max_aperture" json:"max_aperture"`

	MakeStaticHotPixelMap bool `yaml:"make_static_hot_pixel_map" json:"make_static_hot_pixel_map"`
	UseStaticHotPixelMap  bool `yaml:"use_static_hot_pixel_map" json:"use_static_hot_pixel_map"`

	SpikeLimit        *float64 `yaml:"spike_limit,omitempty" json:"spike_limit,omitempty"`
	DynamicHotPixels  bool     `yaml:"dynamic_hot_pixels" json:"dynamic_hot_pixels"`
	SmoothRadius      *float64 `yaml:"smooth_radius,omitempty" json:"smooth_radius,omitempty"`
	HighPassFilter    bool     `yaml:"high_pass_filter" json:"high_pass_filter"`
	HighPassRadius    *float64 `yaml:"high_pass_radius,omitempty" json:"high_pass_radius,omitempty"`
	CentroidBorder    *float64 `yaml:"centroid_border,omitempty" json:"centroid_border,omitempty"`
	FilterReturnImage bool     `yaml:"filter_return_image" json:"filter_return_image"`
	NSigma            *float64 `yaml:"n_sigma,omitempty" json:"n_sigma,omitempty"`
	UniqueStarSpacing *float64 `yaml:"unique_star_spacing,omitempty" json:"unique_star_spacing,omitempty"`
}

// Float returns a pointer to v, for filling optional request fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// NeedsCurrent reports whether Record must be given the camera's current settings.
func (r Request) NeedsCurrent() bool {
	return r.Aperture != "" ||
		r.LogOdds == nil || r.Latitude == nil || r.Longitude == nil ||
		r.Height == nil || r.Exposure == nil || r.Timeout == nil ||
		r.FocusPosition == nil
}

// Record converts the request to wire form. current holds the settings the camera last
// reported and fills every omitted field; it may be nil when NeedsCurrent is false. The
// aperture becomes a step delta, booleans become 0/1, the static map flag becomes the
// hot pixel threshold and missing blob parameters become wire.Unchanged.
func (r Request) Record(current *settings.Snapshot, proto *wire.Protocol) (wire.CommandRecord, error) {
	if proto == nil {
		proto = wire.ProtocolV2
	}
	if current == nil {
		if r.NeedsCurrent() {
			return wire.CommandRecord{}, ErrNoTelemetry
		}
		current = &settings.Snapshot{}
	}
	focus := int(current.FocusPosition)
	if r.FocusPosition != nil {
		focus = *r.FocusPosition
	}
	rec := wire.CommandRecord{
		LogOdds:   or(r.LogOdds, current.LogOdds),
		Latitude:  or(r.Latitude, current.Latitude),
		Longitude: or(r.Longitude, current.Longitude),
		Height:    or(r.Height, current.Height),
		Exposure:  or(r.Exposure, current.Exposure),
		Timeout:   or(r.Timeout, current.Timeout),

		FocusPosition: float32(focus),
		InfinityFocus: boolF32(r.InfinityFocus),
		MaxAperture:   boolF32(r.MaxAperture),

		UseStaticHotPixelMap: boolI32(r.UseStaticHotPixelMap),

		SpikeLimit:        optional(r.SpikeLimit),
		DynamicHotPixels:  boolF32(r.DynamicHotPixels),
		SmoothRadius:      optional(r.SmoothRadius),
		HighPassFilter:    boolF32(r.HighPassFilter),
		HighPassRadius:    optional(r.HighPassRadius),
		CentroidBorder:    optional(r.CentroidBorder),
		FilterReturnImage: boolF32(r.FilterReturnImage),
		NSigma:            optional(r.NSigma),
		UniqueStarSpacing: optional(r.UniqueStarSpacing),
	}
	if r.MakeStaticHotPixelMap {
		rec.MakeStaticHotPixelMap = wire.StaticHotPixelThreshold
	}

	if r.Aperture != "" {
		from := strconv.FormatFloat(current.Aperture, 'f', 1, 64)
		steps, err := wire.ApertureSteps(from, r.Aperture)
		if err != nil {
			return wire.CommandRecord{}, fmt.Errorf("aperture %s -> %s: %w", from, r.Aperture, err)
		}
		rec.ApertureSteps = steps
	}

	if af := r.AutoFocus; af != nil {
		if proto.Command.Offset("auto_focus") < 0 {
			return wire.CommandRecord{}, fmt.Errorf("auto-focus: %w v%d", ErrNotSupported, proto.Version)
		}
		if af.Step <= 0 || af.End < af.Start {
			return wire.CommandRecord{}, fmt.Errorf("auto-focus: invalid sweep %d..%d step %d", af.Start, af.End, af.Step)
		}
		rec.AutoFocus = 1
		rec.AutoFocusStart = int32(af.Start)
		rec.AutoFocusEnd = int32(af.End)
		rec.AutoFocusStep = int32(af.Step)
		rec.PhotosPerStep = int32(max(af.PhotosPerStep, 1))
	}
	return rec, nil
}

func boolF32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func boolI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func optional(v *float64) float32 {
	if v == nil {
		return wire.Unchanged
	}
	return float32(*v)
}

func or(v *float64, current float64) float64 {
	if v == nil {
		return current
	}
	return *v
}
