package wire

import (
	"errors"
	"math"
	"time"
)

// Image geometry of the camera sensor. Frames are one byte per pixel, row-major, no header.
const (
	ImageWidth  = 1936
	ImageHeight = 1216
	ImageSize   = ImageWidth * ImageHeight
)

// TelemetryRecord is one decoded camera status report: the last solved pointing plus
// the camera settings in effect. Flags are 0/1 integers as sent by the camera.
type TelemetryRecord struct {
	Timestamp float64 // seconds since epoch
	LogOdds   float64
	Latitude  float64 // radians, as reported by the camera
	Longitude float64
	Height    float64

	RA            float64
	Dec           float64
	FieldRotation float64
	PixelScale    float64 // arcsec/px
	ImageRotation float64
	Altitude      float64
	Azimuth       float64

	PrevFocusPosition int32
	FocusPosition     int32
	InfinityFocus     int32
	ApertureSteps     int32
	MaxAperture       int32
	MinFocusPosition  int32
	MaxFocusPosition  int32
	Aperture          int32 // f-number x10

	Exposure        float64
	CurrentExposure float64

	SpikeLimit            int32
	DynamicHotPixels      int32
	SmoothRadius          int32
	HighPassFilter        int32
	HighPassRadius        int32
	CentroidBorder        int32
	FilterReturnImage     int32
	NSigma                float32
	UniqueStarSpacing     int32
	MakeStaticHotPixelMap int32
	UseStaticHotPixelMap  int32

	// Protocol v2 only.
	Timeout         float64
	AutoFocusBegin  int32
	AutoFocusActive int32
	AutoFocusStart  int32
	AutoFocusEnd    int32
	AutoFocusStep   int32
	PhotosPerStep   int32
	AutoFocusFlux   int32
}

// Time returns the capture timestamp in UTC.
func (r TelemetryRecord) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// GMT renders the capture timestamp in ANSI C form, e.g. "Tue Nov 14 22:13:20 2023".
func (r TelemetryRecord) GMT() string {
	return r.Time().Format(time.ANSIC)
}

// FNumber returns the reported aperture as an f-number.
func (r TelemetryRecord) FNumber() float64 {
	return float64(r.Aperture) / 10
}

// ApertureIndex returns the position of the reported aperture in FStops.
func (r TelemetryRecord) ApertureIndex() (int, error) {
	return ApertureIndexForValue(r.FNumber())
}

var telemetryV1Fields = []Field[TelemetryRecord]{
	f64("timestamp", func(r *TelemetryRecord) *float64 { return &r.Timestamp }),
	f64("logodds", func(r *TelemetryRecord) *float64 { return &r.LogOdds }),
	f64("latitude", func(r *TelemetryRecord) *float64 { return &r.Latitude }),
	f64("longitude", func(r *TelemetryRecord) *float64 { return &r.Longitude }),
	f64("height", func(r *TelemetryRecord) *float64 { return &r.Height }),
	f64("ra", func(r *TelemetryRecord) *float64 { return &r.RA }),
	f64("dec", func(r *TelemetryRecord) *float64 { return &r.Dec }),
	f64("fr", func(r *TelemetryRecord) *float64 { return &r.FieldRotation }),
	f64("ps", func(r *TelemetryRecord) *float64 { return &r.PixelScale }),
	f64("ir", func(r *TelemetryRecord) *float64 { return &r.ImageRotation }),
	f64("alt", func(r *TelemetryRecord) *float64 { return &r.Altitude }),
	f64("az", func(r *TelemetryRecord) *float64 { return &r.Azimuth }),
	i32("prev_focus_position", func(r *TelemetryRecord) *int32 { return &r.PrevFocusPosition }),
	i32("focus_position", func(r *TelemetryRecord) *int32 { return &r.FocusPosition }),
	i32("infinity_focus", func(r *TelemetryRecord) *int32 { return &r.InfinityFocus }),
	i32("aperture_steps", func(r *TelemetryRecord) *int32 { return &r.ApertureSteps }),
	i32("max_aperture", func(r *TelemetryRecord) *int32 { return &r.MaxAperture }),
	i32("min_focus_position", func(r *TelemetryRecord) *int32 { return &r.MinFocusPosition }),
	i32("max_focus_position", func(r *TelemetryRecord) *int32 { return &r.MaxFocusPosition }),
	i32("aperture", func(r *TelemetryRecord) *int32 { return &r.Aperture }),
	f64("exposure", func(r *TelemetryRecord) *float64 { return &r.Exposure }),
	f64("current_exposure", func(r *TelemetryRecord) *float64 { return &r.CurrentExposure }),
	i32("spike_limit", func(r *TelemetryRecord) *int32 { return &r.SpikeLimit }),
	i32("dynamic_hot_pixels", func(r *TelemetryRecord) *int32 { return &r.DynamicHotPixels }),
	i32("r_smooth", func(r *TelemetryRecord) *int32 { return &r.SmoothRadius }),
	i32("high_pass_filter", func(r *TelemetryRecord) *int32 { return &r.HighPassFilter }),
	i32("r_high_pass_filter", func(r *TelemetryRecord) *int32 { return &r.HighPassRadius }),
	i32("centroid_search_border", func(r *TelemetryRecord) *int32 { return &r.CentroidBorder }),
	i32("filter_return_image", func(r *TelemetryRecord) *int32 { return &r.FilterReturnImage }),
	f32("n_sigma", func(r *TelemetryRecord) *float32 { return &r.NSigma }),
	i32("unique_star_spacing", func(r *TelemetryRecord) *int32 { return &r.UniqueStarSpacing }),
	i32("make_static_hp_mask", func(r *TelemetryRecord) *int32 { return &r.MakeStaticHotPixelMap }),
	i32("use_static_hp_mask", func(r *TelemetryRecord) *int32 { return &r.UseStaticHotPixelMap }),
}

var telemetryV2Fields = append(append([]Field[TelemetryRecord]{}, telemetryV1Fields...),
	f64("timeout", func(r *TelemetryRecord) *float64 { return &r.Timeout }),
	i32("begin_auto_focus", func(r *TelemetryRecord) *int32 { return &r.AutoFocusBegin }),
	i32("auto_focus", func(r *TelemetryRecord) *int32 { return &r.AutoFocusActive }),
	i32("start_focus_position", func(r *TelemetryRecord) *int32 { return &r.AutoFocusStart }),
	i32("end_focus_position", func(r *TelemetryRecord) *int32 { return &r.AutoFocusEnd }),
	i32("focus_step", func(r *TelemetryRecord) *int32 { return &r.AutoFocusStep }),
	i32("photos_per_focus", func(r *TelemetryRecord) *int32 { return &r.PhotosPerStep }),
	i32("flux", func(r *TelemetryRecord) *int32 { return &r.AutoFocusFlux }),
)

func validateTelemetry(r *TelemetryRecord) error {
	if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
		return errors.New("timestamp is not finite")
	}
	return nil
}

// TelemetryV1 is the 33-field record read as a 220-byte block; the last 32 bytes are unused.
var TelemetryV1 = &Layout[TelemetryRecord]{
	Name:     "telemetry",
	Version:  1,
	Length:   220,
	Fields:   telemetryV1Fields,
	validate: validateTelemetry,
}

// TelemetryV2 adds the solver timeout and auto-focus fields: 41 fields, 224 bytes.
var TelemetryV2 = &Layout[TelemetryRecord]{
	Name:     "telemetry",
	Version:  2,
	Length:   224,
	Fields:   telemetryV2Fields,
	validate: validateTelemetry,
}
