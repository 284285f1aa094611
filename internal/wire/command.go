package wire

// Device conventions for command fields.
const (
	// Unchanged tells the camera to keep its current value for a blob parameter.
	Unchanged = -1
	// StaticHotPixelThreshold is sent in place of a plain flag when a new static
	// hot-pixel map should be made; 0 means no map.
	StaticHotPixelThreshold = 20
)

// CommandRecord is the operator command block in wire types. Use command.Request to
// build one from operator-level values.
type CommandRecord struct {
	LogOdds   float64
	Latitude  float64 // degrees
	Longitude float64
	Height    float64
	Exposure  float64
	Timeout   float64 // protocol v2 only

	FocusPosition float32
	InfinityFocus float32

	// Protocol v2 only.
	AutoFocus      int32
	AutoFocusStart int32
	AutoFocusEnd   int32
	AutoFocusStep  int32
	PhotosPerStep  int32

	ApertureSteps int32
	MaxAperture   float32

	MakeStaticHotPixelMap int32
	UseStaticHotPixelMap  int32

	SpikeLimit        float32
	DynamicHotPixels  float32
	SmoothRadius      float32
	HighPassFilter    float32
	HighPassRadius    float32
	CentroidBorder    float32
	FilterReturnImage float32
	NSigma            float32
	UniqueStarSpacing float32
}

// RequestsAutoFocus reports whether the record asks the camera to run an auto-focus sweep.
func (c CommandRecord) RequestsAutoFocus() bool {
	return c.AutoFocus != 0
}

// RequestsLensChange reports whether the record carries lens adapter commands
// (aperture steps, max aperture) that the camera services after auto-focus.
func (c CommandRecord) RequestsLensChange() bool {
	return c.ApertureSteps != 0 || c.MaxAperture != 0
}

var commandHead = []Field[CommandRecord]{
	f64("logodds", func(c *CommandRecord) *float64 { return &c.LogOdds }),
	f64("latitude", func(c *CommandRecord) *float64 { return &c.Latitude }),
	f64("longitude", func(c *CommandRecord) *float64 { return &c.Longitude }),
	f64("height", func(c *CommandRecord) *float64 { return &c.Height }),
	f64("exposure", func(c *CommandRecord) *float64 { return &c.Exposure }),
}

var commandFocus = []Field[CommandRecord]{
	f32("focus_position", func(c *CommandRecord) *float32 { return &c.FocusPosition }),
	f32("infinity_focus", func(c *CommandRecord) *float32 { return &c.InfinityFocus }),
}

var commandAutoFocus = []Field[CommandRecord]{
	i32("auto_focus", func(c *CommandRecord) *int32 { return &c.AutoFocus }),
	i32("start_focus_position", func(c *CommandRecord) *int32 { return &c.AutoFocusStart }),
	i32("end_focus_position", func(c *CommandRecord) *int32 { return &c.AutoFocusEnd }),
	i32("focus_step", func(c *CommandRecord) *int32 { return &c.AutoFocusStep }),
	i32("photos_per_focus", func(c *CommandRecord) *int32 { return &c.PhotosPerStep }),
}

var commandTail = []Field[CommandRecord]{
	i32("aperture_steps", func(c *CommandRecord) *int32 { return &c.ApertureSteps }),
	f32("max_aperture", func(c *CommandRecord) *float32 { return &c.MaxAperture }),
	i32("make_static_hp_mask", func(c *CommandRecord) *int32 { return &c.MakeStaticHotPixelMap }),
	i32("use_static_hp_mask", func(c *CommandRecord) *int32 { return &c.UseStaticHotPixelMap }),
	f32("spike_limit", func(c *CommandRecord) *float32 { return &c.SpikeLimit }),
	f32("dynamic_hot_pixels", func(c *CommandRecord) *float32 { return &c.DynamicHotPixels }),
	f32("r_smooth", func(c *CommandRecord) *float32 { return &c.SmoothRadius }),
	f32("high_pass_filter", func(c *CommandRecord) *float32 { return &c.HighPassFilter }),
	f32("r_high_pass_filter", func(c *CommandRecord) *float32 { return &c.HighPassRadius }),
	f32("centroid_search_border", func(c *CommandRecord) *float32 { return &c.CentroidBorder }),
	f32("filter_return_image", func(c *CommandRecord) *float32 { return &c.FilterReturnImage }),
	f32("n_sigma", func(c *CommandRecord) *float32 { return &c.NSigma }),
	f32("unique_star_spacing", func(c *CommandRecord) *float32 { return &c.UniqueStarSpacing }),
}

func concatFields(parts ...[]Field[CommandRecord]) []Field[CommandRecord] {
	var out []Field[CommandRecord]
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// CommandV1 is the 20-field, 100-byte command block.
var CommandV1 = &Layout[CommandRecord]{
	Name:    "command",
	Version: 1,
	Length:  100,
	Fields:  concatFields(commandHead, commandFocus, commandTail),
}

// CommandV2 adds the solver timeout and the auto-focus sweep: 26 fields, 128 bytes.
var CommandV2 = &Layout[CommandRecord]{
	Name:    "command",
	Version: 2,
	Length:  128,
	Fields: concatFields(
		commandHead,
		[]Field[CommandRecord]{f64("timeout", func(c *CommandRecord) *float64 { return &c.Timeout })},
		commandFocus,
		commandAutoFocus,
		commandTail,
	),
}
