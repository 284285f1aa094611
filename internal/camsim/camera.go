// Package camsim simulates the star camera end of the link: it serves telemetry and
// image cycles over TCP and applies the command records it receives.
package camsim

import (
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"starcam-link/internal/wire"
)

const (
	siderealDegPerSec = 360.0 / 86164.0905
	focusPeakFlux     = 40000
	focusWidth        = 120.0
	starCount         = 24
)

// Config describes a simulated camera.
type Config struct {
	Protocol *wire.Protocol
	// ImageSize overrides the protocol image size, e.g. to keep tests small.
	ImageSize int
	Interval  time.Duration
	// Chunk splits each cycle into writes of at most Chunk bytes; 0 writes it whole.
	Chunk int
	// MaxCycles closes the connection after that many cycles; 0 runs until cancelled.
	MaxCycles int
	Seed      int64
	// BestFocus is the focus position where the synthetic flux curve peaks.
	BestFocus int32
	Now       func() time.Time
}

// Camera holds the simulated device state.
type Camera struct {
	cfg Config

	mu       sync.Mutex
	rng      *rand.Rand
	state    wire.TelemetryRecord
	sweep    sweep
	mapArmed bool
	commands []wire.CommandRecord
	cycles   int
	raBase   float64
	start    time.Time
}

type sweep struct {
	photos int32
}

// New returns a camera with plausible defaults: f/2.8, 100 ms exposure, focus at
// mid travel, blob parameters at their usual values.
func New(cfg Config) *Camera {
	if cfg.Protocol == nil {
		cfg.Protocol = wire.ProtocolV2
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = cfg.Protocol.ImageSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BestFocus == 0 {
		cfg.BestFocus = 2450
	}
	c := &Camera{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	c.raBase = 180
	c.state = wire.TelemetryRecord{
		LogOdds:   1e9,
		Latitude:  deg2rad(43.6532),
		Longitude: -79.3832,
		Height:    100,

		PixelScale:    6.2,
		FocusPosition: 2000,
		InfinityFocus: 0,
		MaxAperture:   0,

		MinFocusPosition: 0,
		MaxFocusPosition: 4000,
		Aperture:         28,

		Exposure:        100,
		CurrentExposure: 100,

		SpikeLimit:        3,
		DynamicHotPixels:  1,
		SmoothRadius:      16,
		HighPassFilter:    0,
		HighPassRadius:    2,
		CentroidBorder:    1,
		FilterReturnImage: 0,
		NSigma:            2,
		UniqueStarSpacing: 15,
		Timeout:           60,
	}
	return c
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// State returns the device state that the next cycle reports.
func (c *Camera) State() wire.TelemetryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Commands returns the command records applied so far.
func (c *Camera) Commands() []wire.CommandRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.CommandRecord(nil), c.commands...)
}

// Apply services a command record the way the camera does. Auto-focus takes
// precedence over focus and lens commands issued in the same record.
func (c *Camera) Apply(cmd wire.CommandRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	s := &c.state

	s.LogOdds = cmd.LogOdds
	s.Latitude = deg2rad(cmd.Latitude)
	s.Longitude = cmd.Longitude
	s.Height = cmd.Height
	s.Exposure = cmd.Exposure
	s.CurrentExposure = cmd.Exposure
	if c.cfg.Protocol.Version >= 2 {
		s.Timeout = cmd.Timeout
	}

	s.PrevFocusPosition = s.FocusPosition
	s.InfinityFocus = boolI32(cmd.InfinityFocus != 0)
	switch {
	case cmd.AutoFocus != 0 && c.cfg.Protocol.Version >= 2:
		c.beginSweep(cmd)
	case cmd.InfinityFocus != 0:
		s.FocusPosition = s.MaxFocusPosition
	default:
		s.FocusPosition = clamp32(int32(cmd.FocusPosition), s.MinFocusPosition, s.MaxFocusPosition)
	}

	s.MaxAperture = boolI32(cmd.MaxAperture != 0)
	switch {
	case cmd.MaxAperture != 0:
		s.ApertureSteps = 0
		s.Aperture = fstop(0)
	case cmd.ApertureSteps != 0:
		idx, err := wire.ApertureIndexForValue(s.FNumber())
		if err != nil {
			idx = 0
		}
		idx = min(max(idx+int(cmd.ApertureSteps), 0), len(wire.FStops)-1)
		s.ApertureSteps = cmd.ApertureSteps
		s.Aperture = fstop(idx)
	}

	if cmd.MakeStaticHotPixelMap != 0 {
		s.MakeStaticHotPixelMap = 1
		c.mapArmed = true
	}
	s.UseStaticHotPixelMap = boolI32(cmd.UseStaticHotPixelMap != 0)

	keepI32(&s.SpikeLimit, cmd.SpikeLimit)
	keepI32(&s.SmoothRadius, cmd.SmoothRadius)
	keepI32(&s.HighPassRadius, cmd.HighPassRadius)
	keepI32(&s.CentroidBorder, cmd.CentroidBorder)
	keepI32(&s.UniqueStarSpacing, cmd.UniqueStarSpacing)
	if cmd.NSigma != wire.Unchanged {
		s.NSigma = cmd.NSigma
	}
	s.DynamicHotPixels = boolI32(cmd.DynamicHotPixels != 0)
	s.HighPassFilter = boolI32(cmd.HighPassFilter != 0)
	s.FilterReturnImage = boolI32(cmd.FilterReturnImage != 0)
}

func (c *Camera) beginSweep(cmd wire.CommandRecord) {
	s := &c.state
	s.AutoFocusBegin = 1
	s.AutoFocusActive = 1
	s.AutoFocusStart = cmd.AutoFocusStart
	s.AutoFocusEnd = cmd.AutoFocusEnd
	s.AutoFocusStep = max(cmd.AutoFocusStep, 1)
	s.PhotosPerStep = max(cmd.PhotosPerStep, 1)
	s.FocusPosition = cmd.AutoFocusStart
	s.AutoFocusFlux = 0
	c.sweep = sweep{}
}

// Next produces one cycle at now and advances the device state.
func (c *Camera) Next(now time.Time) (wire.TelemetryRecord, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		c.start = now
	}
	s := &c.state
	s.Timestamp = float64(now.UnixNano()) / 1e9

	elapsed := now.Sub(c.start).Seconds()
	s.RA = math.Mod(c.raBase+elapsed*siderealDegPerSec+c.noise(1e-4), 360)
	s.Dec = -23.25 + c.noise(1e-4)
	s.FieldRotation = 1.5 + c.noise(1e-3)
	s.PixelScale = 6.2 + c.noise(1e-4)
	s.ImageRotation = -0.1 + c.noise(1e-3)
	s.Altitude = 45 + elapsed*1e-3 + c.noise(1e-3)
	s.Azimuth = math.Mod(270+elapsed*2e-3+c.noise(1e-3), 360)

	if s.AutoFocusActive != 0 {
		s.AutoFocusFlux = c.flux(s.FocusPosition)
	}
	rec := *s
	frame := c.frame(rec)
	c.cycles++

	// advance after reporting
	s.AutoFocusBegin = 0
	if c.mapArmed {
		c.mapArmed = false
		s.MakeStaticHotPixelMap = 0
	}
	if s.AutoFocusActive != 0 {
		c.sweep.photos++
		if c.sweep.photos >= s.PhotosPerStep {
			c.sweep.photos = 0
			s.PrevFocusPosition = s.FocusPosition
			next := s.FocusPosition + s.AutoFocusStep
			if next > s.AutoFocusEnd {
				s.AutoFocusActive = 0
				s.FocusPosition = clamp32(c.cfg.BestFocus, s.AutoFocusStart, s.AutoFocusEnd)
			} else {
				s.FocusPosition = next
			}
		}
	}
	return rec, frame
}

// Cycles returns the number of cycles produced.
func (c *Camera) Cycles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

func (c *Camera) noise(scale float64) float64 {
	return (c.rng.Float64()*2 - 1) * scale
}

func (c *Camera) flux(pos int32) int32 {
	d := float64(pos-c.cfg.BestFocus) / focusWidth
	v := focusPeakFlux*math.Exp(-d*d) + c.rng.Float64()*200
	return int32(v)
}

// frame renders a dark sky with a few stars. Star sharpness follows the focus error.
func (c *Camera) frame(rec wire.TelemetryRecord) []byte {
	img := make([]byte, c.cfg.ImageSize)
	for i := range img {
		img[i] = byte(8 + c.rng.Intn(6))
	}
	width := wire.ImageWidth
	height := len(img) / width
	spread := 1 + int(math.Min(math.Abs(float64(rec.FocusPosition-c.cfg.BestFocus))/200, 4))
	if height <= 2*spread+1 {
		return img
	}
	for n := 0; n < starCount; n++ {
		x := spread + c.rng.Intn(width-2*spread)
		y := spread + c.rng.Intn(height-2*spread)
		peak := 255 / spread
		for dy := -spread; dy <= spread; dy++ {
			for dx := -spread; dx <= spread; dx++ {
				img[(y+dy)*width+x+dx] = byte(max(peak, int(img[(y+dy)*width+x+dx])))
			}
		}
	}
	return img
}

func fstop(idx int) int32 {
	v, _ := strconv.ParseFloat(wire.FStops[idx], 64)
	return int32(math.Round(v * 10))
}

func boolI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func keepI32(dst *int32, v float32) {
	if v != wire.Unchanged {
		*dst = int32(v)
	}
}

func clamp32(v, lo, hi int32) int32 {
	if hi > lo {
		return min(max(v, lo), hi)
	}
	return v
}
