// Package track accumulates per-session history from telemetry: the auto-focus curve
// and the solved pointing.
package track

import (
	"sync"
	"time"

	"starcam-link/internal/wire"
)

// FocusSample is one point of an auto-focus sweep.
type FocusSample struct {
	Position int32 `json:"position"`
	Flux     int32 `json:"flux"`
}

// FocusCurve collects (position, flux) samples for the current auto-focus sweep.
type FocusCurve struct {
	mu      sync.Mutex
	samples []FocusSample
	active  bool
	lastPos int32
	havePos bool
}

// Observe feeds one telemetry record and reports whether a sample was appended.
// A new sweep (AutoFocusBegin, or active going 0 to 1) clears the curve.
func (c *FocusCurve) Observe(rec wire.TelemetryRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := rec.AutoFocusActive != 0
	if rec.AutoFocusBegin != 0 || (active && !c.active) {
		c.samples = c.samples[:0]
		c.havePos = false
	}
	c.active = active
	if !active {
		return false
	}
	if c.havePos && rec.FocusPosition == c.lastPos {
		return false
	}
	c.lastPos, c.havePos = rec.FocusPosition, true
	c.samples = append(c.samples, FocusSample{Position: rec.FocusPosition, Flux: rec.AutoFocusFlux})
	return true
}

// Samples returns a copy of the current curve.
func (c *FocusCurve) Samples() []FocusSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FocusSample(nil), c.samples...)
}

// Active reports whether the camera last reported a sweep in progress.
func (c *FocusCurve) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Best returns the sample with the highest flux.
func (c *FocusCurve) Best() (FocusSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return FocusSample{}, false
	}
	best := c.samples[0]
	for _, s := range c.samples[1:] {
		if s.Flux > best.Flux {
			best = s
		}
	}
	return best, true
}

// Reset clears the curve.
func (c *FocusCurve) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
	c.active = false
	c.havePos = false
}

// PointingSample is one solved pointing.
type PointingSample struct {
	Time          time.Time `json:"time"`
	RA            float64   `json:"ra"`
	Dec           float64   `json:"dec"`
	FieldRotation float64   `json:"fr"`
	PixelScale    float64   `json:"ps"`
	ImageRotation float64   `json:"ir"`
	Altitude      float64   `json:"alt"`
	Azimuth       float64   `json:"az"`
}

// DefaultPointingCapacity bounds the pointing history when no size is given.
const DefaultPointingCapacity = 3600

// Pointing is a bounded, oldest-first history of solved pointings.
type Pointing struct {
	mu    sync.Mutex
	buf   []PointingSample
	start int
	n     int
}

// NewPointing returns a history holding at most capacity samples.
func NewPointing(capacity int) *Pointing {
	if capacity <= 0 {
		capacity = DefaultPointingCapacity
	}
	return &Pointing{buf: make([]PointingSample, capacity)}
}

// Observe appends the pointing of rec, evicting the oldest sample when full. Every
// record is appended, including those sent during an auto-focus sweep.
func (p *Pointing) Observe(rec wire.TelemetryRecord) {
	s := PointingSample{
		Time:          rec.Time(),
		RA:            rec.RA,
		Dec:           rec.Dec,
		FieldRotation: rec.FieldRotation,
		PixelScale:    rec.PixelScale,
		ImageRotation: rec.ImageRotation,
		Altitude:      rec.Altitude,
		Azimuth:       rec.Azimuth,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n < len(p.buf) {
		p.buf[(p.start+p.n)%len(p.buf)] = s
		p.n++
		return
	}
	p.buf[p.start] = s
	p.start = (p.start + 1) % len(p.buf)
}

// Samples returns the history oldest first.
func (p *Pointing) Samples() []PointingSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PointingSample, p.n)
	for i := range out {
		out[i] = p.buf[(p.start+i)%len(p.buf)]
	}
	return out
}

// Len returns the number of stored samples.
func (p *Pointing) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
