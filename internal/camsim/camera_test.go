package camsim

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"starcam-link/internal/link"
	"starcam-link/internal/wire"
)

var t0 = time.Unix(1700000000, 0)

func baseCommand(c *Camera) wire.CommandRecord {
	s := c.State()
	return wire.CommandRecord{
		LogOdds:           s.LogOdds,
		Exposure:          s.Exposure,
		FocusPosition:     float32(s.FocusPosition),
		SpikeLimit:        wire.Unchanged,
		SmoothRadius:      wire.Unchanged,
		HighPassRadius:    wire.Unchanged,
		CentroidBorder:    wire.Unchanged,
		NSigma:            wire.Unchanged,
		UniqueStarSpacing: wire.Unchanged,
		DynamicHotPixels:  1,
	}
}

func TestApplyLensAndBlobParameters(t *testing.T) {
	c := New(Config{ImageSize: 16})
	cmd := baseCommand(c)
	cmd.ApertureSteps = 8
	cmd.SmoothRadius = 20
	cmd.Exposure = 250
	cmd.Latitude = 90
	c.Apply(cmd)

	s := c.State()
	if s.Aperture != 56 {
		t.Fatalf("aperture = %d, want 56", s.Aperture)
	}
	if s.SmoothRadius != 20 || s.SpikeLimit != 3 || s.NSigma != 2 {
		t.Fatalf("blob params = %d %d %v", s.SmoothRadius, s.SpikeLimit, s.NSigma)
	}
	if s.Exposure != 250 || s.CurrentExposure != 250 {
		t.Fatalf("exposure = %v", s.Exposure)
	}
	if s.Latitude < 1.5707 || s.Latitude > 1.5709 {
		t.Fatalf("latitude should be reported in radians, got %v", s.Latitude)
	}

	cmd = baseCommand(c)
	cmd.ApertureSteps = 100
	c.Apply(cmd)
	if got := c.State().FNumber(); got != 32 {
		t.Fatalf("aperture should clamp at f/32, got %v", got)
	}

	cmd = baseCommand(c)
	cmd.MaxAperture = 1
	c.Apply(cmd)
	if s := c.State(); s.Aperture != 28 || s.MaxAperture != 1 {
		t.Fatalf("max aperture: %+v", s)
	}
}

func TestApplyInfinityFocus(t *testing.T) {
	c := New(Config{ImageSize: 16})
	cmd := baseCommand(c)
	cmd.InfinityFocus = 1
	cmd.FocusPosition = 10
	c.Apply(cmd)
	s := c.State()
	if s.FocusPosition != s.MaxFocusPosition || s.InfinityFocus != 1 {
		t.Fatalf("infinity focus not applied: %+v", s)
	}
	if s.PrevFocusPosition != 2000 {
		t.Fatalf("prev focus = %d", s.PrevFocusPosition)
	}
}

func TestStaticMapIsOneShot(t *testing.T) {
	c := New(Config{ImageSize: 16})
	cmd := baseCommand(c)
	cmd.MakeStaticHotPixelMap = wire.StaticHotPixelThreshold
	c.Apply(cmd)

	first, _ := c.Next(t0)
	second, _ := c.Next(t0.Add(time.Second))
	if first.MakeStaticHotPixelMap != 1 || second.MakeStaticHotPixelMap != 0 {
		t.Fatalf("static map flag = %d then %d, want 1 then 0", first.MakeStaticHotPixelMap, second.MakeStaticHotPixelMap)
	}
}

func TestAutoFocusSweep(t *testing.T) {
	c := New(Config{ImageSize: 16, BestFocus: 2450})
	cmd := baseCommand(c)
	cmd.AutoFocus = 1
	cmd.AutoFocusStart = 2300
	cmd.AutoFocusEnd = 2600
	cmd.AutoFocusStep = 100
	cmd.PhotosPerStep = 2
	cmd.ApertureSteps = 4
	c.Apply(cmd)

	var positions []int32
	var fluxes []int32
	var begins int
	for i := 0; i < 8; i++ {
		rec, _ := c.Next(t0.Add(time.Duration(i) * time.Second))
		if rec.AutoFocusActive == 0 {
			t.Fatalf("cycle %d: sweep ended early", i)
		}
		if rec.AutoFocusBegin != 0 {
			begins++
		}
		positions = append(positions, rec.FocusPosition)
		fluxes = append(fluxes, rec.AutoFocusFlux)
	}
	want := []int32{2300, 2300, 2400, 2400, 2500, 2500, 2600, 2600}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("positions = %v, want %v", positions, want)
		}
	}
	if begins != 1 {
		t.Fatalf("begin flag seen %d times, want 1", begins)
	}
	if fluxes[2] <= fluxes[0] || fluxes[6] >= fluxes[4] {
		t.Fatalf("flux curve should peak near best focus: %v", fluxes)
	}
	rec, _ := c.Next(t0.Add(9 * time.Second))
	if rec.AutoFocusActive != 0 || rec.FocusPosition != 2450 {
		t.Fatalf("after sweep: active=%d focus=%d", rec.AutoFocusActive, rec.FocusPosition)
	}
}

func TestAutoFocusIgnoredOnProtocolV1(t *testing.T) {
	c := New(Config{Protocol: wire.ProtocolV1, ImageSize: 16})
	cmd := baseCommand(c)
	cmd.AutoFocus = 1
	cmd.FocusPosition = 1234
	c.Apply(cmd)
	if s := c.State(); s.AutoFocusActive != 0 || s.FocusPosition != 1234 {
		t.Fatalf("v1 camera state = %+v", s)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a := New(Config{Seed: 7, ImageSize: wire.ImageWidth * 20})
	b := New(Config{Seed: 7, ImageSize: wire.ImageWidth * 20})
	ra, fa := a.Next(t0)
	rb, fb := b.Next(t0)
	if ra != rb || !bytes.Equal(fa, fb) {
		t.Fatalf("same seed produced different cycles")
	}
	if len(fa) != wire.ImageWidth*20 {
		t.Fatalf("frame size = %d", len(fa))
	}
}

func TestServeCyclesAndCommands(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cam := New(Config{ImageSize: 64, Interval: 10 * time.Millisecond, Chunk: 13, MaxCycles: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cam.Serve(ctx, ln)

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := link.NewConn(nc, 2*time.Second)
	defer conn.Close()

	cmd := baseCommand(cam)
	cmd.Exposure = 300
	if err := conn.Send(wire.CommandV2.Encode(&cmd)); err != nil {
		t.Fatalf("send: %v", err)
	}

	proto := wire.ProtocolV2
	for i := 0; i < 3; i++ {
		buf, err := conn.ReceiveExact(proto.Telemetry.Length)
		if err != nil {
			t.Fatalf("cycle %d record: %v", i, err)
		}
		if _, err := proto.Telemetry.Decode(buf); err != nil {
			t.Fatalf("cycle %d decode: %v", i, err)
		}
		if _, err := conn.ReceiveExact(64); err != nil {
			t.Fatalf("cycle %d image: %v", i, err)
		}
	}
	if _, err := conn.ReceiveExact(1); err == nil {
		t.Fatalf("expected the camera to close after MaxCycles")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(cam.Commands()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := cam.Commands(); len(got) != 1 || got[0].Exposure != 300 {
		t.Fatalf("commands = %+v", got)
	}
}
