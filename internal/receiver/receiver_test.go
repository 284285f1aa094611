package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"starcam-link/internal/link"
	"starcam-link/internal/metrics"
	"starcam-link/internal/wire"
)

const testImageSize = 64

var testProtocol = &wire.Protocol{
	Version:   2,
	Telemetry: wire.TelemetryV2,
	Command:   wire.CommandV2,
	ImageSize: testImageSize,
}

// fakeStream serves a fixed byte script in chunks and then reports the peer closed.
type fakeStream struct {
	data  []byte
	chunk int
}

func (f *fakeStream) ReceiveInto(buf []byte) error {
	got := 0
	for got < len(buf) {
		if len(f.data) == 0 {
			return fmt.Errorf("%w: %w", link.ErrPeerClosed, io.EOF)
		}
		n := len(buf) - got
		if f.chunk > 0 && n > f.chunk {
			n = f.chunk
		}
		if n > len(f.data) {
			n = len(f.data)
		}
		copy(buf[got:], f.data[:n])
		f.data = f.data[n:]
		got += n
	}
	return nil
}

type event struct {
	kind string
	ts   float64
	tag  byte
	err  error
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) OnTelemetry(rec wire.TelemetryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "telemetry", ts: rec.Timestamp})
}

func (r *recorder) OnImage(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "image", tag: frame[0]})
}

func (r *recorder) OnDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "disconnected", err: err})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type memBackup struct {
	recs []wire.TelemetryRecord
	err  error
}

func (m *memBackup) Append(rec wire.TelemetryRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func cycle(ts float64, tag byte) []byte {
	rec := wire.TelemetryRecord{Timestamp: ts, RA: 180.5, Dec: -23.25}
	out := testProtocol.Telemetry.Encode(&rec)
	img := make([]byte, testImageSize)
	for i := range img {
		img[i] = tag
	}
	return append(out, img...)
}

func waitDone(t *testing.T, r *Receiver) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver did not exit")
	}
}

func TestReceiverCycleOrdering(t *testing.T) {
	var script []byte
	for i := 0; i < 5; i++ {
		script = append(script, cycle(float64(1700000000+i), byte(i+1))...)
	}
	h := &recorder{}
	b := &memBackup{}
	r := New(Config{Protocol: testProtocol, Backup: b, Handler: h})

	if err := r.Start(context.Background(), &fakeStream{data: script, chunk: 7}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)

	events := h.snapshot()
	if len(events) != 11 {
		t.Fatalf("events = %d, want 11: %+v", len(events), events)
	}
	for i := 0; i < 5; i++ {
		tel, img := events[2*i], events[2*i+1]
		if tel.kind != "telemetry" || tel.ts != float64(1700000000+i) {
			t.Fatalf("cycle %d telemetry = %+v", i, tel)
		}
		if img.kind != "image" || img.tag != byte(i+1) {
			t.Fatalf("cycle %d image = %+v", i, img)
		}
	}
	last := events[10]
	if last.kind != "disconnected" || !errors.Is(last.err, link.ErrPeerClosed) {
		t.Fatalf("last event = %+v", last)
	}
	if len(b.recs) != 5 {
		t.Fatalf("backup appends = %d, want 5", len(b.recs))
	}
	if r.State() != Idle {
		t.Fatalf("state = %s, want idle", r.State())
	}
	rec, ok := r.LastTelemetry()
	if !ok || rec.Timestamp != 1700000004 {
		t.Fatalf("LastTelemetry = %+v, %v", rec, ok)
	}
}

func TestReceiverPartialImageNotPublished(t *testing.T) {
	script := cycle(1700000000, 9)
	script = script[:len(script)-testImageSize/2]
	h := &recorder{}
	r := New(Config{Protocol: testProtocol, Handler: h})
	if err := r.Start(context.Background(), &fakeStream{data: script}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)

	events := h.snapshot()
	if len(events) != 2 || events[0].kind != "telemetry" || events[1].kind != "disconnected" {
		t.Fatalf("events = %+v", events)
	}
}

func TestReceiverSkipsMalformedRecord(t *testing.T) {
	bad := wire.TelemetryRecord{Timestamp: math.NaN()}
	script := testProtocol.Telemetry.Encode(&bad)
	script = append(script, make([]byte, testImageSize)...)
	script = append(script, cycle(1700000001, 2)...)

	before := testutil.ToFloat64(metrics.MalformedRecords)
	h := &recorder{}
	b := &memBackup{}
	r := New(Config{Protocol: testProtocol, Backup: b, Handler: h})
	if err := r.Start(context.Background(), &fakeStream{data: script}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)

	events := h.snapshot()
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].ts != 1700000001 || events[1].tag != 2 {
		t.Fatalf("framing lost after malformed record: %+v", events)
	}
	if len(b.recs) != 1 {
		t.Fatalf("malformed record reached backup")
	}
	if c := r.Counters(); c != (Counters{Records: 1, Frames: 1, Malformed: 1}) {
		t.Fatalf("counters = %+v", c)
	}
	if got := testutil.ToFloat64(metrics.MalformedRecords) - before; got != 1 {
		t.Fatalf("malformed counter delta = %v, want 1", got)
	}
}

func TestReceiverBackupFailureIsNotFatal(t *testing.T) {
	script := append(cycle(1, 1), cycle(2, 2)...)
	h := &recorder{}
	r := New(Config{Protocol: testProtocol, Backup: &memBackup{err: errors.New("disk full")}, Handler: h})
	if err := r.Start(context.Background(), &fakeStream{data: script}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)
	if n := len(h.snapshot()); n != 5 {
		t.Fatalf("events = %d, want 5", n)
	}
}

func TestReceiverStopAtIterationBoundary(t *testing.T) {
	var script []byte
	for i := 0; i < 3; i++ {
		script = append(script, cycle(float64(i), byte(i+1))...)
	}
	h := &recorder{}
	var r *Receiver
	r = New(Config{Protocol: testProtocol, Handler: HandlerFuncs{
		Telemetry:    h.OnTelemetry,
		Image:        func(frame []byte) { h.OnImage(frame); r.Stop() },
		Disconnected: h.OnDisconnected,
	}})
	if err := r.Start(context.Background(), &fakeStream{data: script}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)

	events := h.snapshot()
	if len(events) != 2 || events[1].kind != "image" {
		t.Fatalf("events = %+v, want one full cycle and no disconnect", events)
	}
	if r.State() != Idle {
		t.Fatalf("state = %s", r.State())
	}
}

func TestReceiverStopWhileBlocked(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := link.NewConn(client, 30*time.Millisecond)
	defer conn.Close()

	h := &recorder{}
	r := New(Config{Protocol: testProtocol, Handler: h})
	if err := r.Start(context.Background(), conn); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(context.Background(), conn); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("second start err = %v, want ErrNotIdle", err)
	}
	r.Stop()
	if s := r.State(); s != Stopping && s != Idle {
		t.Fatalf("state after stop = %s", s)
	}
	waitDone(t, r)

	events := h.snapshot()
	if len(events) != 1 || events[0].kind != "disconnected" || !errors.Is(events[0].err, link.ErrPeerClosed) {
		t.Fatalf("events = %+v", events)
	}
	if err := r.Start(context.Background(), &fakeStream{}); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	waitDone(t, r)
}

func TestReceiverStopMidImage(t *testing.T) {
	const readTimeout = 30 * time.Millisecond
	client, server := net.Pipe()
	defer server.Close()
	conn := link.NewConn(client, readTimeout)
	defer conn.Close()

	// one whole record and the first part of its image, then the camera goes quiet
	partial := cycle(1700000000, 7)[:testProtocol.Telemetry.Length+testImageSize/3]
	go server.Write(partial)

	h := &recorder{}
	r := New(Config{Protocol: testProtocol, Handler: h})
	if err := r.Start(context.Background(), conn); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(h.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no telemetry event")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := time.Now()
	r.Stop()
	select {
	case <-r.Done():
	case <-time.After(10 * readTimeout):
		t.Fatalf("receiver still blocked %s after stop", 10*readTimeout)
	}
	if took := time.Since(stopped); took > 10*readTimeout {
		t.Fatalf("exit took %s", took)
	}

	events := h.snapshot()
	if len(events) != 2 || events[0].kind != "telemetry" || events[1].kind != "disconnected" {
		t.Fatalf("events = %+v", events)
	}
	if c := r.Counters(); c.Records != 1 || c.Frames != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestReceiverOverPipeWithFragments(t *testing.T) {
	client, server := net.Pipe()
	conn := link.NewConn(client, 0)
	defer conn.Close()

	script := append(cycle(10, 4), cycle(11, 5)...)
	go func() {
		for len(script) > 0 {
			n := 11
			if n > len(script) {
				n = len(script)
			}
			if _, err := server.Write(script[:n]); err != nil {
				return
			}
			script = script[n:]
		}
		server.Close()
	}()

	h := &recorder{}
	r := New(Config{Protocol: testProtocol, Handler: h})
	if err := r.Start(context.Background(), conn); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r)
	events := h.snapshot()
	if len(events) != 5 || events[3].tag != 5 {
		t.Fatalf("events = %+v", events)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{Idle: "idle", Running: "running", Stopping: "stopping", State(9): "unknown"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
