// ColorStdoutWriter prints human-friendly, colorized link output to STDOUT.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"starcam-link/internal/config"
	"starcam-link/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints telemetry, frame, event and state rows using ANSI colors.
type ColorStdoutWriter struct {
	cam  *config.Camera
	out  io.Writer
	once sync.Once

	mu            sync.Mutex
	sessionColors map[string]string
	colorIdx      int
}

var sessionPalette = []string{colorCyan, colorGreen, colorYellow, colorBlue, colorMagenta}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout. cam, if set,
// is printed once as an overview before the first row.
func NewColorStdoutWriter(cam *config.Camera) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		cam:           cam,
		out:           os.Stdout,
		sessionColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) sessionColor(id string) string {
	if c, ok := w.sessionColors[id]; ok {
		return c
	}
	c := sessionPalette[w.colorIdx%len(sessionPalette)]
	w.sessionColors[id] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cam == nil {
		return
	}
	fmt.Fprintln(w.out, "Camera:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", w.cam.Name)
	fmt.Fprintf(tw, "Address:\t%s:%d\n", w.cam.Address, w.cam.Port)
	fmt.Fprintf(tw, "Protocol:\tv%d\n", w.cam.ProtocolVersion)
	fmt.Fprintf(tw, "Read timeout:\t%s\n", w.cam.ReadTimeout)
	tw.Flush()
	fmt.Fprintln(w.out)
}

func (w *ColorStdoutWriter) stamp(ts time.Time) string {
	return fmt.Sprintf("%s[%s]%s ", colorGray, ts.UTC().Format(time.RFC3339), colorReset)
}

// Write outputs a single telemetry row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.TelemetryRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprint(w.out, w.stamp(row.Timestamp))
	fmt.Fprintf(w.out, "%ssession=%s%s ", w.sessionColor(row.SessionID), shortID(row.SessionID), colorReset)
	fmt.Fprintf(w.out, "%sra=%.4f dec=%.4f%s ", colorGreen, row.RA, row.Dec, colorReset)
	fmt.Fprintf(w.out, "%salt=%.2f az=%.2f%s ", colorYellow, row.Altitude, row.Azimuth, colorReset)
	fmt.Fprintf(w.out, "%sfocus=%d%s ", colorMagenta, row.FocusPosition, colorReset)
	fmt.Fprintf(w.out, "%sf/%.1f exp=%gms%s", colorCyan, row.Aperture, row.Exposure, colorReset)
	if row.AutoFocusActive {
		fmt.Fprintf(w.out, " %ssweep flux=%d%s", colorMagenta, row.AutoFocusFlux, colorReset)
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

// WriteBatch outputs multiple telemetry rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame prints a frame summary.
func (w *ColorStdoutWriter) WriteFrame(row telemetry.FrameRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s%sFRAME%s seq=%d bytes=%d mean=%.1f max=%d\n",
		w.stamp(row.Timestamp), colorBlue, colorReset, row.Sequence, row.Bytes, row.Mean, row.Max)
	return err
}

// WriteEvent prints a link event. Disconnects are red and setting changes yellow.
func (w *ColorStdoutWriter) WriteEvent(row telemetry.EventRow) error {
	w.once.Do(w.printOverview)
	col := colorCyan
	switch row.EventType {
	case telemetry.EventDisconnected:
		col = colorRed
	case telemetry.EventSettingChanged:
		col = colorYellow
	case telemetry.EventFocusSweep:
		col = colorMagenta
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s%sEVENT%s type=%s", w.stamp(row.Timestamp), col, colorReset, row.EventType)
	if row.Detail != "" {
		fmt.Fprintf(w.out, " %s", row.Detail)
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

// WriteState prints link state counters.
func (w *ColorStdoutWriter) WriteState(row telemetry.LinkStateRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s%sSTATE%s receiver=%s records=%d frames=%d malformed=%d since=%.1fs\n",
		w.stamp(row.Timestamp), colorBlue, colorReset, row.Receiver, row.Records, row.Frames, row.Malformed, row.SinceTelemetry)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
