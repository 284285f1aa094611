// Append-only CSV backup of received telemetry
package backup

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"starcam-link/internal/wire"
)

// Header is written by Prepare at the start of every logging run.
const Header = "C time (sec),GMT,RA (deg),DEC (deg),FR (deg),PS (arcsec/px),IR (deg),ALT (deg),AZ (deg)"

const headerPrefix = "C time"

// Logger appends one line per telemetry record. Each call opens, writes, syncs and
// closes the file so nothing is lost if the process dies between records.
type Logger struct {
	path string
	mu   sync.Mutex
}

// New returns a Logger writing to path.
func New(path string) *Logger {
	return &Logger{path: path}
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Prepare appends the header line, creating the file if needed. Existing lines are kept.
func (l *Logger) Prepare() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLine(Header + "\n")
}

// Append writes one line for rec.
func (l *Logger) Append(rec wire.TelemetryRecord) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(Line(rec)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLine(sb.String())
}

func (l *Logger) appendLine(s string) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open backup log: %w", err)
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return fmt.Errorf("write backup log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync backup log: %w", err)
	}
	return f.Close()
}

// Line returns the CSV fields for rec in header order.
func Line(rec wire.TelemetryRecord) []string {
	return []string{
		formatFloat(rec.Timestamp),
		rec.GMT(),
		formatFloat(rec.RA),
		formatFloat(rec.Dec),
		formatFloat(rec.FieldRotation),
		formatFloat(rec.PixelScale),
		formatFloat(rec.ImageRotation),
		formatFloat(rec.Altitude),
		formatFloat(rec.Azimuth),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Entry is one parsed log line.
type Entry struct {
	Timestamp     float64
	GMT           string
	RA            float64
	Dec           float64
	FieldRotation float64
	PixelScale    float64
	ImageRotation float64
	Altitude      float64
	Azimuth       float64
}

// Time returns the entry's capture time in UTC.
func (e Entry) Time() time.Time {
	return wire.TelemetryRecord{Timestamp: e.Timestamp}.Time()
}

// Record returns a telemetry record carrying the logged pointing fields.
func (e Entry) Record() wire.TelemetryRecord {
	return wire.TelemetryRecord{
		Timestamp:     e.Timestamp,
		RA:            e.RA,
		Dec:           e.Dec,
		FieldRotation: e.FieldRotation,
		PixelScale:    e.PixelScale,
		ImageRotation: e.ImageRotation,
		Altitude:      e.Altitude,
		Azimuth:       e.Azimuth,
	}
}

// ReadEntries parses a backup log, skipping the header lines written by each Prepare.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, headerPrefix) {
			continue
		}
		fields, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		e, err := parseEntry(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func parseEntry(fields []string) (Entry, error) {
	if len(fields) != 9 {
		return Entry{}, fmt.Errorf("expected 9 fields, got %d", len(fields))
	}
	var nums [8]float64
	for i, idx := range []int{0, 2, 3, 4, 5, 6, 7, 8} {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
		if err != nil {
			return Entry{}, fmt.Errorf("field %d: %w", idx, err)
		}
		nums[i] = v
	}
	return Entry{
		Timestamp:     nums[0],
		GMT:           fields[1],
		RA:            nums[1],
		Dec:           nums[2],
		FieldRotation: nums[3],
		PixelScale:    nums[4],
		ImageRotation: nums[5],
		Altitude:      nums[6],
		Azimuth:       nums[7],
	}, nil
}
