// Telemetry rows with greptime tags
package telemetry

import (
	"os"
	"time"

	"starcam-link/internal/wire"
)

// TelemetryRow is the exported view of one telemetry record.
type TelemetryRow struct {
	SessionID       string    `json:"session_id"`        // TAG
	Camera          string    `json:"camera"`            // TAG
	RA              float64   `json:"ra"`                // FIELD
	Dec             float64   `json:"dec"`               // FIELD
	FieldRotation   float64   `json:"fr"`                // FIELD
	PixelScale      float64   `json:"ps"`                // FIELD
	ImageRotation   float64   `json:"ir"`                // FIELD
	Altitude        float64   `json:"alt"`               // FIELD
	Azimuth         float64   `json:"az"`                // FIELD
	FocusPosition   int32     `json:"focus_position"`    // FIELD
	Aperture        float64   `json:"aperture"`          // FIELD
	Exposure        float64   `json:"exposure"`          // FIELD
	AutoFocusActive bool      `json:"auto_focus_active"` // FIELD
	AutoFocusFlux   int32     `json:"auto_focus_flux"`   // FIELD
	Timestamp       time.Time `json:"ts"`                // TIME INDEX
}

// TelemetryTableName holds the table name used when writing to GreptimeDB.
// It defaults to "starcam_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var TelemetryTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "starcam_telemetry"
}()

func (TelemetryRow) TableName() string {
	return TelemetryTableName
}

// NewTelemetryRow flattens rec for export.
func NewTelemetryRow(sessionID, camera string, rec wire.TelemetryRecord) TelemetryRow {
	return TelemetryRow{
		SessionID:       sessionID,
		Camera:          camera,
		RA:              rec.RA,
		Dec:             rec.Dec,
		FieldRotation:   rec.FieldRotation,
		PixelScale:      rec.PixelScale,
		ImageRotation:   rec.ImageRotation,
		Altitude:        rec.Altitude,
		Azimuth:         rec.Azimuth,
		FocusPosition:   rec.FocusPosition,
		Aperture:        rec.FNumber(),
		Exposure:        rec.Exposure,
		AutoFocusActive: rec.AutoFocusActive != 0,
		AutoFocusFlux:   rec.AutoFocusFlux,
		Timestamp:       rec.Time(),
	}
}

// FramesTableName is the GreptimeDB table for frame rows.
const FramesTableName = "starcam_frames"

// FrameRow summarizes one received image. Pixel data is not exported.
type FrameRow struct {
	SessionID string    `json:"session_id"` // TAG
	Sequence  uint64    `json:"seq"`        // FIELD
	Bytes     int       `json:"bytes"`      // FIELD
	Mean      float64   `json:"mean"`       // FIELD
	Max       uint8     `json:"max"`        // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// NewFrameRow computes the frame summary.
func NewFrameRow(sessionID string, seq uint64, frame []byte, at time.Time) FrameRow {
	var sum uint64
	var peak uint8
	for _, b := range frame {
		sum += uint64(b)
		if b > peak {
			peak = b
		}
	}
	mean := 0.0
	if len(frame) > 0 {
		mean = float64(sum) / float64(len(frame))
	}
	return FrameRow{
		SessionID: sessionID,
		Sequence:  seq,
		Bytes:     len(frame),
		Mean:      mean,
		Max:       peak,
		Timestamp: at.UTC(),
	}
}
