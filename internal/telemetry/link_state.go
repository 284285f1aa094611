package telemetry

import "time"

// LinkStateRow captures per-session link counters.
type LinkStateRow struct {
	SessionID        string    `json:"session_id"`
	Remote           string    `json:"remote"`
	Receiver         string    `json:"receiver"`
	Records          uint64    `json:"records"`
	Frames           uint64    `json:"frames"`
	Malformed        uint64    `json:"malformed"`
	SinceTelemetry   float64   `json:"since_telemetry_s"`
	FocusCurveLength int       `json:"focus_curve_len"`
	Timestamp        time.Time `json:"ts"`
}
