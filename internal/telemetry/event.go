package telemetry

import "time"

const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventSettingChanged = "setting_changed"
	EventCommandSent    = "command_sent"
	EventFocusSweep     = "focus_sweep"
)

// EventsTableName is the GreptimeDB table for event rows.
const EventsTableName = "starcam_events"

// EventRow records a link or camera event.
type EventRow struct {
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}
