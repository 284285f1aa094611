package sink

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"starcam-link/internal/backup"
	"starcam-link/internal/telemetry"
)

func pace(prev, next time.Time, speed float64) {
	if prev.IsZero() || speed <= 0 {
		return
	}
	diff := next.Sub(prev)
	if speed != 1 {
		diff = time.Duration(float64(diff) / speed)
	}
	if diff > 0 {
		time.Sleep(diff)
	}
}

// ReplayLog replays telemetry rows from r to writer. A speed >0 accelerates playback.
// If speed <= 0, no artificial delay is inserted.
func ReplayLog(r io.Reader, writer TelemetryWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var row telemetry.TelemetryRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		pace(prev, row.Timestamp, speed)
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its telemetry rows.
func ReplayLogFile(path string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}

// ReplayBackup replays a CSV backup log. Only the pointing columns are present in
// the backup, so the other fields of each row stay zero.
func ReplayBackup(r io.Reader, sessionID string, writer TelemetryWriter, speed float64) error {
	entries, err := backup.ReadEntries(r)
	if err != nil {
		return err
	}
	var prev time.Time
	for _, e := range entries {
		row := telemetry.NewTelemetryRow(sessionID, "backup", e.Record())
		pace(prev, row.Timestamp, speed)
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
	return nil
}

// ReplayBackupFile opens a backup log and replays it.
func ReplayBackupFile(path, sessionID string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayBackup(f, sessionID, writer, speed)
}
