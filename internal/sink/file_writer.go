package sink

import (
	"encoding/json"
	"os"
	"sync"

	"starcam-link/internal/telemetry"
)

// FileWriter appends telemetry, frame, event and link state rows to JSONL files.
// Existing content is kept.
type FileWriter struct {
	mu        sync.Mutex
	teleFile  *os.File
	frameFile *os.File
	eventFile *os.File
	stateFile *os.File
	teleEnc   *json.Encoder
	frameEnc  *json.Encoder
	eventEnc  *json.Encoder
	stateEnc  *json.Encoder
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
}

// NewFileWriter creates a FileWriter. framePath, eventPath or statePath may be
// empty to skip those logs.
func NewFileWriter(telemetryPath, framePath, eventPath, statePath string) (*FileWriter, error) {
	tf, err := openAppend(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	for _, opt := range []struct {
		path string
		file **os.File
		enc  **json.Encoder
	}{
		{framePath, &fw.frameFile, &fw.frameEnc},
		{eventPath, &fw.eventFile, &fw.eventEnc},
		{statePath, &fw.stateFile, &fw.stateEnc},
	} {
		if opt.path == "" {
			continue
		}
		f, err := openAppend(opt.path)
		if err != nil {
			fw.Close()
			return nil, err
		}
		*opt.file = f
		*opt.enc = json.NewEncoder(f)
	}
	return fw, nil
}

// Write logs a single telemetry row.
func (f *FileWriter) Write(row telemetry.TelemetryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teleEnc.Encode(row)
}

// WriteBatch logs multiple telemetry rows.
func (f *FileWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame logs a frame summary, if enabled.
func (f *FileWriter) WriteFrame(row telemetry.FrameRow) error {
	if f.frameEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameEnc.Encode(row)
}

// WriteEvent logs an event row, if enabled.
func (f *FileWriter) WriteEvent(row telemetry.EventRow) error {
	if f.eventEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventEnc.Encode(row)
}

// WriteState logs a link state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.LinkStateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.teleFile, f.frameFile, f.eventFile, f.stateFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
