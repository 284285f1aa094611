package main

import (
	"starcam-link/internal/config"
	"starcam-link/internal/sink"
)

// newWriters sets up the output writers from the config. GreptimeDB is used when an
// endpoint is configured and printOnly is off; otherwise rows go to STDOUT as JSON
// or colored text, or to the terminal UI when tui is set. Configured export paths add a FileWriter.
// It returns the writer and a cleanup function to close any resources.
func newWriters(cfg *config.Config, printOnly, tui bool) (any, func(), error) {
	var writers []any
	var closers []func() error

	base, err := baseWriter(cfg, printOnly, tui)
	if err != nil {
		return nil, nil, err
	}
	if base != nil {
		writers = append(writers, base)
	}
	if tui {
		tw := sink.NewTUIWriter(cfg.Camera.Name)
		writers = append(writers, tw)
		closers = append(closers, tw.Close)
	}
	ex := cfg.Export
	if ex.TelemetryPath != "" || ex.FramesPath != "" || ex.EventsPath != "" || ex.StatePath != "" {
		fw, err := sink.NewFileWriter(ex.TelemetryPath, ex.FramesPath, ex.EventsPath, ex.StatePath)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		closers = append(closers, fw.Close)
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	if len(writers) == 1 {
		return writers[0], cleanup, nil
	}
	return sink.NewMultiWriter(writers...), cleanup, nil
}

// baseWriter chooses between GreptimeDB and STDOUT. The terminal UI replaces STDOUT,
// and export.stdout_format picks JSON lines or colored text.
func baseWriter(cfg *config.Config, printOnly, tui bool) (any, error) {
	if printOnly || cfg.Greptime.Endpoint == "" {
		if tui {
			return nil, nil
		}
		if cfg.Export.StdoutFormat == "text" {
			return sink.NewColorStdoutWriter(&cfg.Camera), nil
		}
		return sink.NewJSONStdoutWriter(), nil
	}
	return sink.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database)
}

// newTelemetryWriter creates a telemetry-only writer for replay.
func newTelemetryWriter(cfg *config.Config, printOnly bool) (sink.TelemetryWriter, func(), error) {
	w, cleanup, err := newWriters(cfg, printOnly, false)
	if err != nil {
		return nil, nil, err
	}
	return w.(sink.TelemetryWriter), cleanup, nil
}
