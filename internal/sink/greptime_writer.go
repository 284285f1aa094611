package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"starcam-link/internal/telemetry"
)

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

const defaultGreptimePort = 4001

// GreptimeDBWriter writes telemetry, frame and event rows to GreptimeDB via the
// ingester client. Tables are created on first write.
type GreptimeDBWriter struct {
	client     greptimeClient
	table      string
	frameTable string
	eventTable string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port", default port 4001).
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{
		client:     client,
		table:      telemetry.TelemetryTableName,
		frameTable: telemetry.FramesTableName,
		eventTable: telemetry.EventsTableName,
		timeout:    5 * time.Second,
		logger:     slog.Default().With("writer", "greptimedb"),
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port", endpoint)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, rows int) error {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log().Error("write failed", "table", name, "err", err)
		return err
	}
	w.log().Debug("wrote rows", "table", name, "rows", rows)
	return nil
}

func (w *GreptimeDBWriter) log() *slog.Logger {
	if w.logger == nil {
		return slog.Default()
	}
	return w.logger
}

func (w *GreptimeDBWriter) tableName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Write inserts a single telemetry row.
func (w *GreptimeDBWriter) Write(row telemetry.TelemetryRow) error {
	return w.WriteBatch([]telemetry.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	name := w.tableName(w.table, telemetry.TelemetryTableName)
	tbl, err := table.New(name)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"session_id", true, types.STRING},
		{"camera", true, types.STRING},
		{"ra", false, types.FLOAT64},
		{"dec", false, types.FLOAT64},
		{"fr", false, types.FLOAT64},
		{"ps", false, types.FLOAT64},
		{"ir", false, types.FLOAT64},
		{"alt", false, types.FLOAT64},
		{"az", false, types.FLOAT64},
		{"focus_position", false, types.INT32},
		{"aperture", false, types.FLOAT64},
		{"exposure", false, types.FLOAT64},
		{"auto_focus_active", false, types.BOOLEAN},
		{"auto_focus_flux", false, types.INT32},
	} {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(
			r.SessionID, r.Camera,
			r.RA, r.Dec, r.FieldRotation, r.PixelScale, r.ImageRotation, r.Altitude, r.Azimuth,
			r.FocusPosition, r.Aperture, r.Exposure, r.AutoFocusActive, r.AutoFocusFlux,
			r.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.write(name, tbl, len(rows))
}

// WriteFrame inserts a frame summary.
func (w *GreptimeDBWriter) WriteFrame(row telemetry.FrameRow) error {
	name := w.tableName(w.frameTable, telemetry.FramesTableName)
	tbl, err := table.New(name)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("seq", types.UINT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("bytes", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("mean", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("max", types.UINT8); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.SessionID, row.Sequence, int64(row.Bytes), row.Mean, row.Max, row.Timestamp); err != nil {
		return err
	}
	return w.write(name, tbl, 1)
}

// WriteEvent inserts a link or camera event.
func (w *GreptimeDBWriter) WriteEvent(row telemetry.EventRow) error {
	name := w.tableName(w.eventTable, telemetry.EventsTableName)
	tbl, err := table.New(name)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("event_type", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("detail", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.SessionID, row.EventType, row.Detail, row.Timestamp); err != nil {
		return err
	}
	return w.write(name, tbl, 1)
}
