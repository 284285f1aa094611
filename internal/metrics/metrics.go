package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_bytes_received_total",
		Help: "Bytes read from the camera socket.",
	})

	TelemetryRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_telemetry_records_total",
		Help: "Telemetry records decoded and published.",
	})

	MalformedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_malformed_records_total",
		Help: "Telemetry records rejected by the decoder.",
	})

	ImageFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_image_frames_total",
		Help: "Complete image frames received.",
	})

	Disconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_disconnects_total",
		Help: "Connections lost while receiving.",
	})

	BackupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starcam_backup_failures_total",
		Help: "Telemetry records that could not be appended to the backup log.",
	})

	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starcam_commands_sent_total",
			Help: "Command records transmitted, by result.",
		},
		[]string{"result"},
	)

	ReceiverState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starcam_receiver_state",
		Help: "Receiver state: 0 idle, 1 running, 2 stopping.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starcam_http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starcam_http_duration_seconds",
			Help:    "Admin HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		BytesReceived,
		TelemetryRecords,
		MalformedRecords,
		ImageFrames,
		Disconnects,
		BackupFailures,
		CommandsSent,
		ReceiverState,
		httpRequestsTotal,
		httpDurationSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

var knownRoutes = map[string]bool{
	"/":            true,
	"/status":      true,
	"/connect":     true,
	"/start":       true,
	"/stop":        true,
	"/disconnect":  true,
	"/commands":    true,
	"/focus-curve": true,
	"/pointing":    true,
	"/metrics":     true,
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
