package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Upload and processing metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_uploads_total",
			Help: "Total number of file uploads",
		},
		[]string{"type", "status"}, // type: image/video/audio, status: stored/duplicate/rejected/failed
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_upload_bytes_total",
			Help: "Total bytes accepted from uploads",
		},
	)

	ProcessingQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_processing_queued",
			Help: "Number of jobs waiting for a processing permit",
		},
	)

	ProcessingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_processing_active",
			Help: "Number of jobs currently holding a processing permit",
		},
	)

	ProcessingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_processing_jobs_total",
			Help: "Total number of media processing jobs",
		},
		[]string{"kind", "status"}, // kind: image/heic/video/audio/rotate, status: success/error/interrupted
	)

	ProcessingJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_processing_job_duration_seconds",
			Help:    "Media processing job duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	DerivativeGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_derivative_generations_total",
			Help: "Total number of derivative generations",
		},
		[]string{"profile", "status"}, // profile: thumbnail/medium/large/web_video/video_thumb
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Backfill metrics
var (
	BackfillRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_backfill_runs_total",
			Help: "Total number of derivative backfill runs",
		},
	)

	BackfillLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_backfill_last_run_timestamp",
			Help: "Timestamp of the last backfill run",
		},
	)

	BackfillLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_backfill_last_run_duration_seconds",
			Help: "Duration of the last backfill run in seconds",
		},
	)

	BackfillFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_backfill_files",
			Help: "Number of files in the last backfill run by status",
		},
		[]string{"status"}, // "succeeded", "failed", "skipped"
	)

	BackfillIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_backfill_running",
			Help: "Whether a backfill run is in progress (1 = running, 0 = idle)",
		},
	)
)

// Serving metrics
var (
	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_range_requests_total",
			Help: "Total number of byte-range file requests",
		},
		[]string{"status"}, // "full", "partial", "unsatisfiable"
	)

	BytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_bytes_served_total",
			Help: "Total media bytes written to clients",
		},
	)
)

// Library metrics
var (
	MediaFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_media_files_total",
			Help: "Total number of media files by type",
		},
		[]string{"type"},
	)

	RecordingsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_recordings_total",
			Help: "Total number of slideshow recordings",
		},
	)

	LibraryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_library_bytes",
			Help: "Total size of stored originals in bytes",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
