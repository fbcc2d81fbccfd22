package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the research feed service.
// Metrics are organized by subsystem: refresh runs, pipeline stages, upstream
// requests, snapshot output, validation, and notifications.
type Metrics struct {
	// RefreshRunsStarted counts refresh runs initiated.
	RefreshRunsStarted prometheus.Counter

	// RefreshRunsCompleted counts refresh runs that wrote a snapshot.
	RefreshRunsCompleted prometheus.Counter

	// RefreshRunsFailed counts refresh runs that aborted.
	RefreshRunsFailed prometheus.Counter

	// RefreshDuration observes the end-to-end duration of refresh runs in seconds.
	RefreshDuration prometheus.Histogram

	// LastSuccessTimestamp is the unix time of the last successful refresh.
	LastSuccessTimestamp prometheus.Gauge

	// StageDuration observes pipeline stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// StageFailures counts failed pipeline stages, labeled by stage.
	StageFailures *prometheus.CounterVec

	// ArticlesPerCategory is the article count of each category in the last run.
	ArticlesPerCategory *prometheus.GaugeVec

	// ArticlesTotal is the total article count of the last snapshot.
	ArticlesTotal prometheus.Gauge

	// SummariesMissing counts search ids dropped for lack of a summary, labeled by category.
	SummariesMissing *prometheus.CounterVec

	// AbstractsMissing counts articles that fell back to the placeholder snippet, labeled by category.
	AbstractsMissing *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to upstream, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to upstream, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to upstream in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SnapshotWrites counts snapshot files written, labeled by destination.
	SnapshotWrites *prometheus.CounterVec

	// SnapshotWriteFailures counts snapshot files that could not be written, labeled by destination.
	SnapshotWriteFailures *prometheus.CounterVec

	// ValidationRuns counts validator runs, labeled by result ("valid", "invalid", "malformed").
	ValidationRuns *prometheus.CounterVec

	// ValidationIssues is the issue count reported by the last validator run.
	ValidationIssues prometheus.Gauge

	// NotificationsPublished counts refresh events delivered to the broker.
	NotificationsPublished prometheus.Counter

	// NotificationsFailed counts refresh events that could not be delivered.
	NotificationsFailed prometheus.Counter

	// SnapshotRequests counts snapshot reads over HTTP, labeled by status code.
	SnapshotRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
// The namespace is used as a prefix for all metric names. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Refresh runs
		RefreshRunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_started_total",
			Help:      "Total number of refresh runs started",
		}),
		RefreshRunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_completed_total",
			Help:      "Total number of refresh runs that wrote a snapshot",
		}),
		RefreshRunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_failed_total",
			Help:      "Total number of refresh runs that failed",
		}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh runs in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		LastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		}),

		// Stages
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds by stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed pipeline stages by stage",
		}, []string{"stage"}),

		// Articles
		ArticlesPerCategory: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "category_articles",
			Help:      "Number of articles in each category of the last snapshot",
		}, []string{"category"}),
		ArticlesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_articles",
			Help:      "Total number of articles in the last snapshot",
		}),
		SummariesMissing: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_missing_total",
			Help:      "Total number of search ids dropped for lack of a summary by category",
		}, []string{"category"}),
		AbstractsMissing: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstracts_missing_total",
			Help:      "Total number of articles without an abstract by category",
		}, []string{"category"}),

		// Sources
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to upstream sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to upstream sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to upstream sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),

		// Snapshot output
		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Total number of snapshot files written by destination",
		}, []string{"destination"}),
		SnapshotWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_write_failures_total",
			Help:      "Total number of snapshot files that failed to write by destination",
		}, []string{"destination"}),

		// Validation
		ValidationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_runs_total",
			Help:      "Total number of snapshot validations by result",
		}, []string{"result"}),
		ValidationIssues: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_issues",
			Help:      "Number of issues reported by the last snapshot validation",
		}),

		// Notifications
		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Total number of refresh notifications published",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of refresh notifications that failed to publish",
		}),

		// Serving
		SnapshotRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_requests_total",
			Help:      "Total number of snapshot reads over HTTP by status code",
		}, []string{"status"}),
	}
}

// RecordRefreshStarted records that a refresh run has started.
func (m *Metrics) RecordRefreshStarted() {
	m.RefreshRunsStarted.Inc()
}

// RecordRefreshCompleted records a successful refresh run.
func (m *Metrics) RecordRefreshCompleted(durationSeconds float64, articles int, at time.Time) {
	m.RefreshRunsCompleted.Inc()
	m.RefreshDuration.Observe(durationSeconds)
	m.ArticlesTotal.Set(float64(articles))
	m.LastSuccessTimestamp.Set(float64(at.Unix()))
}

// RecordRefreshFailed records that a refresh run has failed.
func (m *Metrics) RecordRefreshFailed(durationSeconds float64) {
	m.RefreshRunsFailed.Inc()
	m.RefreshDuration.Observe(durationSeconds)
}

// RecordStageCompleted records a finished pipeline stage.
func (m *Metrics) RecordStageCompleted(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailed records a failed pipeline stage.
func (m *Metrics) RecordStageFailed(stage string, durationSeconds float64) {
	m.StageFailures.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordCategory records the outcome of assembling one category.
func (m *Metrics) RecordCategory(category string, articles, missingSummaries, missingAbstracts int) {
	m.ArticlesPerCategory.WithLabelValues(category).Set(float64(articles))
	m.SummariesMissing.WithLabelValues(category).Add(float64(missingSummaries))
	m.AbstractsMissing.WithLabelValues(category).Add(float64(missingAbstracts))
}

// RecordSourceRequest records a request to an upstream source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to an upstream source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSnapshotWrite records a snapshot file written to destination.
func (m *Metrics) RecordSnapshotWrite(destination string) {
	m.SnapshotWrites.WithLabelValues(destination).Inc()
}

// RecordSnapshotWriteFailed records a snapshot file that failed to write.
func (m *Metrics) RecordSnapshotWriteFailed(destination string) {
	m.SnapshotWriteFailures.WithLabelValues(destination).Inc()
}

// RecordValidation records a validator run. A negative issue count marks
// input that was not JSON at all.
func (m *Metrics) RecordValidation(issues int) {
	switch {
	case issues < 0:
		m.ValidationRuns.WithLabelValues("malformed").Inc()
		m.ValidationIssues.Set(1)
	case issues == 0:
		m.ValidationRuns.WithLabelValues("valid").Inc()
		m.ValidationIssues.Set(0)
	default:
		m.ValidationRuns.WithLabelValues("invalid").Inc()
		m.ValidationIssues.Set(float64(issues))
	}
}

// RecordNotificationPublished records a delivered refresh event.
func (m *Metrics) RecordNotificationPublished() {
	m.NotificationsPublished.Inc()
}

// RecordNotificationFailed records a refresh event that could not be delivered.
func (m *Metrics) RecordNotificationFailed() {
	m.NotificationsFailed.Inc()
}

// RecordSnapshotServed records a snapshot read over HTTP.
func (m *Metrics) RecordSnapshotServed(status int) {
	m.SnapshotRequests.WithLabelValues(fmt.Sprint(status)).Inc()
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile exports everything gathered by g to path in the text
// exposition format, for pickup by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
