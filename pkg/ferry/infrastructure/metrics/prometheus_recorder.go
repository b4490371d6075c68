package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	metrics "github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	logger "github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// Ferry commands are short lived, so the registry is pushed to a Pushgateway
// instead of being scraped.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Dispatch metrics
	dispatchJobs     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	jobOutcomes      *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec

	// Record metrics
	phaseDuration *prometheus.HistogramVec
	auditVerdicts *prometheus.CounterVec
	alertFailures *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		dispatchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_dispatch_jobs_total",
			Help: "Total number of jobs handed to the dispatcher.",
		}, []string{"process_type"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ferry_dispatch_duration_seconds",
			Help:    "Duration of dispatched batches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"process_type", "continue"}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_job_outcome_total",
			Help: "Total number of jobs by classification.",
		}, []string{"process_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ferry_job_duration_seconds",
			Help:    "Wall clock duration of worker processes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"process_type", "status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ferry_phase_duration_seconds",
			Help:    "Duration of orchestrated record phases.",
			Buckets: prometheus.DefBuckets,
		}, []string{"process_type", "status"}),
		auditVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_audit_verdict_total",
			Help: "Total number of audit verdicts.",
		}, []string{"verdict"}),
		alertFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_alert_failures_total",
			Help: "Total number of alerts that could not be delivered.",
		}, []string{"process_type"}),
	}

	// Register all metrics with the registry.
	registry.MustRegister(r.dispatchJobs)
	registry.MustRegister(r.dispatchDuration)
	registry.MustRegister(r.jobOutcomes)
	registry.MustRegister(r.jobDuration)
	registry.MustRegister(r.phaseDuration)
	registry.MustRegister(r.auditVerdicts)
	registry.MustRegister(r.alertFailures)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Push sends every collected metric to the Pushgateway at url under job.
func (r *PrometheusRecorder) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).Gatherer(r.registry).PushContext(ctx)
	if err != nil {
		return exception.NewFerryErrorf(exception.ConnectionError, "metrics", "failed to push metrics to %s", url, err)
	}
	logger.Debugf("Metrics: pushed registry to %s (job %s).", url, job)
	return nil
}

// RecordDispatchStart records the start of a batch.
func (r *PrometheusRecorder) RecordDispatchStart(ctx context.Context, processType string, size int) {
	r.dispatchJobs.WithLabelValues(processType).Add(float64(size))
	logger.Debugf("Metrics: dispatch of %d '%s' jobs started.", size, processType)
}

// RecordDispatchEnd records the end of a batch.
func (r *PrometheusRecorder) RecordDispatchEnd(ctx context.Context, processType string, cont bool, duration time.Duration) {
	r.dispatchDuration.WithLabelValues(processType, strconv.FormatBool(cont)).Observe(duration.Seconds())
	logger.Debugf("Metrics: dispatch of '%s' ended. Duration: %.3fs", processType, duration.Seconds())
}

// RecordJobOutcome records the classification of one job.
func (r *PrometheusRecorder) RecordJobOutcome(ctx context.Context, processType string, status string, duration time.Duration) {
	r.jobOutcomes.WithLabelValues(processType, status).Inc()
	r.jobDuration.WithLabelValues(processType, status).Observe(duration.Seconds())
}

// RecordPhase records the end of a transfer phase.
func (r *PrometheusRecorder) RecordPhase(ctx context.Context, processType string, status string, duration time.Duration) {
	r.phaseDuration.WithLabelValues(processType, status).Observe(duration.Seconds())
}

// RecordAudit records a reconciliation verdict.
func (r *PrometheusRecorder) RecordAudit(ctx context.Context, verdict string) {
	r.auditVerdicts.WithLabelValues(verdict).Inc()
}

// RecordAlertFailure counts an undeliverable alert.
func (r *PrometheusRecorder) RecordAlertFailure(ctx context.Context, processType string) {
	r.alertFailures.WithLabelValues(processType).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
