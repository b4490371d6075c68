// Package metrics defines the metric and tracing abstractions used by the
// engine. Concrete backends live in infrastructure/metrics.
package metrics

import (
	"context"
	"time"
)

// MetricRecorder records engine level metrics.
type MetricRecorder interface {
	// RecordDispatchStart records the start of a batch of size jobs.
	RecordDispatchStart(ctx context.Context, processType string, size int)
	// RecordDispatchEnd records the aggregate outcome of a batch.
	RecordDispatchEnd(ctx context.Context, processType string, cont bool, duration time.Duration)
	// RecordJobOutcome records the classification of one job (SUCCESS, FAILED, CRASHED).
	RecordJobOutcome(ctx context.Context, processType string, status string, duration time.Duration)
	// RecordPhase records the end of an orchestrated phase.
	RecordPhase(ctx context.Context, processType string, status string, duration time.Duration)
	// RecordAudit records a reconciliation verdict.
	RecordAudit(ctx context.Context, verdict string)
	// RecordAlertFailure counts alerts that could not be delivered.
	RecordAlertFailure(ctx context.Context, processType string)
}

// Tracer wraps operations in spans.
type Tracer interface {
	// StartSpan starts a span and returns the context carrying it and the function ending it.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())
	// RecordError records err on the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
