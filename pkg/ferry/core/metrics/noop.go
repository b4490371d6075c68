package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder discards every metric.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() *NoOpMetricRecorder { return &NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordDispatchStart(context.Context, string, int) {}
func (NoOpMetricRecorder) RecordDispatchEnd(context.Context, string, bool, time.Duration) {}
func (NoOpMetricRecorder) RecordJobOutcome(context.Context, string, string, time.Duration) {}
func (NoOpMetricRecorder) RecordPhase(context.Context, string, string, time.Duration) {}
func (NoOpMetricRecorder) RecordAudit(context.Context, string) {}
func (NoOpMetricRecorder) RecordAlertFailure(context.Context, string) {}

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}
func (NoOpTracer) RecordError(context.Context, string, error) {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var (
	_ MetricRecorder = NoOpMetricRecorder{}
	_ Tracer         = NoOpTracer{}
)

// RecorderOrNoOp returns r, or a no-op recorder when r is nil.
func RecorderOrNoOp(r MetricRecorder) MetricRecorder {
	if r == nil {
		return NoOpMetricRecorder{}
	}
	return r
}

// TracerOrNoOp returns t, or a no-op tracer when t is nil.
func TracerOrNoOp(t Tracer) Tracer {
	if t == nil {
		return NoOpTracer{}
	}
	return t
}
