package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/ferry/pkg/ferry/core/config"
	coremetrics "github.com/tigerroll/ferry/pkg/ferry/core/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewPrometheusRecorder()

	r.RecordDispatchStart(ctx, "stg_to_trg", 3)
	r.RecordJobOutcome(ctx, "stg_to_trg", "SUCCESS", time.Second)
	r.RecordJobOutcome(ctx, "stg_to_trg", "SUCCESS", time.Second)
	r.RecordJobOutcome(ctx, "stg_to_trg", "CRASHED", time.Second)
	r.RecordAudit(ctx, "MISMATCH")
	r.RecordAlertFailure(ctx, "src_to_stg")
	r.RecordPhase(ctx, "src_to_stg", "COMPLETED", 2*time.Second)
	r.RecordDispatchEnd(ctx, "stg_to_trg", true, 3*time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.dispatchJobs.WithLabelValues("stg_to_trg")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobOutcomes.WithLabelValues("stg_to_trg", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobOutcomes.WithLabelValues("stg_to_trg", "CRASHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.auditVerdicts.WithLabelValues("MISMATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertFailures.WithLabelValues("src_to_stg")))

	families, err := r.GetRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ferry_phase_duration_seconds"])
	assert.True(t, names["ferry_dispatch_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

func TestPrometheusRecorder_Push(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Contains(t, req.URL.Path, "/metrics/job/ferry")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewPrometheusRecorder()
	r.RecordAudit(context.Background(), "MATCH")
	require.NoError(t, r.Push(context.Background(), srv.URL, "ferry"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPrometheusRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewPrometheusRecorder().Push(context.Background(), srv.URL, "ferry")
	assert.Error(t, err)
}

func TestOpenTelemetryRecorder(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewOpenTelemetryRecorder(provider)
	require.NoError(t, err)
	r.RecordAudit(ctx, "MATCH")
	r.RecordAudit(ctx, "MATCH")
	r.RecordJobOutcome(ctx, "stg_to_trg", "FAILED", time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	found := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				found[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), found["ferry.audit.verdicts"])
	assert.Equal(t, int64(1), found["ferry.job.outcomes"])
}

func TestOpenTelemetryTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewOpenTelemetryTracer(provider)

	ctx, end := tracer.StartSpan(context.Background(), "dispatch", map[string]interface{}{
		"process_type": "stg_to_trg",
		"jobs":         3,
	})
	tracer.RecordEvent(ctx, "job.classified", map[string]interface{}{"status": "CRASHED"})
	tracer.RecordError(ctx, "dispatch", errors.New("worker exited with code 3"))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "dispatch", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Len(t, span.Attributes(), 2)
	require.Len(t, span.Events(), 2)
	assert.Equal(t, "job.classified", span.Events()[0].Name)
}

func TestNewMetricRecorder_Backends(t *testing.T) {
	cfg := config.NewConfig()
	lc := fxtest.NewLifecycle(t)

	r, err := NewMetricRecorder(RecorderParams{Lifecycle: lc, Config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.NoOpMetricRecorder{}, r)

	cfg.Ferry.Metrics.Backend = BackendPrometheus
	r, err = NewMetricRecorder(RecorderParams{Lifecycle: lc, Config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &PrometheusRecorder{}, r)

	cfg.Ferry.Metrics.Backend = "statsd"
	_, err = NewMetricRecorder(RecorderParams{Lifecycle: lc, Config: cfg})
	assert.Error(t, err)
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(RecorderParams{Lifecycle: fxtest.NewLifecycle(t), Config: config.NewConfig()})
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.NoOpTracer{}, tracer)
}
