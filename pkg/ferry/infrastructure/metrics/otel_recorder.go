package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	config "github.com/tigerroll/ferry/pkg/ferry/core/config"
	metrics "github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

const instrumentationName = "github.com/tigerroll/ferry"

// OpenTelemetryRecorder records engine metrics through an OpenTelemetry meter.
type OpenTelemetryRecorder struct {
	dispatchJobs     otelmetric.Int64Counter
	dispatchDuration otelmetric.Float64Histogram
	jobOutcomes      otelmetric.Int64Counter
	phaseDuration    otelmetric.Float64Histogram
	auditVerdicts    otelmetric.Int64Counter
	alertFailures    otelmetric.Int64Counter
}

// NewOpenTelemetryRecorder creates the instruments on a meter of provider.
func NewOpenTelemetryRecorder(provider otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error
	if r.dispatchJobs, err = meter.Int64Counter("ferry.dispatch.jobs", otelmetric.WithDescription("Jobs handed to the dispatcher.")); err != nil {
		return nil, err
	}
	if r.dispatchDuration, err = meter.Float64Histogram("ferry.dispatch.duration", otelmetric.WithUnit("s"), otelmetric.WithDescription("Duration of dispatched batches.")); err != nil {
		return nil, err
	}
	if r.jobOutcomes, err = meter.Int64Counter("ferry.job.outcomes", otelmetric.WithDescription("Jobs by classification.")); err != nil {
		return nil, err
	}
	if r.phaseDuration, err = meter.Float64Histogram("ferry.phase.duration", otelmetric.WithUnit("s"), otelmetric.WithDescription("Duration of record phases.")); err != nil {
		return nil, err
	}
	if r.auditVerdicts, err = meter.Int64Counter("ferry.audit.verdicts", otelmetric.WithDescription("Audit verdicts.")); err != nil {
		return nil, err
	}
	if r.alertFailures, err = meter.Int64Counter("ferry.alert.failures", otelmetric.WithDescription("Undeliverable alerts.")); err != nil {
		return nil, err
	}
	return r, nil
}

// NewMeterProvider builds an SDK meter provider exporting over OTLP.
func NewMeterProvider(ctx context.Context, cfg config.MetricsConfig) (*sdkmetric.MeterProvider, error) {
	var exporter sdkmetric.Exporter
	var err error
	switch cfg.Otel.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Otel.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Otel.Endpoint))
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		opts := []otlpmetrichttp.Option{}
		if cfg.Otel.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Otel.Endpoint))
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, exception.NewFerryError(exception.ConnectionError, "metrics", "failed to create OTLP metric exporter", err)
	}

	interval := time.Duration(cfg.ExportIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	res, err := newResource(ctx, cfg.JobName)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	), nil
}

func (r *OpenTelemetryRecorder) RecordDispatchStart(ctx context.Context, processType string, size int) {
	r.dispatchJobs.Add(ctx, int64(size), otelmetric.WithAttributes(attribute.String("process_type", processType)))
}

func (r *OpenTelemetryRecorder) RecordDispatchEnd(ctx context.Context, processType string, cont bool, duration time.Duration) {
	r.dispatchDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(
		attribute.String("process_type", processType),
		attribute.String("continue", strconv.FormatBool(cont)),
	))
}

func (r *OpenTelemetryRecorder) RecordJobOutcome(ctx context.Context, processType string, status string, _ time.Duration) {
	r.jobOutcomes.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("process_type", processType),
		attribute.String("status", status),
	))
}

func (r *OpenTelemetryRecorder) RecordPhase(ctx context.Context, processType string, status string, duration time.Duration) {
	r.phaseDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(
		attribute.String("process_type", processType),
		attribute.String("status", status),
	))
}

func (r *OpenTelemetryRecorder) RecordAudit(ctx context.Context, verdict string) {
	r.auditVerdicts.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("verdict", verdict)))
}

func (r *OpenTelemetryRecorder) RecordAlertFailure(ctx context.Context, processType string) {
	r.alertFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("process_type", processType)))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
