package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/ferry/pkg/ferry/core/config"
	metrics "github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	logger "github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// Metric backends accepted by ferry.metrics.backend.
const (
	BackendNone       = "none"
	BackendPrometheus = "prometheus"
	BackendOtel       = "otel"
)

// RecorderParams holds the dependencies of NewMetricRecorder.
type RecorderParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// NewMetricRecorder selects the configured backend. Prometheus metrics are
// pushed and OTLP readers are flushed when the application stops.
func NewMetricRecorder(p RecorderParams) (metrics.MetricRecorder, error) {
	cfg := p.Config.Ferry.Metrics
	switch cfg.Backend {
	case "", BackendNone:
		return metrics.NewNoOpMetricRecorder(), nil
	case BackendPrometheus:
		recorder := NewPrometheusRecorder()
		if cfg.PushgatewayURL != "" {
			p.Lifecycle.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					if err := recorder.Push(ctx, cfg.PushgatewayURL, cfg.JobName); err != nil {
						logger.Warnf("Metrics: %v", err)
					}
					return nil
				},
			})
		}
		return recorder, nil
	case BackendOtel:
		provider, err := NewMeterProvider(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{OnStop: provider.Shutdown})
		return NewOpenTelemetryRecorder(provider)
	default:
		return nil, exception.NewFerryErrorf(exception.ValidationError, "metrics", "unsupported metrics backend %q", cfg.Backend)
	}
}

// NewTracer returns an OpenTelemetry tracer when tracing is enabled and a
// no-op tracer otherwise.
func NewTracer(p RecorderParams) (metrics.Tracer, error) {
	cfg := p.Config.Ferry.Tracing
	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "none" {
		return metrics.NewNoOpTracer(), nil
	}
	provider, err := NewTracerProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(provider)
	p.Lifecycle.Append(fx.Hook{OnStop: provider.Shutdown})
	return NewOpenTelemetryTracer(provider), nil
}

// Module provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
