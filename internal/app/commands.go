package app

import (
	"context"
	"io"
	"os"

	"go.uber.org/fx"

	"github.com/tigerroll/ferry/internal/pipeline"
	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/component/report"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
	"github.com/tigerroll/ferry/pkg/ferry/engine/audit"
	"github.com/tigerroll/ferry/pkg/ferry/engine/dispatch"
	"github.com/tigerroll/ferry/pkg/ferry/engine/transfer"
	"github.com/tigerroll/ferry/pkg/ferry/engine/worker"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/alert"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/archive"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

// DispatcherParams defines the dependencies of NewDispatcher.
type DispatcherParams struct {
	fx.In
	Config   *config.Config
	Caps     *registry.Capabilities
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Storage  storageAdapter.StorageConnectionResolver
	// Summary receives the per-job status lines. Defaults to os.Stderr.
	Summary io.Writer `name:"summaryWriter" optional:"true"`
}

// NewDispatcher creates a dispatcher launching the configured worker command.
func NewDispatcher(p DispatcherParams) *dispatch.Dispatcher {
	cfg := p.Config.Ferry.Dispatch
	summary := p.Summary
	if summary == nil {
		summary = os.Stderr
	}
	opts := []dispatch.Option{
		dispatch.WithCapabilities(p.Caps),
		dispatch.WithTelemetry(p.Recorder, p.Tracer),
		dispatch.WithSummaryWriter(summary),
	}
	if cfg.ArchiveLogs {
		opts = append(opts, dispatch.WithArchiver(archive.NewStorageArchiver(p.Storage, cfg.ArchiveStorageRef, cfg.ArchiveBucket)))
	}
	return dispatch.NewDispatcher(cfg, dispatch.NewProcessLauncher(cfg.WorkerCommand, cfg.WorkerArgs...), opts...)
}

// ReconcilerParams defines the dependencies of NewReconciler.
type ReconcilerParams struct {
	fx.In
	Caps     *registry.Capabilities
	Store    ports.StateStore
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewReconciler creates a reconciler over the built-in source and target probes.
func NewReconciler(p ReconcilerParams) (*audit.Reconciler, error) {
	source, err := p.Caps.Probes.Resolve(pipeline.SourceCount)
	if err != nil {
		return nil, err
	}
	target, err := p.Caps.Probes.Resolve(pipeline.TargetCount)
	if err != nil {
		return nil, err
	}
	return audit.NewReconciler(
		audit.Probe{Name: pipeline.SourceCount, Probe: source},
		audit.Probe{Name: pipeline.TargetCount, Probe: target},
		p.Store, p.Recorder, p.Tracer,
	), nil
}

// NewReportWriter creates the parquet audit report writer.
func NewReportWriter(resolver storageAdapter.StorageConnectionResolver, cfg *config.Config) *report.ParquetReportWriter {
	return report.NewParquetReportWriter(resolver, cfg.Ferry.Audit)
}

// OrchestratorParams defines the dependencies of NewOrchestrator.
type OrchestratorParams struct {
	fx.In
	Store    ports.StateStore
	Alerts   ports.AlertChannel
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewOrchestrator creates the transfer orchestrator run by workers.
func NewOrchestrator(p OrchestratorParams) transfer.Runner {
	return transfer.NewOrchestrator(p.Store, p.Alerts, p.Recorder, p.Tracer)
}

// DispatchModule provides *dispatch.Dispatcher.
var DispatchModule = fx.Options(
	fx.Provide(NewDispatcher),
)

// AuditModule provides *audit.Reconciler and *report.ParquetReportWriter.
var AuditModule = fx.Options(
	fx.Provide(NewReconciler, NewReportWriter),
)

// WorkerModule provides *worker.Runtime.
var WorkerModule = fx.Options(
	alert.Module,
	fx.Provide(NewOrchestrator, worker.NewRuntime),
)

// LoadRecords reads the records of a batch either from a JSON array file or
// from the pending rows of pipelineID. Exactly one of path and pipelineID
// must be set.
func LoadRecords(ctx context.Context, path, pipelineID string, limit int, pending ports.PendingRecordSource) ([]model.Record, error) {
	switch {
	case path != "" && pipelineID != "":
		return nil, exception.NewFerryError(exception.ValidationError, "app", "--records and --pipeline are mutually exclusive", nil)
	case path != "":
		var records []model.Record
		if err := serialization.ReadJSONFile(path, &records); err != nil {
			return nil, err
		}
		return records, nil
	case pipelineID != "":
		return pending.ListPending(ctx, pipelineID, limit)
	default:
		return nil, exception.NewFerryError(exception.ValidationError, "app", "either --records or --pipeline is required", nil)
	}
}

// LoadJobConfig reads the job config map from path. An empty path yields an
// empty map. The system timezone fills in a missing "timezone" key.
func LoadJobConfig(path string, cfg *config.Config) (map[string]interface{}, error) {
	jobCfg := map[string]interface{}{}
	if path != "" {
		if err := serialization.ReadJSONFile(path, &jobCfg); err != nil {
			return nil, err
		}
	}
	if _, ok := jobCfg["timezone"]; !ok && cfg.Ferry.System.Timezone != "" {
		jobCfg["timezone"] = cfg.Ferry.System.Timezone
	}
	return jobCfg, nil
}
