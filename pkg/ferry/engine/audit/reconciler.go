// Package audit reconciles a transferred record by comparing the row counts
// reported by a source probe and a target probe.
package audit

import (
	"context"
	"fmt"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const (
	module   = "audit"
	tag      = "AUDIT"
	countTag = "GET_COUNT"
)

// Probe is a count probe together with the name used in error messages.
type Probe struct {
	Name  string
	Probe ports.CountProbe
}

// Reconciler compares source and target counts of records.
type Reconciler struct {
	source   Probe
	target   Probe
	store    ports.StateStore
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewReconciler creates a Reconciler. recorder and tracer may be nil.
func NewReconciler(source, target Probe, store ports.StateStore, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Reconciler {
	return &Reconciler{
		source:   source,
		target:   target,
		store:    store,
		recorder: metrics.RecorderOrNoOp(recorder),
		tracer:   metrics.TracerOrNoOp(tracer),
	}
}

// GetCount runs probe and wraps the outcome. Errors and panics never escape;
// they become a non-continuing envelope with a zero count.
func GetCount(ctx context.Context, name string, probe ports.CountProbe, cfg map[string]interface{}, record model.Record) model.CountEnvelope {
	count, err := safeProbe(ctx, probe, cfg, record)
	if err != nil {
		msg := fmt.Sprintf("Count function %s failed: %s", name, exception.ExtractErrorMessage(err))
		logger.FromContext(ctx).Error(msg, countTag, nil)
		return model.CountEnvelope{Count: 0, Continue: false, Error: msg}
	}
	return model.CountEnvelope{Count: count, Continue: true}
}

func safeProbe(ctx context.Context, probe ports.CountProbe, cfg map[string]interface{}, record model.Record) (count int64, err error) {
	if probe == nil {
		return 0, exception.NewFerryError(exception.ValidationError, module, "count probe is not set", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return probe.Probe(ctx, cfg, record)
}

// Reconcile runs both probes, derives the verdict, stores it in the record's
// audit_status and persists the record. Both probes always run.
func (r *Reconciler) Reconcile(ctx context.Context, cfg map[string]interface{}, record model.Record) model.AuditResult {
	ctx, scope := logger.WithScope(ctx, module)
	scope = scope.WithDetails(map[string]interface{}{"record_id": record.ID()})
	ctx = logger.NewContext(ctx, scope)
	ctx, endSpan := r.tracer.StartSpan(ctx, "audit.reconcile", map[string]interface{}{"record_id": record.ID()})
	defer endSpan()

	scope.Info("[RUNNING] Starting audit process...", tag, nil)
	errs := model.NewErrorCollection()

	src := GetCount(ctx, r.source.Name, r.source.Probe, cfg, record)
	if !src.Continue {
		errs.Add("Source count error: " + src.Error)
	}
	trg := GetCount(ctx, r.target.Name, r.target.Probe, cfg, record)
	if !trg.Continue {
		errs.Add("Target count error: " + trg.Error)
	}

	var verdict model.AuditVerdict
	switch {
	case errs.HasErrors():
		verdict = model.VerdictError
	case src.Count == trg.Count:
		verdict = model.VerdictMatch
	default:
		verdict = model.VerdictMismatch
		errs.Addf("Counts do not match for record %s. Source: %d, Target: %d", record.ID(), src.Count, trg.Count)
	}
	record[model.FieldAuditStatus] = string(verdict.AuditStatus())

	if err := r.store.Persist(ctx, record); err != nil {
		scope.Error("Failed to persist audit status: "+err.Error(), tag, nil)
		r.tracer.RecordError(ctx, module, err)
	}
	r.recorder.RecordAudit(ctx, string(verdict))

	result := model.AuditResult{
		RecordID:    record.ID(),
		SourceCount: src.Count,
		TargetCount: trg.Count,
		Verdict:     verdict,
		Continue:    verdict == model.VerdictMatch,
		Error:       errs.OrNil(),
	}
	if result.Continue {
		scope.Info("[COMPLETED] Audit process finished.", tag, map[string]interface{}{"source_count": src.Count, "target_count": trg.Count})
	} else {
		scope.Warn(fmt.Sprintf("[COMPLETED] Audit process finished with %s.", verdict), tag, map[string]interface{}{"source_count": src.Count, "target_count": trg.Count})
	}
	return result
}

// ReconcileAll reconciles records in order. A failed record does not stop the rest.
func (r *Reconciler) ReconcileAll(ctx context.Context, cfg map[string]interface{}, records []model.Record) []model.AuditResult {
	results := make([]model.AuditResult, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			logger.FromContext(ctx).Warn("Audit cancelled: "+err.Error(), tag, map[string]interface{}{"remaining": len(records) - len(results)})
			break
		}
		results = append(results, r.Reconcile(ctx, cfg, record))
	}
	return results
}
