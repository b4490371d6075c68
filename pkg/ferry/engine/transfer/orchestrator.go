// Package transfer runs one record through the transfer state machine:
// INIT, RUNNING, then COMPLETED or CLEANUP and FAILED. Every phase
// transition is persisted and a failed record raises exactly one alert.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const module = "transfer"

// Entry prefixes of the error collection.
const (
	PrefixCritical = "Critical Error: "
	PrefixTransfer = "Transfer Error: "
	PrefixCleanup  = "Cleanup Error: "
)

// Runner is the operation the worker runtime invokes for a record.
type Runner interface {
	Run(ctx context.Context, cfg map[string]interface{}, record model.Record, transfer, cleanup ports.Capability, processType string) model.ResultEnvelope
}

// Orchestrator implements Runner.
type Orchestrator struct {
	store    ports.StateStore
	alerts   ports.AlertChannel
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

var _ Runner = (*Orchestrator)(nil)

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator. recorder and tracer may be nil.
func NewOrchestrator(store ports.StateStore, alerts ports.AlertChannel, recorder metrics.MetricRecorder, tracer metrics.Tracer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		alerts:   alerts,
		recorder: metrics.RecorderOrNoOp(recorder),
		tracer:   metrics.TracerOrNoOp(tracer),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tag returns the log tag of a process type.
func Tag(processType string) string {
	return "GENERIC_ORCHESTRATOR_" + strings.ToUpper(processType)
}

// Run executes transfer for record and, if it fails, cleanup. The record is
// updated in place with the <processType>_* fields. Faults during INIT skip
// both capabilities and are reported as a single critical entry.
func (o *Orchestrator) Run(ctx context.Context, cfg map[string]interface{}, record model.Record, transfer, cleanup ports.Capability, processType string) model.ResultEnvelope {
	tag := Tag(processType)
	ctx, scope := logger.WithScope(ctx, "orchestrator")
	scope = scope.WithDetails(map[string]interface{}{"record_id": record.ID()})
	ctx = logger.NewContext(ctx, scope)

	ctx, endSpan := o.tracer.StartSpan(ctx, "transfer."+processType, map[string]interface{}{
		"record_id":    record.ID(),
		"process_type": processType,
	})
	defer endSpan()

	errs := model.NewErrorCollection()
	key := func(suffix string) string { return model.PhaseKey(processType, suffix) }

	loc, err := o.resolveLocation(cfg, scope, tag)
	start := o.now().In(loc)
	initFailed := false
	if err != nil {
		initFailed = true
		o.critical(ctx, scope, tag, errs, err)
	} else {
		scope.Info(fmt.Sprintf("[STARTED] %s process started.", processType), tag, nil)
		record.Merge(map[string]interface{}{
			key(model.SuffixStatus):      string(model.PhaseRunning),
			key(model.SuffixStartedAt):   start.Format(time.RFC3339Nano),
			key(model.SuffixEndedAt):     nil,
			key(model.SuffixDurationStr): nil,
			key(model.SuffixError):       nil,
		})
		if err := o.store.Persist(ctx, record); err != nil {
			initFailed = true
			o.critical(ctx, scope, tag, errs, err)
		}
	}

	if !initFailed {
		if err := invoke(ctx, transfer, cfg, record); err != nil {
			msg := exception.ExtractErrorMessage(err)
			errs.Add(PrefixTransfer + msg)
			scope.Error("Transfer function failed: "+msg, tag, nil)
			o.tracer.RecordError(ctx, module, err)
			o.runCleanup(ctx, scope, tag, cleanup, cfg, record, errs)
		}
	}

	end := o.now().In(loc)
	elapsed := end.Sub(start)
	seconds := elapsed.Seconds()
	if !errs.HasErrors() {
		scope.Info(fmt.Sprintf("[COMPLETED] %s process successful.", processType), tag, nil)
		record.Merge(map[string]interface{}{
			key(model.SuffixStatus):      string(model.PhaseCompleted),
			key(model.SuffixEndedAt):     end.Format(time.RFC3339Nano),
			key(model.SuffixDurationStr): model.FormatDuration(&seconds),
		})
		o.persistFinal(ctx, scope, tag, record)
		o.recorder.RecordPhase(ctx, processType, string(model.PhaseCompleted), elapsed)
		return model.NewResultEnvelope(errs)
	}

	scope.Error(fmt.Sprintf("[FAILED] %s process failed.", processType), tag, errorDetails(errs))
	record.Merge(map[string]interface{}{
		key(model.SuffixStatus):      string(model.PhaseFailed),
		key(model.SuffixEndedAt):     end.Format(time.RFC3339Nano),
		key(model.SuffixDurationStr): model.FormatDuration(&seconds),
		key(model.SuffixError):       errs,
	})
	o.persistFinal(ctx, scope, tag, record)
	o.recorder.RecordPhase(ctx, processType, string(model.PhaseFailed), elapsed)

	if o.alerts != nil {
		if err := o.alerts.Notify(ctx, record, errs); err != nil {
			// Alert delivery problems never change the record's outcome.
			scope.Error("Alert sending failed: "+err.Error(), tag, nil)
			o.recorder.RecordAlertFailure(ctx, processType)
		}
	}
	return model.NewResultEnvelope(errs)
}

// resolveLocation reads the timezone from the job config. A missing or unknown
// zone falls back to UTC with a warning; an undecodable config is an error.
func (o *Orchestrator) resolveLocation(cfg map[string]interface{}, scope *logger.Scope, tag string) (*time.Location, error) {
	settings, err := config.DecodeJobSettings(cfg)
	if err != nil {
		return time.UTC, err
	}
	loc, ok := config.ResolveLocation(settings.Timezone)
	if !ok {
		scope.Warn(fmt.Sprintf("Timezone %q is missing or unknown, using UTC.", settings.Timezone), tag, nil)
	}
	return loc, nil
}

func (o *Orchestrator) critical(ctx context.Context, scope *logger.Scope, tag string, errs *model.ErrorCollection, err error) {
	msg := exception.ExtractErrorMessage(err)
	errs.Add(PrefixCritical + msg)
	scope.Critical("[CRITICAL] Non-recoverable error: "+msg, tag, nil)
	o.tracer.RecordError(ctx, module, err)
}

func (o *Orchestrator) runCleanup(ctx context.Context, scope *logger.Scope, tag string, cleanup ports.Capability, cfg map[string]interface{}, record model.Record, errs *model.ErrorCollection) {
	scope.Info("[CLEANUP] Starting cleanup step...", tag, nil)
	if err := invoke(ctx, cleanup, cfg, record); err != nil {
		msg := exception.ExtractErrorMessage(err)
		errs.Add(PrefixCleanup + msg)
		scope.Error("[CLEANUP FAILED]: "+msg, tag, nil)
		o.tracer.RecordError(ctx, module, err)
		return
	}
	scope.Info("[CLEANUP COMPLETED]", tag, nil)
}

func (o *Orchestrator) persistFinal(ctx context.Context, scope *logger.Scope, tag string, record model.Record) {
	if err := o.store.Persist(ctx, record); err != nil {
		scope.Error("Failed to persist final record state: "+err.Error(), tag, nil)
		o.tracer.RecordError(ctx, module, err)
	}
}

// invoke calls fn, converting a panic into an error.
func invoke(ctx context.Context, fn ports.Capability, cfg map[string]interface{}, record model.Record) (err error) {
	if fn == nil {
		return exception.NewFerryError(exception.ValidationError, module, "capability is not set", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, cfg, record)
}

func errorDetails(errs *model.ErrorCollection) map[string]interface{} {
	details := make(map[string]interface{}, errs.Len())
	for k, v := range errs.Map() {
		details[k] = v
	}
	return details
}
