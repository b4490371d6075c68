// Package dispatch fans a batch of records out to one worker process each,
// waits for all of them and aggregates their result envelopes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

const (
	module = "dispatch"
	tag    = "DISPATCHER"
)

// Artifact names inside a job directory.
const (
	ResultFile = "result.json"
	StdoutFile = "stdout.log"
	StderrFile = "stderr.log"
)

// JobReport is the classified outcome of one job.
type JobReport struct {
	ID       string                `json:"id"`
	RecordID string                `json:"record_id"`
	Status   model.JobStatus       `json:"status"`
	ExitCode int                   `json:"exit_code"`
	Reason   string                `json:"reason,omitempty"`
	Duration string                `json:"duration"`
	Envelope *model.ResultEnvelope `json:"result,omitempty"`
}

// Result is the aggregate outcome of a batch.
type Result struct {
	BatchID   string
	Continue  bool
	Jobs      []JobReport
	Succeeded int
	Failed    int
	Crashed   int
	errs      *multierror.Error
}

// Err returns every crash and launch fault of the batch, or nil.
func (r *Result) Err() error {
	return r.errs.ErrorOrNil()
}

// Envelope renders the result in the envelope format consumed by schedulers.
func (r *Result) Envelope() model.ResultEnvelope {
	return model.ResultEnvelope{Continue: r.Continue}.
		WithExtra("batch_id", r.BatchID).
		WithExtra("jobs", r.Jobs).
		WithExtra("total_success", r.Succeeded).
		WithExtra("total_failed", r.Failed).
		WithExtra("total_crashed", r.Crashed)
}

// Dispatcher runs batches of jobs.
type Dispatcher struct {
	cfg      config.DispatchConfig
	launcher Launcher
	caps     *registry.Capabilities
	archiver ports.LogArchiver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	summary  io.Writer
	newID    func() string
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithCapabilities makes Dispatch reject unknown capability keys before
// launching anything.
func WithCapabilities(caps *registry.Capabilities) Option {
	return func(d *Dispatcher) { d.caps = caps }
}

// WithArchiver uploads job logs before the working area is removed.
func WithArchiver(a ports.LogArchiver) Option {
	return func(d *Dispatcher) { d.archiver = a }
}

// WithSummaryWriter also prints the per-job status lines and the tally to w.
func WithSummaryWriter(w io.Writer) Option {
	return func(d *Dispatcher) { d.summary = w }
}

// WithTelemetry sets the metric recorder and tracer.
func WithTelemetry(recorder metrics.MetricRecorder, tracer metrics.Tracer) Option {
	return func(d *Dispatcher) {
		d.recorder = metrics.RecorderOrNoOp(recorder)
		d.tracer = metrics.TracerOrNoOp(tracer)
	}
}

// WithIDGenerator replaces the batch id generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg config.DispatchConfig, launcher Launcher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		launcher: launcher,
		recorder: metrics.NoOpMetricRecorder{},
		tracer:   metrics.NoOpTracer{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type outcome struct {
	exitCode int
	err      error
	started  time.Time
	ended    time.Time
	ctxErr   error
}

// Dispatch runs one worker per record and waits for all of them. Jobs are
// launched in input order, at most max_concurrency at a time, and reported
// in the same order. The working area is removed before Dispatch returns.
// An error is returned only when the batch could not be started at all.
func (d *Dispatcher) Dispatch(ctx context.Context, jobCfg map[string]interface{}, records []model.Record, transferRef, cleanupRef, processType string) (*Result, error) {
	ctx, scope := logger.WithScope(ctx, module)
	ctx, endSpan := d.tracer.StartSpan(ctx, "dispatch."+processType, map[string]interface{}{"records": len(records)})
	defer endSpan()

	template := model.JobMessage{Config: jobCfg, Record: model.Record{}, TransferFunc: transferRef, CleanupFunc: cleanupRef, ProcessType: processType}
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if d.caps != nil {
		if err := d.caps.CheckFunctions(transferRef, cleanupRef); err != nil {
			return nil, err
		}
	}

	batchID := d.newID()
	scope = scope.WithCorrelationID(batchID)
	ctx = logger.NewContext(ctx, scope)

	batchDir := filepath.Join(d.workDir(), batchID)
	defer func() {
		if rmErr := os.RemoveAll(batchDir); rmErr != nil {
			scope.Error("Failed to remove working area: "+rmErr.Error(), tag, map[string]interface{}{"dir": batchDir})
			return
		}
		scope.Info("Cleaned up temporary directory: "+batchDir, tag, nil)
	}()

	jobs, err := setupJobs(batchDir, records, template)
	if err != nil {
		return nil, exception.NewFerryError(exception.ValidationError, module, "failed to create working area", err)
	}

	start := time.Now()
	d.recorder.RecordDispatchStart(ctx, processType, len(jobs))
	scope.Info(fmt.Sprintf("--- Launching %d parallel jobs ---", len(jobs)), tag, map[string]interface{}{"max_concurrency": d.cfg.MaxConcurrency})

	outcomes := d.runAll(ctx, scope, jobs)

	result := &Result{BatchID: batchID}
	for i, job := range jobs {
		report := d.classify(job, outcomes[i])
		switch report.Status {
		case model.JobSuccess:
			result.Succeeded++
		case model.JobFailed:
			result.Failed++
		default:
			result.Crashed++
			result.errs = multierror.Append(result.errs,
				exception.NewFerryErrorf(exception.CrashError, module, "%s (record %s): %s", job.ID, job.RecordID, report.Reason))
		}
		d.recorder.RecordJobOutcome(ctx, processType, string(report.Status), outcomes[i].ended.Sub(outcomes[i].started))
		d.printf(scope, "%s %s (%s)", job.ID, report.Status, job.RecordID)
		result.Jobs = append(result.Jobs, report)
	}
	d.printf(scope, "Total Success: %d, Total Failed: %d, Total Crashed: %d", result.Succeeded, result.Failed, result.Crashed)

	result.Continue = Aggregate(d.cfg.AggregationPolicy, d.cfg.SuccessThreshold, result.Succeeded, len(jobs))
	if result.errs != nil {
		scope.Warn("Batch finished with crashed jobs: "+result.errs.Error(), tag, nil)
	}

	d.archive(ctx, scope, batchID, jobs)
	d.recorder.RecordDispatchEnd(ctx, processType, result.Continue, time.Since(start))
	return result, nil
}

func (d *Dispatcher) workDir() string {
	if d.cfg.WorkDir != "" {
		return d.cfg.WorkDir
	}
	return filepath.Join(os.TempDir(), "ferry_jobs")
}

func setupJobs(batchDir string, records []model.Record, template model.JobMessage) ([]JobSpec, error) {
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return nil, err
	}
	jobs := make([]JobSpec, 0, len(records))
	for i, record := range records {
		id := fmt.Sprintf("job_%03d", i+1)
		dir := filepath.Join(batchDir, id)
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, err
		}
		recordID := record.ID()
		if recordID == "" {
			recordID = "unknown"
		}
		msg := template
		msg.Record = record
		jobs = append(jobs, JobSpec{
			ID:         id,
			RecordID:   recordID,
			Dir:        dir,
			ResultPath: filepath.Join(dir, ResultFile),
			StdoutPath: filepath.Join(dir, StdoutFile),
			StderrPath: filepath.Join(dir, StderrFile),
			Message:    msg,
		})
	}
	return jobs, nil
}

// runAll launches every job and joins them in launch order.
func (d *Dispatcher) runAll(ctx context.Context, scope *logger.Scope, jobs []JobSpec) []outcome {
	var sem chan struct{}
	if d.cfg.MaxConcurrency > 0 {
		sem = make(chan struct{}, d.cfg.MaxConcurrency)
	}
	var limiter *rate.Limiter
	if d.cfg.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.cfg.LaunchRate), 1)
	}

	outcomes := make([]outcome, len(jobs))
	done := make([]chan struct{}, len(jobs))
	for i := range jobs {
		done[i] = make(chan struct{})
	}

	for i, job := range jobs {
		if err := d.acquire(ctx, sem, limiter); err != nil {
			outcomes[i] = outcome{exitCode: -1, err: err, ctxErr: err, started: time.Now(), ended: time.Now()}
			close(done[i])
			continue
		}

		jobCtx, cancel := d.jobContext(ctx)
		started := time.Now()
		proc, err := d.launcher.Launch(jobCtx, job)
		if err != nil {
			cancel()
			release(sem)
			scope.Error(fmt.Sprintf("Failed to launch %s: %s", job.ID, exception.ExtractErrorMessage(err)), tag, nil)
			outcomes[i] = outcome{exitCode: -1, err: err, started: started, ended: time.Now()}
			close(done[i])
			continue
		}
		scope.Info(fmt.Sprintf("Launched %s (Record: %s, PID: %d)", job.ID, job.RecordID, proc.PID()), tag, nil)

		go func(i int, proc Process) {
			defer close(done[i])
			defer release(sem)
			defer cancel()
			code, werr := proc.Wait()
			outcomes[i] = outcome{exitCode: code, err: werr, started: started, ended: time.Now(), ctxErr: jobCtx.Err()}
		}(i, proc)
	}

	scope.Info("--- Waiting for all jobs to finish... ---", tag, nil)
	for i := range jobs {
		<-done[i]
	}
	scope.Info("--- All jobs completed ---", tag, nil)
	return outcomes
}

func (d *Dispatcher) acquire(ctx context.Context, sem chan struct{}, limiter *rate.Limiter) error {
	if sem != nil {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			release(sem)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		release(sem)
		return err
	}
	return nil
}

func release(sem chan struct{}) {
	if sem != nil {
		<-sem
	}
}

func (d *Dispatcher) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.JobTimeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(d.cfg.JobTimeoutSeconds)*time.Second)
	}
	return context.WithCancel(ctx)
}

// classify turns a job's outcome into a report. A well-formed envelope is a
// reported result; a nonzero exit code only turns it into a failure. Without
// an envelope the job crashed.
func (d *Dispatcher) classify(job JobSpec, o outcome) JobReport {
	report := JobReport{
		ID:       job.ID,
		RecordID: job.RecordID,
		ExitCode: o.exitCode,
		Status:   model.JobCrashed,
		Duration: model.FormatElapsed(o.started, o.ended),
	}

	var env model.ResultEnvelope
	readErr := serialization.ReadJSONFile(job.ResultPath, &env)
	if readErr == nil {
		report.Envelope = &env
	}

	switch {
	case errors.Is(o.ctxErr, context.DeadlineExceeded):
		report.Reason = fmt.Sprintf("worker timed out after %ds", d.cfg.JobTimeoutSeconds)
	case o.ctxErr != nil:
		report.Reason = "dispatch cancelled: " + o.ctxErr.Error()
	case o.err != nil && o.exitCode < 0:
		report.Reason = exception.ExtractErrorMessage(o.err)
	case o.exitCode != 0:
		report.Reason = fmt.Sprintf("worker exited with code %d", o.exitCode)
		if report.Envelope != nil {
			report.Status = model.JobFailed
			if report.Envelope.Error.HasErrors() {
				report.Reason += ": " + report.Envelope.Error.Messages()[0]
			}
		}
	case os.IsNotExist(readErr):
		report.Reason = "result file is missing"
	case readErr != nil:
		report.Reason = "result file is malformed: " + exception.ExtractErrorMessage(readErr)
	case env.Continue:
		report.Status = model.JobSuccess
	default:
		report.Status = model.JobFailed
	}
	return report
}

func (d *Dispatcher) archive(ctx context.Context, scope *logger.Scope, batchID string, jobs []JobSpec) {
	if d.archiver == nil {
		return
	}
	var errs *multierror.Error
	for _, job := range jobs {
		if err := d.archiver.ArchiveJob(ctx, batchID, job.ID, job.StdoutPath, job.StderrPath); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		scope.Error("Failed to archive job logs: "+err.Error(), tag, nil)
	}
}

func (d *Dispatcher) printf(scope *logger.Scope, format string, a ...interface{}) {
	line := fmt.Sprintf(format, a...)
	scope.Info(line, tag, nil)
	if d.summary != nil {
		fmt.Fprintln(d.summary, line)
	}
}
