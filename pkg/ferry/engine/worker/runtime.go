// Package worker is the entry point of a worker process: it reads one job
// message, runs the transfer orchestrator and writes the result envelope.
package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
	"github.com/tigerroll/ferry/pkg/ferry/engine/transfer"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

const (
	module = "worker"
	tag    = "WORKER"
)

// Process exit codes.
const (
	// ExitOK means a result envelope was written, whatever its outcome.
	ExitOK = 0
	// ExitFailure means the worker hit a fatal fault. A failure envelope may
	// or may not have been written.
	ExitFailure = 1
)

// FailurePrefix starts the single error entry of a failure envelope.
const FailurePrefix = "Critical Worker Failure: "

// Runtime runs one job per process.
type Runtime struct {
	caps   *registry.Capabilities
	runner transfer.Runner
	newID  func() string
}

// NewRuntime creates a Runtime resolving capability keys through caps.
func NewRuntime(caps *registry.Capabilities, runner transfer.Runner) *Runtime {
	return &Runtime{caps: caps, runner: runner, newID: uuid.NewString}
}

// Run decodes a JobMessage from in, processes it and writes the envelope to
// resultPath. It returns the process exit code.
func (rt *Runtime) Run(ctx context.Context, in io.Reader, resultPath string) (code int) {
	recordID := "unknown"
	defer func() {
		if r := recover(); r != nil {
			code = Fail(ctx, resultPath, recordID, fmt.Errorf("panic: %v", r))
		}
	}()

	var msg model.JobMessage
	if err := serialization.Decode(in, &msg); err != nil {
		return Fail(ctx, resultPath, recordID, err)
	}
	if id := msg.Record.ID(); id != "" {
		recordID = id
	}
	if err := msg.Validate(); err != nil {
		return Fail(ctx, resultPath, recordID, err)
	}

	transferFn, err := rt.caps.Functions.Resolve(msg.TransferFunc)
	if err != nil {
		return Fail(ctx, resultPath, recordID, err)
	}
	cleanupFn, err := rt.caps.Functions.Resolve(msg.CleanupFunc)
	if err != nil {
		return Fail(ctx, resultPath, recordID, err)
	}

	scope := logger.NewScope("worker_" + recordID).WithCorrelationID(rt.newID())
	ctx = logger.NewContext(ctx, scope)
	scope.Info(fmt.Sprintf("--- Worker Started for record: %s ---", recordID), tag, map[string]interface{}{"process_type": msg.ProcessType})

	env := rt.runner.Run(ctx, msg.Config, msg.Record, transferFn, cleanupFn, msg.ProcessType)

	if err := serialization.WriteJSONFile(resultPath, env); err != nil {
		return Fail(ctx, resultPath, recordID, err)
	}
	scope.Info(fmt.Sprintf("--- Worker Finished for record: %s ---", recordID), tag, map[string]interface{}{"continue": env.Continue})
	return ExitOK
}

// Fail logs err, makes a best-effort attempt to write a failure envelope to
// resultPath and returns ExitFailure.
func Fail(ctx context.Context, resultPath, recordID string, err error) int {
	msg := exception.ExtractErrorMessage(err)
	logger.FromContext(ctx).Critical(fmt.Sprintf("CRITICAL WORKER FAILURE (Record: %s): %s", recordID, msg), tag, nil)
	if resultPath == "" {
		return ExitFailure
	}
	if werr := serialization.WriteJSONFile(resultPath, model.FailureEnvelope(FailurePrefix+msg)); werr != nil {
		logger.FromContext(ctx).Error("Failed to write failure envelope: "+werr.Error(), tag, nil)
	}
	return ExitFailure
}
