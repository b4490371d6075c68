// Package cleaning composes several cleanup capabilities into one. Every step
// runs even when an earlier one fails, and all failures are reported.
package cleaning

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const (
	module = "cleaning"
	tag    = "CLEANING_ORCHESTRATOR"
)

// Step is a named cleanup capability.
type Step struct {
	Name string
	Fn   ports.Capability
}

// Chain returns a capability that runs every step in order. When any step
// fails it returns a CleanupError whose message joins the failures with "; ".
func Chain(steps ...Step) ports.Capability {
	return func(ctx context.Context, cfg map[string]interface{}, record model.Record) error {
		failures := runSteps(ctx, cfg, record, steps)
		if len(failures) == 0 {
			return nil
		}
		return exception.NewFerryError(exception.CleanupError, module, strings.Join(failures, "; "), nil)
	}
}

// Run executes the steps and reports one error entry per failing step.
func Run(ctx context.Context, cfg map[string]interface{}, record model.Record, steps ...Step) model.ResultEnvelope {
	errs := model.NewErrorCollection()
	for _, msg := range runSteps(ctx, cfg, record, steps) {
		errs.Add(msg)
	}
	return model.NewResultEnvelope(errs)
}

func runSteps(ctx context.Context, cfg map[string]interface{}, record model.Record, steps []Step) []string {
	ctx, scope := logger.WithScope(ctx, module)
	scope.Info("[RUNNING] Starting cleaning process...", tag, nil)

	var failures []string
	for _, step := range steps {
		if err := call(ctx, step, cfg, record); err != nil {
			msg := fmt.Sprintf("Cleaning function %s failed: %s", step.Name, exception.ExtractErrorMessage(err))
			failures = append(failures, msg)
			scope.Error("[FAILURE] "+msg, tag, nil)
		}
	}

	scope.Info("[COMPLETED] Cleaning process finished.", tag, map[string]interface{}{"failed": len(failures)})
	return failures
}

func call(ctx context.Context, step Step, cfg map[string]interface{}, record model.Record) (err error) {
	if step.Fn == nil {
		return exception.NewFerryError(exception.ValidationError, module, "cleanup function is not set", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Fn(ctx, cfg, record)
}
