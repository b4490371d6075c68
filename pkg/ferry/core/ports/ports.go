// Package ports declares the collaborators the engine depends on. The engine
// only sees these interfaces; implementations live in infrastructure.
package ports

import (
	"context"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
)

// StateStore persists the current state of a record.
type StateStore interface {
	Persist(ctx context.Context, record model.Record) error
}

// AlertChannel notifies operators about a failed record.
type AlertChannel interface {
	Notify(ctx context.Context, record model.Record, errs *model.ErrorCollection) error
}

// CountProbe counts the rows a record refers to on one side of a transfer.
type CountProbe interface {
	Probe(ctx context.Context, cfg map[string]interface{}, record model.Record) (int64, error)
}

// CountProbeFunc adapts a function to CountProbe.
type CountProbeFunc func(ctx context.Context, cfg map[string]interface{}, record model.Record) (int64, error)

// Probe implements CountProbe.
func (f CountProbeFunc) Probe(ctx context.Context, cfg map[string]interface{}, record model.Record) (int64, error) {
	return f(ctx, cfg, record)
}

// PendingRecordSource lists records that have not been processed yet.
type PendingRecordSource interface {
	ListPending(ctx context.Context, pipelineID string, limit int) ([]model.Record, error)
}

// Capability is a named unit of work (transfer or cleanup) applied to one record.
type Capability func(ctx context.Context, cfg map[string]interface{}, record model.Record) error

// LogArchiver keeps the log files of a finished job after its working area
// is removed.
type LogArchiver interface {
	ArchiveJob(ctx context.Context, batchID, jobID string, paths ...string) error
}
