// Package model defines the domain types exchanged by the dispatcher, the
// worker runtime, the transfer orchestrator and the audit reconciler.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known record fields.
const (
	FieldID          = "id"
	FieldSourceTable = "source_table"
	FieldTargetTable = "target_table"
	FieldStageTable  = "stage_table"
	FieldPipelineID  = "pipeline_id"
	FieldAuditStatus = "audit_status"
)

// Suffixes of the per-phase fields written during processing.
const (
	SuffixStatus      = "status"
	SuffixStartedAt   = "started_at"
	SuffixEndedAt     = "ended_at"
	SuffixDurationStr = "duration_str"
	SuffixError       = "error"
)

// Record is the mutable descriptor of one unit of work. It is owned by a
// single execution context at a time and persisted at each phase transition.
type Record map[string]interface{}

// PhaseKey returns the field name "<phase>_<suffix>".
func PhaseKey(phase, suffix string) string {
	return phase + "_" + suffix
}

// ID returns the record id rendered as a string, or "" when absent.
func (r Record) ID() string {
	return r.String(FieldID)
}

// String returns the value at key rendered as a string, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge adds or overwrites the given values in place and returns the record.
func (r Record) Merge(values map[string]interface{}) Record {
	for k, v := range values {
		r[k] = v
	}
	return r
}

// PhaseStatus returns the status recorded for phase, or "".
func (r Record) PhaseStatus(phase string) PhaseStatus {
	return PhaseStatus(r.String(PhaseKey(phase, SuffixStatus)))
}

// PipelineStatus derives the drive table status from the phase status fields.
// A failed phase wins over a running one; a record with no phase yet is PENDING.
func (r Record) PipelineStatus() PipelineStatus {
	status := PipelinePending
	for k := range r {
		if k == FieldAuditStatus || !strings.HasSuffix(k, "_"+SuffixStatus) {
			continue
		}
		switch PhaseStatus(r.String(k)) {
		case PhaseFailed:
			return PipelineFailed
		case PhaseRunning:
			status = PipelineRunning
		case PhaseCompleted:
			if status == PipelinePending {
				status = PipelineCompleted
			}
		}
	}
	return status
}
