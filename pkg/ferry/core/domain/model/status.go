package model

// PhaseStatus is the status of one phase of a record (transfer, cleanup, ...).
type PhaseStatus string

const (
	PhaseRunning   PhaseStatus = "RUNNING"
	PhaseCompleted PhaseStatus = "COMPLETED"
	PhaseFailed    PhaseStatus = "FAILED"
)

// AuditStatus is the value persisted in a record's audit_status field.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailure AuditStatus = "FAILURE"
	AuditError   AuditStatus = "ERROR"
)

// AuditVerdict is the outcome of a reconciliation.
type AuditVerdict string

const (
	VerdictMatch    AuditVerdict = "MATCH"
	VerdictMismatch AuditVerdict = "MISMATCH"
	VerdictError    AuditVerdict = "ERROR"
)

// AuditStatus maps a verdict to the status stored on the record.
func (v AuditVerdict) AuditStatus() AuditStatus {
	switch v {
	case VerdictMatch:
		return AuditSuccess
	case VerdictMismatch:
		return AuditFailure
	default:
		return AuditError
	}
}

// JobStatus is the dispatcher's classification of one job.
type JobStatus string

const (
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
	JobCrashed JobStatus = "CRASHED"
)

// PipelineStatus summarizes a record's progress in the drive table.
type PipelineStatus string

const (
	PipelinePending   PipelineStatus = "PENDING"
	PipelineRunning   PipelineStatus = "RUNNING"
	PipelineCompleted PipelineStatus = "COMPLETED"
	PipelineFailed    PipelineStatus = "FAILED"
)
