package model

// CountEnvelope is the uniform wrapper around a count probe result.
type CountEnvelope struct {
	Count    int64  `json:"count"`
	Continue bool   `json:"continue"`
	Error    string `json:"error,omitempty"`
}

// AuditResult is the outcome of reconciling one record.
type AuditResult struct {
	RecordID    string           `json:"record_id,omitempty"`
	SourceCount int64            `json:"source_count"`
	TargetCount int64            `json:"target_count"`
	Verdict     AuditVerdict     `json:"audit_result"`
	Continue    bool             `json:"continue"`
	Error       *ErrorCollection `json:"error"`
}
