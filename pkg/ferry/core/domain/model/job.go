package model

import (
	"strings"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

// JobMessage is the typed message a dispatcher writes on a worker's standard
// input. It carries everything the worker needs to process exactly one record.
type JobMessage struct {
	Config       map[string]interface{} `json:"config"`
	Record       Record                 `json:"record"`
	TransferFunc string                 `json:"transfer_func"`
	CleanupFunc  string                 `json:"cleanup_func"`
	ProcessType  string                 `json:"process_type"`
}

// Validate checks that every required field is present.
func (m JobMessage) Validate() error {
	var missing []string
	if m.Record == nil {
		missing = append(missing, "record")
	}
	if m.TransferFunc == "" {
		missing = append(missing, "transfer_func")
	}
	if m.CleanupFunc == "" {
		missing = append(missing, "cleanup_func")
	}
	if m.ProcessType == "" {
		missing = append(missing, "process_type")
	}
	if len(missing) > 0 {
		return exception.NewFerryErrorf(exception.ValidationError, "model", "job message is missing %s", strings.Join(missing, ", "))
	}
	return nil
}
