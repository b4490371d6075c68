package model

import (
	"encoding/json"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

const (
	envelopeContinueKey = "continue_dag_run"
	envelopeErrorKey    = "error"
)

// ResultEnvelope is the uniform outcome contract of every core operation.
// On the wire it is a flat JSON object:
//
//	{"continue_dag_run": bool, "error": {"error01": "..."} | null, ...extra}
type ResultEnvelope struct {
	Continue bool
	Error    *ErrorCollection
	// Extra holds caller specific fields flattened next to the standard ones.
	Extra map[string]interface{}
}

// NewResultEnvelope builds an envelope whose continue flag is true iff errs is empty.
func NewResultEnvelope(errs *ErrorCollection) ResultEnvelope {
	return ResultEnvelope{Continue: !errs.HasErrors(), Error: errs.OrNil()}
}

// FailureEnvelope builds a non-continuing envelope with a single error entry.
func FailureEnvelope(message string) ResultEnvelope {
	errs := NewErrorCollection()
	errs.Add(message)
	return ResultEnvelope{Continue: false, Error: errs}
}

// WithExtra returns a copy of e with key set in Extra.
func (e ResultEnvelope) WithExtra(key string, value interface{}) ResultEnvelope {
	extra := make(map[string]interface{}, len(e.Extra)+1)
	for k, v := range e.Extra {
		extra[k] = v
	}
	extra[key] = value
	e.Extra = extra
	return e
}

// MarshalJSON implements json.Marshaler.
func (e ResultEnvelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extra)+2)
	for k, v := range e.Extra {
		out[k] = v
	}
	out[envelopeContinueKey] = e.Continue
	if e.Error.HasErrors() {
		out[envelopeErrorKey] = e.Error
	} else {
		out[envelopeErrorKey] = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. An envelope without a boolean
// continue_dag_run field is malformed.
func (e *ResultEnvelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return exception.NewFerryError(exception.ParseError, "model", "result envelope is not a JSON object", err)
	}
	if raw == nil {
		return exception.NewFerryError(exception.ParseError, "model", "result envelope is null", nil)
	}
	rawContinue, ok := raw[envelopeContinueKey]
	if !ok {
		return exception.NewFerryError(exception.ParseError, "model", "result envelope has no continue_dag_run field", nil)
	}
	var cont bool
	if err := json.Unmarshal(rawContinue, &cont); err != nil {
		return exception.NewFerryError(exception.ParseError, "model", "continue_dag_run is not a boolean", err)
	}

	var errs *ErrorCollection
	if rawErr, ok := raw[envelopeErrorKey]; ok {
		decoded := NewErrorCollection()
		if err := decoded.UnmarshalJSON(rawErr); err != nil {
			return err
		}
		errs = decoded.OrNil()
	}

	extra := make(map[string]interface{})
	for k, v := range raw {
		if k == envelopeContinueKey || k == envelopeErrorKey {
			continue
		}
		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return exception.NewFerryErrorf(exception.ParseError, "model", "result envelope field %q is invalid", k, err)
		}
		extra[k] = value
	}
	if len(extra) == 0 {
		extra = nil
	}

	e.Continue = cont
	e.Error = errs
	e.Extra = extra
	return nil
}
