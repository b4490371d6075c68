// Package serialization provides the JSON helpers used for job messages,
// result envelopes and persisted record payloads.
package serialization

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const module = "serialization"

// MaskedValue replaces masked values in log output.
const MaskedValue = "********"

// MaskMap returns a shallow copy of values where every key listed in maskedKeys is masked.
func MaskMap(values map[string]interface{}, maskedKeys []string) map[string]interface{} {
	if len(values) == 0 {
		return map[string]interface{}{}
	}
	masked := make(map[string]interface{}, len(values))
	for k, v := range values {
		masked[k] = v
	}
	for _, key := range maskedKeys {
		if _, ok := masked[key]; ok {
			masked[key] = MaskedValue
		}
	}
	return masked
}

// MarshalMap serializes a map into JSON. A nil map becomes "{}".
func MarshalMap(values map[string]interface{}) ([]byte, error) {
	if values == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, exception.NewFerryError(exception.ParseError, module, "failed to serialize map", err)
	}
	return data, nil
}

// UnmarshalMap deserializes JSON into a fresh map. Numbers are kept as json.Number
// so integer identifiers survive the round trip unchanged.
func UnmarshalMap(data []byte) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if len(bytes.TrimSpace(data)) == 0 || string(data) == "null" {
		return values, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, exception.NewFerryError(exception.ParseError, module, "failed to deserialize map", err)
	}
	return values, nil
}

// Decode reads a single JSON value from r into v, keeping numbers as json.Number.
func Decode(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return exception.NewFerryError(exception.ParseError, module, "failed to decode JSON payload", err)
	}
	return nil
}

// WriteJSONFile writes v as JSON to path. The content goes to a temporary file
// in the same directory first and is renamed into place, so readers never
// observe a partially written file.
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return exception.NewFerryError(exception.ParseError, module, "failed to serialize "+filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	logger.Debugf("Wrote %d bytes to %s", len(data), path)
	return nil
}

// ReadJSONFile decodes the JSON file at path into v.
// A missing file is returned as the underlying os error; malformed content is a ParseError.
func ReadJSONFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, v)
}
