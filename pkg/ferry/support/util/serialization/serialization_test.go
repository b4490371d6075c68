package serialization_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

func TestMaskMap(t *testing.T) {
	in := map[string]interface{}{"user": "etl", "password": "secret"}

	out := serialization.MaskMap(in, []string{"password", "api_key"})

	assert.Equal(t, serialization.MaskedValue, out["password"])
	assert.Equal(t, "etl", out["user"])
	assert.Equal(t, "secret", in["password"], "input must not be modified")
	assert.Empty(t, serialization.MaskMap(nil, []string{"password"}))
}

func TestUnmarshalMap_KeepsIntegers(t *testing.T) {
	values, err := serialization.UnmarshalMap([]byte(`{"id": 12345678901234, "name": "orders"}`))
	require.NoError(t, err)

	assert.Equal(t, json.Number("12345678901234"), values["id"])
	assert.Equal(t, "orders", values["name"])
}

func TestUnmarshalMap_EmptyAndInvalid(t *testing.T) {
	values, err := serialization.UnmarshalMap(nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = serialization.UnmarshalMap([]byte(`{"id":`))
	assert.True(t, exception.IsKind(err, exception.ParseError))
}

func TestWriteAndReadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, serialization.WriteJSONFile(path, map[string]interface{}{"continue_dag_run": true}))

	var got map[string]interface{}
	require.NoError(t, serialization.ReadJSONFile(path, &got))
	assert.Equal(t, true, got["continue_dag_run"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")
}

func TestReadJSONFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var got map[string]interface{}
	err := serialization.ReadJSONFile(path, &got)
	assert.True(t, exception.IsKind(err, exception.ParseError))

	err = serialization.ReadJSONFile(filepath.Join(t.TempDir(), "missing.json"), &got)
	assert.True(t, os.IsNotExist(err))
}
