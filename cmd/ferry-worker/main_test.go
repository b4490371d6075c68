package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/engine/worker"
)

const workerTestConfig = `
ferry:
  system:
    logging:
      level: ERROR
  audit:
    source_db_ref: source
    stage_db_ref: stage
  adapter:
    database:
      source:
        type: sqlite
        database: %[1]s/source.db
      stage:
        type: sqlite
        database: %[1]s/stage.db
`

func useConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	original := embeddedConfig
	embeddedConfig = []byte(fmt.Sprintf(workerTestConfig, filepath.ToSlash(dir)))
	t.Setenv("ENV_FILE_PATH", filepath.Join(dir, ".env"))
	t.Cleanup(func() { embeddedConfig = original })
	return dir
}

func execSQL(t *testing.T, file string, statements ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func readEnvelope(t *testing.T, path string) model.ResultEnvelope {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var env model.ResultEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestRun_RequiresResultPath(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, worker.ExitFailure, run(context.Background(), nil, strings.NewReader(""), &stderr))
	assert.Contains(t, stderr.String(), "requires --result")
}

func TestRun_MalformedMessage(t *testing.T) {
	dir := useConfig(t)
	result := filepath.Join(dir, "result.json")

	code := run(context.Background(), []string{"--result", result}, strings.NewReader("{not json"), &bytes.Buffer{})
	assert.Equal(t, worker.ExitFailure, code)

	env := readEnvelope(t, result)
	assert.False(t, env.Continue)
	msg, ok := env.Error.Get(model.ErrorKey(1))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(msg, worker.FailurePrefix), msg)
}

func TestRun_TransfersRecord(t *testing.T) {
	dir := useConfig(t)
	execSQL(t, filepath.Join(dir, "source.db"),
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, sku TEXT)",
		"INSERT INTO orders (id, sku) VALUES (1, 'a'), (2, 'b')")
	execSQL(t, filepath.Join(dir, "stage.db"), "CREATE TABLE stg_orders (id INTEGER PRIMARY KEY, sku TEXT)")

	msg := `{
		"config": {"timezone": "UTC"},
		"record": {"id": "r1", "source_table": "orders", "stage_table": "stg_orders"},
		"transfer_func": "pipeline.src_to_stg.transfer",
		"cleanup_func": "pipeline.src_to_stg.cleanup",
		"process_type": "src_to_stg"
	}`
	result := filepath.Join(dir, "result.json")
	code := run(context.Background(), []string{"--result", result}, strings.NewReader(msg), &bytes.Buffer{})
	require.Equal(t, worker.ExitOK, code)
	assert.True(t, readEnvelope(t, result).Continue)

	db, err := sql.Open("sqlite3", filepath.Join(dir, "stage.db"))
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM stg_orders").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestEmbeddedConfig_SharedStateStore(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), ".env"), embeddedConfig)
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
	assert.Equal(t, "sql", cfg.Ferry.StateStore.Type)
	assert.Equal(t, "metadata", cfg.Ferry.StateStore.DBRef)

	t.Setenv("FERRY_STATE_STORE_TYPE", "memory")
	cfg, err = config.LoadConfig(filepath.Join(t.TempDir(), ".env"), embeddedConfig)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Ferry.StateStore.Type)
}
