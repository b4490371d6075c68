package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/ferry/internal/pipeline"
	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/engine/audit"
	"github.com/tigerroll/ferry/pkg/ferry/engine/dispatch"
	"github.com/tigerroll/ferry/pkg/ferry/engine/worker"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/inmemory"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

const testConfig = `
ferry:
  system:
    timezone: Asia/Tokyo
    logging:
      level: ERROR
  audit:
    source_db_ref: source
    stage_db_ref: stage
    target_db_ref: target
  adapter:
    database:
      source:
        type: sqlite
        database: %[1]s/source.db
      stage:
        type: sqlite
        database: %[1]s/stage.db
      target:
        type: sqlite
        database: %[1]s/target.db
`

func testOptions(t *testing.T) (string, fx.Option) {
	t.Helper()
	dir := t.TempDir()
	embedded := config.EmbeddedConfig(fmt.Sprintf(testConfig, filepath.ToSlash(dir)))
	return dir, Base(filepath.Join(dir, ".env"), embedded, DBProviderOptions("sqlite"))
}

func execSQL(t *testing.T, resolver dbadapter.DBConnectionResolver, ref string, statements ...string) {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), ref)
	require.NoError(t, err)
	db := conn.(*gormadapter.GormDBAdapter).GetGormDB()
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

func TestDBProviderOptions(t *testing.T) {
	assert.Len(t, DBProviderOptions(""), 3)
	assert.Len(t, DBProviderOptions("sqlite, oracle,"), 1)
}

func TestEnvFilePath(t *testing.T) {
	t.Setenv("ENV_FILE_PATH", "")
	assert.Equal(t, ".env", EnvFilePath())
	t.Setenv("ENV_FILE_PATH", "/etc/ferry.env")
	assert.Equal(t, "/etc/ferry.env", EnvFilePath())
}

func TestGraphs_Validate(t *testing.T) {
	_, base := testOptions(t)
	assert.NoError(t, fx.ValidateApp(base, DispatchModule, fx.Invoke(func(*dispatch.Dispatcher) {})))
	assert.NoError(t, fx.ValidateApp(base, AuditModule, fx.Invoke(func(*audit.Reconciler) {})))
	assert.NoError(t, fx.ValidateApp(base, WorkerModule, fx.Invoke(func(*worker.Runtime) {})))
}

func TestWorkerApp_RunsBuiltInTransfer(t *testing.T) {
	dir, base := testOptions(t)
	var (
		rt       *worker.Runtime
		resolver dbadapter.DBConnectionResolver
	)
	fxApp := fx.New(base, WorkerModule, fx.Populate(&rt, &resolver))
	require.NoError(t, fxApp.Err())

	resultPath := filepath.Join(dir, "result.json")
	err := Run(context.Background(), fxApp, func(ctx context.Context) error {
		execSQL(t, resolver, "source",
			"CREATE TABLE orders (id INTEGER PRIMARY KEY, amount INTEGER)",
			"INSERT INTO orders (id, amount) VALUES (1, 10), (2, 20), (3, 30)")
		execSQL(t, resolver, "stage", "CREATE TABLE stg_orders (id INTEGER PRIMARY KEY, amount INTEGER)")

		msg, err := json.Marshal(model.JobMessage{
			Config:       map[string]interface{}{"timezone": "UTC"},
			Record:       model.Record{"id": "r1", "source_table": "orders", "stage_table": "stg_orders"},
			TransferFunc: pipeline.SrcToStgTransfer,
			CleanupFunc:  pipeline.SrcToStgCleanup,
			ProcessType:  "src_to_stg",
		})
		require.NoError(t, err)
		assert.Equal(t, worker.ExitOK, rt.Run(ctx, strings.NewReader(string(msg)), resultPath))
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	var env model.ResultEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.True(t, env.Continue)
	assert.Nil(t, env.Error)
}

func TestAuditApp_ReconcilesBuiltInProbes(t *testing.T) {
	_, base := testOptions(t)
	var (
		reconciler *audit.Reconciler
		resolver   dbadapter.DBConnectionResolver
		store      ports.StateStore
	)
	fxApp := fx.New(base, AuditModule, fx.Populate(&reconciler, &resolver, &store))
	require.NoError(t, fxApp.Err())

	var results []model.AuditResult
	err := Run(context.Background(), fxApp, func(ctx context.Context) error {
		execSQL(t, resolver, "source", "CREATE TABLE orders (id INTEGER)", "INSERT INTO orders VALUES (1), (2)")
		execSQL(t, resolver, "target", "CREATE TABLE orders (id INTEGER)", "INSERT INTO orders VALUES (1)")
		results = reconciler.ReconcileAll(ctx, nil, []model.Record{
			{"id": "r1", "source_table": "orders", "target_table": "orders"},
		})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, model.VerdictMismatch, results[0].Verdict)
	assert.Equal(t, int64(2), results[0].SourceCount)
	assert.Equal(t, int64(1), results[0].TargetCount)

	saved, err := store.(*inmemory.Store).Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, string(model.AuditFailure), saved.String(model.FieldAuditStatus))
}

func TestRun_ReturnsCommandError(t *testing.T) {
	_, base := testOptions(t)
	fxApp := fx.New(base)
	require.NoError(t, fxApp.Err())

	err := Run(context.Background(), fxApp, func(context.Context) error {
		return exception.NewFerryError(exception.ValidationError, "app", "bad flags", nil)
	})
	assert.ErrorContains(t, err, "bad flags")
}

func TestLoadRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"r1"},{"id":"r2"}]`), 0o644))

	records, err := LoadRecords(context.Background(), path, "", 0, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[1].ID())

	store := inmemory.NewStore()
	require.NoError(t, store.Persist(context.Background(), model.Record{"id": "p1", "pipeline_id": "daily"}))
	require.NoError(t, store.Persist(context.Background(), model.Record{"id": "p2", "pipeline_id": "weekly"}))
	records, err = LoadRecords(context.Background(), "", "daily", 10, store)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ID())

	_, err = LoadRecords(context.Background(), "", "", 0, store)
	assert.True(t, exception.IsKind(err, exception.ValidationError))
	_, err = LoadRecords(context.Background(), path, "daily", 0, store)
	assert.True(t, exception.IsKind(err, exception.ValidationError))
}

func TestLoadJobConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ferry.System.Timezone = "Asia/Tokyo"

	jobCfg, err := LoadJobConfig("", cfg)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", jobCfg["timezone"])

	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timezone":"UTC","batch_size":500}`), 0o644))
	jobCfg, err = LoadJobConfig(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, "UTC", jobCfg["timezone"])
	assert.Contains(t, jobCfg, "batch_size")
}
