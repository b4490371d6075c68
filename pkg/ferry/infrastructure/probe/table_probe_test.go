package probe_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm/sqlite"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/probe"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

func newResolver(t *testing.T) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Ferry.AdapterConfigs["database"] = map[string]interface{}{
		"source":  map[string]interface{}{"type": "sqlite", "database": filepath.Join(dir, "source.db")},
		"target":  map[string]interface{}{"type": "sqlite", "database": filepath.Join(dir, "target.db")},
		"archive": map[string]interface{}{"type": "sqlite", "database": filepath.Join(dir, "archive.db")},
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return resolver
}

func seed(t *testing.T, resolver *gormadapter.GormDBConnectionResolver, db, table string, rows int) {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), db)
	require.NoError(t, err)
	gdb := conn.(*gormadapter.GormDBAdapter).GetGormDB()
	require.NoError(t, gdb.Exec(fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY)", table)).Error)
	for i := 0; i < rows; i++ {
		require.NoError(t, gdb.Exec(fmt.Sprintf("INSERT INTO %s (id) VALUES (?)", table), i).Error)
	}
}

func TestTableProbe_Counts(t *testing.T) {
	resolver := newResolver(t)
	seed(t, resolver, "source", "orders", 3)
	seed(t, resolver, "target", "orders_copy", 2)

	record := model.Record{"id": "r1", "source_table": "orders", "target_table": "orders_copy"}
	src, err := probe.NewTableProbe(resolver, "source", model.FieldSourceTable).Probe(context.Background(), nil, record)
	require.NoError(t, err)
	assert.Equal(t, int64(3), src)

	trg, err := probe.NewTableProbe(resolver, "target", model.FieldTargetTable).Probe(context.Background(), nil, record)
	require.NoError(t, err)
	assert.Equal(t, int64(2), trg)
}

func TestTableProbe_DBRefOverride(t *testing.T) {
	resolver := newResolver(t)
	seed(t, resolver, "archive", "orders", 5)

	cfg := map[string]interface{}{"source_db_ref": "archive"}
	count, err := probe.NewTableProbe(resolver, "source", model.FieldSourceTable).
		Probe(context.Background(), cfg, model.Record{"id": "r1", "source_table": "orders"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestTableProbe_Errors(t *testing.T) {
	resolver := newResolver(t)
	p := probe.NewTableProbe(resolver, "source", model.FieldSourceTable)

	_, err := p.Probe(context.Background(), nil, model.Record{"id": "r1"})
	assert.True(t, exception.IsKind(err, exception.ProbeError))

	_, err = p.Probe(context.Background(), nil, model.Record{"id": "r1", "source_table": "missing"})
	assert.ErrorContains(t, err, "does not exist")

	_, err = probe.NewTableProbe(resolver, "nowhere", model.FieldSourceTable).
		Probe(context.Background(), nil, model.Record{"id": "r1", "source_table": "orders"})
	assert.True(t, exception.IsKind(err, exception.ConnectionError))
}
