// Package probe counts the rows of the tables a record points at.
package probe

import (
	"context"
	"strings"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// TableProbe counts the table named by a record field on one database.
type TableProbe struct {
	resolver   dbadapter.DBConnectionResolver
	dbRef      string
	tableField string
}

var _ ports.CountProbe = (*TableProbe)(nil)

// NewTableProbe creates a probe reading the table name from tableField
// (e.g. source_table) and counting it on the connection named dbRef.
func NewTableProbe(resolver dbadapter.DBConnectionResolver, dbRef, tableField string) *TableProbe {
	return &TableProbe{resolver: resolver, dbRef: dbRef, tableField: tableField}
}

// Probe implements ports.CountProbe. The job configuration may override the
// database with the matching "<side>_db_ref" key (e.g. source_db_ref).
func (p *TableProbe) Probe(ctx context.Context, cfg map[string]interface{}, record model.Record) (int64, error) {
	table := record.String(p.tableField)
	if table == "" {
		return 0, exception.NewFerryErrorf(exception.ProbeError, "probe", "record %s has no %s", record.ID(), p.tableField)
	}
	dbRef := p.dbRef
	side := strings.TrimSuffix(p.tableField, "_table")
	if v, ok := cfg[side+"_db_ref"].(string); ok && v != "" {
		dbRef = v
	}
	tag := "GET_" + strings.ToUpper(side) + "_COUNT"
	scope := logger.FromContext(ctx)
	scope.Info("[RUNNING] Getting count for table: "+table, tag, nil)

	conn, err := p.resolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return 0, exception.NewFerryErrorf(exception.ConnectionError, "probe", "failed to resolve database '%s'", dbRef, err)
	}
	count, err := conn.CountTable(ctx, table, nil)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return 0, exception.NewFerryErrorf(exception.ProbeError, "probe", "table %s does not exist on '%s'", table, dbRef, err)
		}
		return 0, exception.NewFerryErrorf(exception.ProbeError, "probe", "failed to count %s", table, err)
	}
	scope.Info("[COMPLETED] Count for table "+table, tag, map[string]interface{}{"count": count})
	return count, nil
}
