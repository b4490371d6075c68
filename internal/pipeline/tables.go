// Package pipeline registers the built-in source -> stage -> target
// capabilities and count probes.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const defaultBatchSize = 1000

// side names one layer of the pipeline: the record field holding its table
// and the connection it lives on.
type side struct {
	name       string
	tableField string
	dbRef      string
}

// Tables moves and clears the tables records point at.
type Tables struct {
	resolver dbadapter.DBConnectionResolver
	source   side
	stage    side
	target   side
}

// NewTables creates Tables over the connections named in the audit config.
func NewTables(resolver dbadapter.DBConnectionResolver, cfg config.AuditConfig) *Tables {
	return &Tables{
		resolver: resolver,
		source:   side{name: "source", tableField: model.FieldSourceTable, dbRef: cfg.SourceDBRef},
		stage:    side{name: "stage", tableField: model.FieldStageTable, dbRef: cfg.StageDBRef},
		target:   side{name: "target", tableField: model.FieldTargetTable, dbRef: cfg.TargetDBRef},
	}
}

type gormConnection interface {
	GetGormDB() *gorm.DB
}

// open resolves the table, connection name and gorm handle of s for record,
// honoring the <side>_db_ref override of the job configuration.
func (t *Tables) open(ctx context.Context, s side, settings config.JobSettings, record model.Record) (string, string, *gorm.DB, error) {
	table := record.String(s.tableField)
	if table == "" {
		return "", "", nil, fmt.Errorf("record %s has no %s", record.ID(), s.tableField)
	}
	dbRef := s.dbRef
	switch s.name {
	case "source":
		if settings.SourceDBRef != "" {
			dbRef = settings.SourceDBRef
		}
	case "stage":
		if settings.StageDBRef != "" {
			dbRef = settings.StageDBRef
		}
	case "target":
		if settings.TargetDBRef != "" {
			dbRef = settings.TargetDBRef
		}
	}
	conn, err := t.resolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return "", "", nil, exception.NewFerryErrorf(exception.ConnectionError, "pipeline", "failed to resolve %s database '%s'", s.name, dbRef, err)
	}
	gc, ok := conn.(gormConnection)
	if !ok {
		return "", "", nil, fmt.Errorf("connection '%s' does not expose a gorm handle", dbRef)
	}
	return table, dbRef, gc.GetGormDB().WithContext(ctx), nil
}

// Copy moves every row of from into to inside one destination transaction, so
// a failed copy leaves the destination unchanged. Tables on different
// connections are streamed in batches. Tables on the same connection are
// copied with a single INSERT ... SELECT so the copy never holds more than one
// pooled connection.
func (t *Tables) Copy(ctx context.Context, cfg map[string]interface{}, record model.Record, from, to side) (int64, error) {
	settings, err := config.DecodeJobSettings(cfg)
	if err != nil {
		return 0, err
	}
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	fromTable, fromRef, src, err := t.open(ctx, from, settings, record)
	if err != nil {
		return 0, err
	}
	toTable, toRef, dst, err := t.open(ctx, to, settings, record)
	if err != nil {
		return 0, err
	}

	var copied int64
	if fromRef == toRef {
		err = dst.Transaction(func(tx *gorm.DB) error {
			n, err := insertSelect(tx, fromTable, toTable)
			copied = n
			return err
		})
	} else {
		copied, err = streamCopy(src, dst, fromTable, toTable, batchSize)
	}
	if err != nil {
		return 0, exception.NewFerryErrorf(exception.TransferError, "pipeline", "failed to copy %s into %s", fromTable, toTable, err)
	}
	logger.FromContext(ctx).Info(fmt.Sprintf("Copied %s into %s", fromTable, toTable), "TABLE_COPY", map[string]interface{}{"rows": copied})
	return copied, nil
}

// insertSelect copies the source columns of fromTable into the same-named
// columns of toTable.
func insertSelect(tx *gorm.DB, fromTable, toTable string) (int64, error) {
	columns, err := tx.Migrator().ColumnTypes(fromTable)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", fromTable)
	}
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, tx.Statement.Quote(c.Name()))
	}
	list := strings.Join(names, ", ")
	res := tx.Exec(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		tx.Statement.Quote(toTable), list, list, tx.Statement.Quote(fromTable)))
	return res.RowsAffected, res.Error
}

// streamCopy reads fromTable through a cursor on src and inserts batches of
// batchSize rows into toTable inside a transaction on dst.
func streamCopy(src, dst *gorm.DB, fromTable, toTable string, batchSize int) (int64, error) {
	rows, err := src.Table(fromTable).Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var copied int64
	err = dst.Transaction(func(tx *gorm.DB) error {
		batch := make([]map[string]interface{}, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := tx.Table(toTable).Create(&batch).Error; err != nil {
				return err
			}
			copied += int64(len(batch))
			batch = batch[:0]
			return nil
		}
		for rows.Next() {
			row := map[string]interface{}{}
			if err := src.ScanRows(rows, &row); err != nil {
				return err
			}
			batch = append(batch, row)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return flush()
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// Clear deletes every row of the table s refers to.
func (t *Tables) Clear(ctx context.Context, cfg map[string]interface{}, record model.Record, s side) error {
	settings, err := config.DecodeJobSettings(cfg)
	if err != nil {
		return err
	}
	table, _, db, err := t.open(ctx, s, settings, record)
	if err != nil {
		return err
	}
	res := db.Exec(fmt.Sprintf("DELETE FROM %s", db.Statement.Quote(table)))
	if res.Error != nil {
		return exception.NewFerryErrorf(exception.CleanupError, "pipeline", "failed to clear %s", table, res.Error)
	}
	logger.FromContext(ctx).Info("Cleared "+table, "TABLE_CLEAR", map[string]interface{}{"rows": res.RowsAffected})
	return nil
}

// Count returns the rows of the table s refers to.
func (t *Tables) Count(ctx context.Context, cfg map[string]interface{}, record model.Record, s side) (int64, error) {
	settings, err := config.DecodeJobSettings(cfg)
	if err != nil {
		return 0, err
	}
	table, _, db, err := t.open(ctx, s, settings, record)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Table(table).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
