// Package sql persists record state in the drive table through a gorm
// database connection.
package sql

import (
	"context"
	"time"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

const moduleName = "state_store"

// stateRow is one drive table row. The full record travels in Payload; the
// other columns are derived for querying.
type stateRow struct {
	ID             string    `gorm:"column:id;primaryKey"`
	PipelineID     string    `gorm:"column:pipeline_id"`
	PipelineStatus string    `gorm:"column:pipeline_status"`
	AuditStatus    string    `gorm:"column:audit_status"`
	Payload        string    `gorm:"column:payload"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

var updateColumns = []string{"pipeline_id", "pipeline_status", "audit_status", "payload", "updated_at"}

// Store is a ports.StateStore and ports.PendingRecordSource over the drive table.
type Store struct {
	resolver dbadapter.DBConnectionResolver
	dbRef    string
	table    string
	now      func() time.Time
}

var (
	_ ports.StateStore          = (*Store)(nil)
	_ ports.PendingRecordSource = (*Store)(nil)
)

// NewStore creates a Store writing to table on the connection named dbRef.
func NewStore(resolver dbadapter.DBConnectionResolver, dbRef, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{resolver: resolver, dbRef: dbRef, table: table, now: time.Now}
}

// Table returns the drive table name.
func (s *Store) Table() string { return s.table }

func (s *Store) conn(ctx context.Context) (dbadapter.DBConnection, error) {
	conn, err := s.resolver.ResolveDBConnection(ctx, s.dbRef)
	if err != nil {
		return nil, exception.NewFerryErrorf(exception.ConnectionError, moduleName, "failed to resolve database '%s'", s.dbRef, err)
	}
	return conn, nil
}

// Persist upserts record by id.
func (s *Store) Persist(ctx context.Context, record model.Record) error {
	id := record.ID()
	if id == "" {
		return exception.NewFerryError(exception.ValidationError, moduleName, "record has no id", nil)
	}
	payload, err := serialization.MarshalMap(record)
	if err != nil {
		return exception.NewFerryErrorf(exception.ParseError, moduleName, "failed to encode record %s", id, err)
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := &stateRow{
		ID:             id,
		PipelineID:     record.String(model.FieldPipelineID),
		PipelineStatus: string(record.PipelineStatus()),
		AuditStatus:    record.String(model.FieldAuditStatus),
		Payload:        string(payload),
		UpdatedAt:      s.now().UTC(),
	}
	if _, err := conn.ExecuteUpsert(ctx, row, s.table, []string{"id"}, updateColumns); err != nil {
		return exception.NewFerryErrorf(exception.ConnectionError, moduleName, "failed to persist record %s", id, err)
	}
	return nil
}

// Load returns the stored record with id, or nil when none exists.
func (s *Store) Load(ctx context.Context, id string) (model.Record, error) {
	records, err := s.query(ctx, map[string]interface{}{"id": id}, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// ListPending returns up to limit PENDING records of pipelineID, oldest first.
// An empty pipelineID matches every pipeline.
func (s *Store) ListPending(ctx context.Context, pipelineID string, limit int) ([]model.Record, error) {
	query := map[string]interface{}{"pipeline_status": string(model.PipelinePending)}
	if pipelineID != "" {
		query["pipeline_id"] = pipelineID
	}
	return s.query(ctx, query, limit)
}

func (s *Store) query(ctx context.Context, query map[string]interface{}, limit int) ([]model.Record, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []stateRow
	if err := conn.QueryTable(ctx, s.table, &rows, query, "updated_at, id", limit); err != nil {
		return nil, exception.NewFerryErrorf(exception.ConnectionError, moduleName, "failed to query %s", s.table, err)
	}
	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		values, err := serialization.UnmarshalMap([]byte(row.Payload))
		if err != nil {
			return nil, exception.NewFerryErrorf(exception.ParseError, moduleName, "corrupt payload for record %s", row.ID, err)
		}
		records = append(records, model.Record(values))
	}
	return records, nil
}
