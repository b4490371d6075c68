// Package database defines the database connection abstractions used by the
// state store and the count probes.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
)

// DBExecutor defines the write and read operations available on a connection.
type DBExecutor interface {
	// ExecuteUpsert performs an INSERT ... ON CONFLICT DO UPDATE (or DO NOTHING when
	// updateColumns is empty).
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery executes a SELECT with the query map used as an AND-ed WHERE clause.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a SELECT with optional ordering and limit.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// QueryTable is ExecuteQueryAdvanced against an explicitly named table.
	QueryTable(ctx context.Context, tableName string, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count counts the rows of the model's table matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// CountTable counts the rows of an arbitrary table matching query.
	CountTable(ctx context.Context, tableName string, query map[string]interface{}) (int64, error)
}

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError reports whether err means the queried table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the pool to check the connection is still usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the configuration the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB, used by migrations.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves named database connections.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveDBConnection returns a healthy connection, reconnecting if the ping fails.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "postgres").
	Type() string
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
