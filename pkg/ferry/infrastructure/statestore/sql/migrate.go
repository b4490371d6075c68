package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// DefaultTable is the drive table created by the embedded migrations.
const DefaultTable = "ferry_record_state"

//go:embed migrations
var migrationFS embed.FS

func databaseDriver(dbType string, sqlDB *sql.DB, migrationsTable string) (database.Driver, error) {
	switch dbType {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: migrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, exception.NewFerryErrorf(exception.ValidationError, moduleName, "unsupported database type for migration: %s", dbType)
	}
}

// Migrate applies the embedded drive table migrations for the connection's
// database type. An up-to-date schema is not an error.
func Migrate(ctx context.Context, conn dbadapter.DBConnection, migrationsTable string) error {
	dir := "migrations/" + conn.Type()
	if conn.Type() == "redshift" {
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "no migrations for database type %s", conn.Type(), err)
	}
	logger.FromContext(ctx).Info("Applying drive table migrations", "STATE_STORE", map[string]interface{}{
		"connection": conn.Name(),
		"type":       conn.Type(),
		"table":      migrationsTable,
	})

	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return exception.NewFerryError(exception.ConnectionError, moduleName, "failed to get underlying sql.DB", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return exception.NewFerryError(exception.ValidationError, moduleName, "failed to open embedded migrations", err)
	}
	driver, err := databaseDriver(conn.Type(), sqlDB, migrationsTable)
	if err != nil {
		_ = source.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, conn.Type(), driver)
	if err != nil {
		_ = source.Close()
		return exception.NewFerryError(exception.ConnectionError, moduleName, "failed to create migrate instance", err)
	}
	// The sqlite driver closes the shared *sql.DB on Close.
	if conn.Type() == "sqlite" {
		defer source.Close()
	} else {
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return exception.NewFerryError(exception.ConnectionError, moduleName, "drive table migration failed", err)
	}
	return nil
}
