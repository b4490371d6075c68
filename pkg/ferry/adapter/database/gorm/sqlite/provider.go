// Package sqlite registers the SQLite dialect and provides its DBProvider.
package sqlite

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
)

// ProviderType is the adapter.database.<name>.type handled here.
const ProviderType = "sqlite"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	}, IsTableNotExistError)
}

// ConnectionString returns the database path, followed by any params as a query string.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if len(c.Params) == 0 {
		return c.Database
	}
	var b strings.Builder
	b.WriteString(c.Database)
	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}
	for k, v := range c.Params {
		b.WriteString(sep)
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
		sep = "&"
	}
	return b.String()
}

// IsTableNotExistError reports whether err is a "no such table" error from go-sqlite3.
func IsTableNotExistError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrError && strings.Contains(sqliteErr.Error(), "no such table")
	}
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, ProviderType)
}
