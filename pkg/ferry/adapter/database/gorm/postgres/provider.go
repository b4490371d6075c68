// Package postgres registers the PostgreSQL dialect and provides its DBProvider.
package postgres

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
)

// ProviderType is the adapter.database.<name>.type handled here.
const ProviderType = "postgres"

// undefinedTable is the SQLSTATE raised for a missing relation.
const undefinedTable = "42P01"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	}, IsTableNotExistError)
}

// ConnectionString builds the keyword/value DSN expected by gorm.io/driver/postgres.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("password=%s", c.Password),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if c.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", c.Schema))
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.Params[k]))
	}
	return strings.Join(parts, " ")
}

// IsTableNotExistError reports whether err carries SQLSTATE 42P01.
func IsTableNotExistError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == undefinedTable
	}
	return false
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, ProviderType)
}
