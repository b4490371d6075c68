// Package mysql registers the MySQL dialect and provides its DBProvider.
package mysql

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
)

// ProviderType is the adapter.database.<name>.type handled here.
const ProviderType = "mysql"

// errNoSuchTable is ER_NO_SUCH_TABLE.
const errNoSuchTable = 1146

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	}, IsTableNotExistError)
}

// ConnectionString builds the DSN with the driver's own formatter.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	if len(c.Params) > 0 {
		dsn.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			dsn.Params[k] = v
		}
	}
	return dsn.FormatDSN()
}

// IsTableNotExistError reports whether err is MySQL error 1146.
func IsTableNotExistError(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errNoSuchTable
	}
	return false
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, ProviderType)
}
