package mysql_test

import (
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm/mysql"
)

func TestConnectionString(t *testing.T) {
	dsn := mysql.ConnectionString(dbconfig.DatabaseConfig{
		Type: "mysql", Host: "db", Port: 3306, User: "ferry", Password: "secret", Database: "drive",
	})
	parsed, err := mysqldriver.ParseDSN(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "ferry", parsed.User)
	assert.Equal(t, "drive", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestIsTableNotExistError(t *testing.T) {
	assert.True(t, mysql.IsTableNotExistError(fmt.Errorf("wrapped: %w", &mysqldriver.MySQLError{Number: 1146, Message: "Table 'x' doesn't exist"})))
	assert.False(t, mysql.IsTableNotExistError(&mysqldriver.MySQLError{Number: 1045}))
	assert.False(t, mysql.IsTableNotExistError(nil))
}
