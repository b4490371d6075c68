package sqlite_test

import dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"

func sqliteConfig(path string, params map[string]string) dbconfig.DatabaseConfig {
	return dbconfig.DatabaseConfig{Type: "sqlite", Database: path, Params: params}
}
