// Package config holds the connection settings decoded from adapter.database.<name>.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type" mapstructure:"type"` // "postgres", "mysql" or "sqlite".
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"` // Database name, or file path for sqlite.
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Schema   string `yaml:"schema,omitempty" mapstructure:"schema"`
	Sslmode  string `yaml:"sslmode" mapstructure:"sslmode"`
	// Params are appended to the DSN (mysql) or connection string (postgres).
	Params map[string]string `yaml:"params,omitempty" mapstructure:"params"`
	Pool   PoolConfig        `yaml:"pool" mapstructure:"pool"`
}
