// Package gorm implements the database adapter on top of gorm.io/gorm.
// Dialects register themselves from their own packages (sqlite, postgres, mysql).
package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"

	"github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	dbconfig "github.com/tigerroll/ferry/pkg/ferry/adapter/database/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

// TableNotExistChecker reports whether a driver error means a missing table.
type TableNotExistChecker func(err error) bool

type dialect struct {
	factory DialectorFactory
	checker TableNotExistChecker
}

var (
	dialectRegistry = make(map[string]dialect)
	dialectMutex    sync.RWMutex
)

// RegisterDialector registers the dialector factory and table-not-exist
// checker for a database type. checker may be nil.
func RegisterDialector(dbType string, factory DialectorFactory, checker TableNotExistChecker) {
	dialectMutex.Lock()
	defer dialectMutex.Unlock()
	if _, exists := dialectRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectRegistry[dbType] = dialect{factory: factory, checker: checker}
}

// GetDialectorFactory retrieves the DialectorFactory for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectMutex.RLock()
	defer dialectMutex.RUnlock()
	d, ok := dialectRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return d.factory, nil
}

func lookupTableNotExistChecker(dbType string) TableNotExistChecker {
	dialectMutex.RLock()
	defer dialectMutex.RUnlock()
	return dialectRegistry[dbType].checker
}

// DecodeDatabaseConfig decodes adapter.database.<name> from cfg.
func DecodeDatabaseConfig(cfg *config.Config, name string) (dbconfig.DatabaseConfig, error) {
	var dbConfig dbconfig.DatabaseConfig
	rawConfig, ok := cfg.DatabaseConfigs()[name]
	if !ok {
		return dbConfig, fmt.Errorf("database configuration '%s' not found under adapter.database", name)
	}
	if err := mapstructure.Decode(rawConfig, &dbConfig); err != nil {
		return dbConfig, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	return dbConfig, nil
}

// BaseProvider opens and caches the connections of one database type.
type BaseProvider struct {
	cfg         *config.Config
	dbType      string
	connections map[string]database.DBConnection
	mu          sync.RWMutex
}

var _ database.DBProvider = (*BaseProvider)(nil)

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]database.DBConnection),
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection returns the cached connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

func (p *BaseProvider) createAndStoreConnection(name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if dbConfig.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbConfig.Type, name)
	}

	gormDB, err := Open(dbConfig)
	if err != nil {
		return nil, err
	}
	conn, err := NewGormDBAdapter(gormDB, dbConfig, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// ForceReconnect closes the named connection, if open, and opens it again.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.connections[name]; ok {
		if err := existing.Close(); err != nil {
			logger.Warnf("Failed to close existing connection '%s' before reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	conn, err := p.createAndStoreConnection(name)
	if err != nil {
		return nil, err
	}
	logger.Infof("Re-established DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// CloseAll closes every connection and reports all close failures.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			result = multierror.Append(result, fmt.Errorf("close '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Open creates a *gorm.DB for dbConfig through the registered dialect and
// applies the pool settings. GORM's own log level follows the application level.
func Open(dbConfig dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	level := string(config.LogLevelSilent)
	if config.GlobalConfig != nil && config.LogLevel(config.GlobalConfig.Ferry.System.Logging.Level) == config.LogLevelDebug {
		level = string(config.LogLevelInfo)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
