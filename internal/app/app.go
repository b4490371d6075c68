// Package app builds the fx graphs of the ferry commands.
package app

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/ferry/internal/pipeline"
	gormadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm/mysql"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm/postgres"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/storage/gcs"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/storage/local"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// DBProviderModules maps a DB_ADAPTORS entry to its dialect module.
var DBProviderModules = map[string]fx.Option{
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
	"sqlite":   sqlite.Module,
}

// DBProviderOptions selects dialect modules from a comma-separated list such
// as the DB_ADAPTORS environment variable. An empty list selects all of them.
func DBProviderOptions(adaptors string) []fx.Option {
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}
	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if module, ok := DBProviderModules[name]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// EnvFilePath returns ENV_FILE_PATH, defaulting to ".env".
func EnvFilePath() string {
	if path := os.Getenv("ENV_FILE_PATH"); path != "" {
		return path
	}
	return ".env"
}

// Base holds the options every command shares: configuration, database and
// storage adapters, telemetry, the state store and the built-in capabilities.
func Base(envFilePath string, embeddedConfig config.EmbeddedConfig, dbProviders []fx.Option) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,

		fx.Options(dbProviders...),
		gormadapter.Module,

		storageAdapter.Module,
		local.Module,
		gcs.Module,

		metrics.Module,
		statestore.Module,
		pipeline.Module,
	)
}

// Run starts fxApp, calls fn and stops fxApp again. Errors of fn and of the
// shutdown hooks are both returned.
func Run(ctx context.Context, fxApp *fx.App, fn func(ctx context.Context) error) error {
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	var result *multierror.Error
	if err := fn(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application: %v", err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
