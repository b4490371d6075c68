// Package statestore selects the record state store named by
// ferry.state_store.type.
package statestore

import (
	"context"

	"go.uber.org/fx"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/inmemory"
	statesql "github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/sql"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// Params holds the dependencies of New. The resolver is only needed for the
// sql store.
type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Resolver  dbadapter.DBConnectionResolver `optional:"true"`
}

// Result exposes the chosen store under both of its ports.
type Result struct {
	fx.Out
	StateStore ports.StateStore
	Pending    ports.PendingRecordSource
}

// New builds the configured store. The drive table is migrated on start when
// auto_migrate is set.
func New(p Params) (Result, error) {
	cfg := p.Config.Ferry.StateStore
	if cfg.Type != "sql" {
		store := inmemory.NewStore()
		return Result{StateStore: store, Pending: store}, nil
	}

	if p.Resolver == nil {
		return Result{}, exception.NewFerryError(exception.ValidationError, "state_store", "sql state store requires a database resolver", nil)
	}
	store := statesql.NewStore(p.Resolver, cfg.DBRef, cfg.Table)
	if cfg.AutoMigrate {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				conn, err := p.Resolver.ResolveDBConnection(ctx, cfg.DBRef)
				if err != nil {
					return err
				}
				return statesql.Migrate(ctx, conn, cfg.MigrationsTable)
			},
		})
	}
	logger.Debugf("StateStore: using table '%s' on database '%s'.", store.Table(), cfg.DBRef)
	return Result{StateStore: store, Pending: store}, nil
}

// Module provides ports.StateStore and ports.PendingRecordSource.
var Module = fx.Options(
	fx.Provide(New),
)
