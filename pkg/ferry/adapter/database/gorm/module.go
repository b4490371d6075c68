package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
)

// Module provides the connection resolver. Dialect modules contribute the providers.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		func(r *GormDBConnectionResolver) coreAdapter.ResourceConnectionResolver { return r },
	),
	fx.Invoke(registerCloseHook),
)

func registerCloseHook(lc fx.Lifecycle, r *GormDBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
}
