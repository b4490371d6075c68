package storage

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the storage connection resolver. Provider modules contribute the providers.
var Module = fx.Options(
	fx.Provide(
		NewConnectionResolver,
		func(r *ConnectionResolver) StorageConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *ConnectionResolver) {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return r.CloseAll() }})
	}),
)
