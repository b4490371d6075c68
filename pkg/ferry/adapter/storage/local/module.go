package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
)

// Module provides the LocalProvider into the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
	)),
)
