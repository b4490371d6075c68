package pipeline

import (
	"go.uber.org/fx"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
)

// Params defines the dependencies of NewCapabilities.
type Params struct {
	fx.In
	Resolver dbadapter.DBConnectionResolver
	Config   *config.Config
}

// NewCapabilities returns a registry holding the built-in pipeline.
func NewCapabilities(p Params) (*registry.Capabilities, error) {
	caps := registry.NewCapabilities()
	if err := Register(caps, p.Resolver, p.Config.Ferry.Audit); err != nil {
		return nil, err
	}
	return caps, nil
}

// Module provides *registry.Capabilities.
var Module = fx.Options(fx.Provide(NewCapabilities))
