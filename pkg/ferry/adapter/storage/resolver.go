package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// ConnectionResolver dispatches a named connection to the provider of its configured type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)

// ResolverParams defines the dependencies of NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// NewConnectionResolver creates a resolver over every grouped provider.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	return NewResolver(p.Cfg, p.Providers...)
}

// NewResolver creates a resolver from explicit providers.
func NewResolver(cfg *config.Config, providers ...StorageProvider) *ConnectionResolver {
	m := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &ConnectionResolver{providers: m, cfg: cfg}
}

// ResolveStorageConnection implements StorageConnectionResolver.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, storageCfg.Type, err)
	}
	logger.Debugf("Resolved storage connection '%s' (%s).", name, storageCfg.Type)
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
