package statestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/inmemory"
	statesql "github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/sql"
)

type nopResolver struct{}

func (nopResolver) ResolveDBConnection(context.Context, string) (dbadapter.DBConnection, error) {
	return nil, nil
}

func (nopResolver) ResolveConnection(context.Context, string) (coreAdapter.ResourceConnection, error) {
	return nil, nil
}

func TestNew_Memory(t *testing.T) {
	res, err := statestore.New(statestore.Params{Lifecycle: fxtest.NewLifecycle(t), Config: config.NewConfig()})
	require.NoError(t, err)
	assert.IsType(t, &inmemory.Store{}, res.StateStore)
	assert.Same(t, res.StateStore, res.Pending)
}

func TestNew_SQLWithoutResolver(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ferry.StateStore.Type = "sql"
	cfg.Ferry.StateStore.DBRef = "metadata"
	_, err := statestore.New(statestore.Params{Lifecycle: fxtest.NewLifecycle(t), Config: cfg})
	assert.Error(t, err)
}

func TestNew_SQL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ferry.StateStore.Type = "sql"
	cfg.Ferry.StateStore.DBRef = "metadata"
	cfg.Ferry.StateStore.AutoMigrate = false
	res, err := statestore.New(statestore.Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    cfg,
		Resolver:  nopResolver{},
	})
	require.NoError(t, err)
	assert.IsType(t, &statesql.Store{}, res.StateStore)
}
