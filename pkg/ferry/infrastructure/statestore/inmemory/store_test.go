package inmemory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/statestore/inmemory"
)

func TestStore_PersistKeepsCopy(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	rec := model.Record{"id": "r1", "pipeline_id": "p"}
	require.NoError(t, s.Persist(ctx, rec))

	rec["src_to_stg_status"] = "RUNNING"
	got, err := s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.NotContains(t, got, "src_to_stg_status")

	assert.Error(t, s.Persist(ctx, model.Record{"name": "no id"}))
}

func TestStore_ListPending(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	require.NoError(t, s.Persist(ctx, model.Record{"id": "a", "pipeline_id": "p1"}))
	require.NoError(t, s.Persist(ctx, model.Record{"id": "b", "pipeline_id": "p1", "src_to_stg_status": "COMPLETED"}))
	require.NoError(t, s.Persist(ctx, model.Record{"id": "c", "pipeline_id": "p1"}))
	require.NoError(t, s.Persist(ctx, model.Record{"id": "d", "pipeline_id": "p2"}))

	pending, err := s.ListPending(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID())
	assert.Equal(t, "c", pending[1].ID())

	pending, err = s.ListPending(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestStore_ConcurrentPersist(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Persist(ctx, model.Record{"id": string(rune('a' + i))})
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.IDs(), 20)
}
