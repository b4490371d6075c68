// Package inmemory provides a process-local StateStore, used when no drive
// table is configured and in tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
)

// Store keeps the latest copy of every persisted record.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.Record
	order   []string
}

var (
	_ ports.StateStore          = (*Store)(nil)
	_ ports.PendingRecordSource = (*Store)(nil)
)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]model.Record)}
}

// Persist stores a copy of record under its id.
func (s *Store) Persist(ctx context.Context, record model.Record) error {
	id := record.ID()
	if id == "" {
		return fmt.Errorf("record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = record.Clone()
	return nil
}

// Load returns a copy of the record with id, or nil.
func (s *Store) Load(ctx context.Context, id string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id].Clone(), nil
}

// ListPending returns up to limit PENDING records in first-persisted order.
func (s *Store) ListPending(ctx context.Context, pipelineID string, limit int) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Record
	for _, id := range s.order {
		r := s.records[id]
		if pipelineID != "" && r.String(model.FieldPipelineID) != pipelineID {
			continue
		}
		if r.PipelineStatus() != model.PipelinePending {
			continue
		}
		out = append(out, r.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// IDs returns the ids of every stored record, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := append([]string(nil), s.order...)
	sort.Strings(ids)
	return ids
}
