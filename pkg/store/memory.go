package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// MemoryStore is the in-process Store used when no database is configured.
// Everything it hands out is a deep copy, so callers can mutate results
// without corrupting the stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	pipelines map[string]*pipeline.Pipeline
	positions map[string]map[string]graphview.Point
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pipelines: make(map[string]*pipeline.Pipeline),
		positions: make(map[string]map[string]graphview.Point),
	}
}

func (m *MemoryStore) SavePipeline(_ context.Context, p *pipeline.Pipeline) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("store: pipeline must have an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) LoadPipeline(_ context.Context, id string) (*pipeline.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("pipeline %q: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// ListPipelines returns all pipelines, newest first.
func (m *MemoryStore) ListPipelines(_ context.Context) ([]*pipeline.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*pipeline.Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) DeletePipeline(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipelines[id]; !ok {
		return fmt.Errorf("pipeline %q: %w", id, ErrNotFound)
	}
	delete(m.pipelines, id)
	return nil
}

// SavePositions replaces the layout snapshot stored under key.
func (m *MemoryStore) SavePositions(_ context.Context, key string, pos map[string]graphview.Point) error {
	if key == "" {
		return fmt.Errorf("store: position key must not be empty")
	}
	cp := make(map[string]graphview.Point, len(pos))
	for id, p := range pos {
		cp[id] = p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[key] = cp
	return nil
}

func (m *MemoryStore) LoadPositions(_ context.Context, key string) (map[string]graphview.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[key]
	if !ok {
		return nil, fmt.Errorf("positions %q: %w", key, ErrNotFound)
	}
	cp := make(map[string]graphview.Point, len(pos))
	for id, p := range pos {
		cp[id] = p
	}
	return cp, nil
}
