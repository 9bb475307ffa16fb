package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/model"
)

// MemoryStore implements Store over an in-memory mutex-guarded map. It is
// suitable for tests and single-process CLI use; nothing survives a
// restart.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]*model.Pipeline
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]*model.Pipeline)}
}

// Save upserts a copy of the pipeline so later caller-side mutation cannot
// corrupt stored state.
func (m *MemoryStore) Save(userID string, pipeline *model.Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[key(userID, pipeline.ID)] = pipeline.Clone()
	return nil
}

// Load returns a copy of the stored pipeline, or nil if not found.
func (m *MemoryStore) Load(userID string, pipelineID uuid.UUID) (*model.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byKey[key(userID, pipelineID)]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// List returns every pipeline for a user, sorted by CreatedAt ascending.
func (m *MemoryStore) List(userID string) ([]*model.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := userID + "/"
	out := make([]*model.Pipeline, 0)
	for k, p := range m.byKey {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a pipeline; deleting a missing key is a no-op.
func (m *MemoryStore) Delete(userID string, pipelineID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, key(userID, pipelineID))
	return nil
}
