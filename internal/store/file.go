package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/model"
)

// FileStore implements Store using a single JSON file, loaded into memory
// on construction and rewritten in full after every mutation. It is
// durable across restarts for single-node deployments.
type FileStore struct {
	mu       sync.Mutex
	filePath string
	byKey    map[string]*model.Pipeline
}

// NewFileStore opens (or creates) a JSON-backed store at filePath.
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{
		filePath: filePath,
		byKey:    make(map[string]*model.Pipeline),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("store: failed to load pipeline file: %w", err)
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.byKey)
}

func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.byKey, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.filePath, data, 0o600)
}

// Save upserts a pipeline and flushes the whole file.
func (s *FileStore) Save(userID string, pipeline *model.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key(userID, pipeline.ID)] = pipeline.Clone()
	return s.persist()
}

// Load returns a copy of the stored pipeline, or nil if not found.
func (s *FileStore) Load(userID string, pipelineID uuid.UUID) (*model.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[key(userID, pipelineID)]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// List returns every pipeline for a user, sorted by CreatedAt ascending.
func (s *FileStore) List(userID string) ([]*model.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := userID + "/"
	out := make([]*model.Pipeline, 0)
	for k, p := range s.byKey {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a pipeline and flushes the whole file.
func (s *FileStore) Delete(userID string, pipelineID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key(userID, pipelineID))
	return s.persist()
}
