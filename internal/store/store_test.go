package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/store"
)

func samplePipeline(userID string) *model.Pipeline {
	stepID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	steps := map[uuid.UUID]*model.PipelineStep{
		stepID: {
			ID:     stepID,
			Action: model.NotificationAction("hello"),
			Conditions: []model.Condition{
				func() model.Condition {
					c := model.PriceAbove("a", 10)
					c.Triggered = true
					c.LastEvaluated = &now
					return c
				}(),
			},
			Status: model.StepPending,
		},
	}
	return model.NewPipeline(userID, steps, []uuid.UUID{stepID})
}

func roundTrip(t *testing.T, s store.Store) {
	t.Helper()
	p := samplePipeline("user-1")
	require.NoError(t, s.Save("user-1", p))

	loaded, err := s.Load("user-1", p.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, p.ID, loaded.ID)
	assert.Equal(t, p.UserID, loaded.UserID)
	assert.Equal(t, p.Status, loaded.Status)
	assert.Equal(t, p.CurrentSteps, loaded.CurrentSteps)
	assert.Equal(t, len(p.Steps), len(loaded.Steps))
	for id, step := range p.Steps {
		other, ok := loaded.Steps[id]
		require.True(t, ok)
		assert.Equal(t, step.Action, other.Action)
		assert.Equal(t, step.Conditions, other.Conditions)
		assert.Equal(t, step.Status, other.Status)
	}

	list, err := s.List("user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	missing, err := s.Load("user-2", p.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.Delete("user-1", p.ID))
	afterDelete, err := s.Load("user-1", p.ID)
	require.NoError(t, err)
	assert.Nil(t, afterDelete)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	roundTrip(t, store.NewMemoryStore())
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.json")
	s, err := store.NewFileStore(path)
	require.NoError(t, err)
	roundTrip(t, s)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.json")
	s1, err := store.NewFileStore(path)
	require.NoError(t, err)

	p := samplePipeline("user-1")
	require.NoError(t, s1.Save("user-1", p))

	s2, err := store.NewFileStore(path)
	require.NoError(t, err)
	loaded, err := s2.Load("user-1", p.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, p.ID, loaded.ID)
}
