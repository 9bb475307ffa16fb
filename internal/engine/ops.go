package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/model"
)

// AddPipeline registers pipeline in active state and persists it,
// indexing every asset its conditions reference per spec.md §4.6's
// subscription-and-fan-out rule. Duplicate ids are rejected.
func (e *Engine) AddPipeline(ctx context.Context, pipeline *model.Pipeline) error {
	e.registryMu.Lock()
	if _, exists := e.active[pipeline.ID]; exists {
		e.registryMu.Unlock()
		return model.NewNotFound(fmt.Sprintf("pipeline %s already exists", pipeline.ID))
	}
	entry := &pipelineEntry{pipeline: pipeline.Clone()}
	e.active[pipeline.ID] = entry
	e.metrics.setActivePipelines(len(e.active))
	e.registryMu.Unlock()

	e.indexAssets(pipeline.ID, pipeline)

	if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
		e.registryMu.Lock()
		delete(e.active, pipeline.ID)
		e.metrics.setActivePipelines(len(e.active))
		e.registryMu.Unlock()
		e.deindexPipeline(pipeline.ID)
		return model.NewStoreError(err)
	}
	return nil
}

// GetPipeline returns a copy of the pipeline if userID owns it.
func (e *Engine) GetPipeline(ctx context.Context, userID string, id uuid.UUID) (*model.Pipeline, error) {
	entry, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	if entry.pipeline.UserID != userID {
		return nil, model.ErrUnauthorized
	}
	return entry.pipeline.Clone(), nil
}

// ListPipelines returns every pipeline owned by userID from the
// authoritative store (not the in-memory active set, which may omit
// terminal pipelines already evicted — ListPipelines is a read path, not
// part of the evaluate hot path).
func (e *Engine) ListPipelines(ctx context.Context, userID string) ([]*model.Pipeline, error) {
	pipelines, err := e.store.List(userID)
	if err != nil {
		return nil, model.NewStoreError(err)
	}
	return pipelines, nil
}

// DeletePipeline removes a pipeline from active state, the asset index,
// and the store.
func (e *Engine) DeletePipeline(ctx context.Context, userID string, id uuid.UUID) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	entry.mu.RLock()
	owner := entry.pipeline.UserID
	entry.mu.RUnlock()
	if owner != userID {
		return model.ErrUnauthorized
	}

	if err := e.store.Delete(userID, id); err != nil {
		return model.NewStoreError(err)
	}

	e.registryMu.Lock()
	delete(e.active, id)
	e.metrics.setActivePipelines(len(e.active))
	e.registryMu.Unlock()
	e.deindexPipeline(id)
	return nil
}

// CancelPipeline sets a pipeline's status to Cancelled and persists under
// the pipeline's lock, per spec.md §5's cancellation rule.
func (e *Engine) CancelPipeline(ctx context.Context, userID string, id uuid.UUID) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pipeline.UserID != userID {
		return model.ErrUnauthorized
	}
	entry.pipeline.Status = model.StepCancelled
	if err := e.store.Save(userID, entry.pipeline); err != nil {
		return model.NewStoreError(err)
	}
	return nil
}

// CancelStep cancels a single Pending step without affecting the rest of
// the pipeline. A step that is no longer Pending, or an Order step that is
// still Pending but already carries a transaction hash (dispatched, awaiting
// its webhook), cannot be cancelled because the wallet gateway has already
// accepted it.
func (e *Engine) CancelStep(ctx context.Context, userID string, id, stepID uuid.UUID) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pipeline.UserID != userID {
		return model.ErrUnauthorized
	}
	step, ok := entry.pipeline.Steps[stepID]
	if !ok {
		return model.NewNotFound(fmt.Sprintf("step %s not found in pipeline %s", stepID, id))
	}
	if step.Status != model.StepPending || step.TransactionHash != "" {
		return model.ErrStepNotCancellable
	}
	step.Status = model.StepCancelled
	removeFromFrontier(entry.pipeline, stepID)

	if err := e.store.Save(userID, entry.pipeline); err != nil {
		return model.NewStoreError(err)
	}
	return nil
}

func (e *Engine) lookup(id uuid.UUID) (*pipelineEntry, error) {
	e.registryMu.RLock()
	entry, ok := e.active[id]
	e.registryMu.RUnlock()
	if !ok {
		return nil, model.NewNotFound(fmt.Sprintf("pipeline %s not found", id))
	}
	return entry, nil
}

// removeFromFrontier deletes stepID from pipeline.CurrentSteps in place.
func removeFromFrontier(pipeline *model.Pipeline, stepID uuid.UUID) {
	out := pipeline.CurrentSteps[:0]
	for _, id := range pipeline.CurrentSteps {
		if id != stepID {
			out = append(out, id)
		}
	}
	pipeline.CurrentSteps = out
}

// LoadAll hydrates active state from the store for every known pipeline
// belonging to userIDs, the Go analogue of the original's boot-time Redis
// hydration (bridge.rs's get_all_pipelines_by_user, invoked per user at
// startup by the deployment's own user enumeration).
func (e *Engine) LoadAll(ctx context.Context, userIDs []string) error {
	for _, userID := range userIDs {
		pipelines, err := e.store.List(userID)
		if err != nil {
			return model.NewStoreError(err)
		}
		for _, pipeline := range pipelines {
			if pipeline.Status != model.StepPending {
				continue
			}
			e.registryMu.Lock()
			e.active[pipeline.ID] = &pipelineEntry{pipeline: pipeline}
			e.metrics.setActivePipelines(len(e.active))
			e.registryMu.Unlock()
			e.indexAssets(pipeline.ID, pipeline)
			for _, step := range pipeline.Steps {
				if step.TransactionHash != "" {
					e.registerTxHash(step.TransactionHash, stepRef{pipelineID: pipeline.ID, stepID: step.ID})
				}
			}
		}
	}
	return nil
}
