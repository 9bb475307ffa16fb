package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/condition"
	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/orderplanner"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// evaluatePipeline runs the full evaluate-pipeline protocol for id against
// the current price snapshot: skip if not Pending, evaluate every step
// still in the frontier, dispatch the ones whose conditions hold, advance
// completed steps' NextSteps into the frontier, and check for pipeline
// completion. Two different pipelines may run this concurrently; the same
// pipeline never does, because the whole protocol runs under entry.mu.
func (e *Engine) evaluatePipeline(ctx context.Context, id uuid.UUID) {
	e.registryMu.RLock()
	entry, ok := e.active[id]
	e.registryMu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	pipeline := entry.pipeline
	if pipeline.Status != model.StepPending {
		return
	}

	prices := e.priceSnapshot()

	// Snapshot the frontier: dispatch may append to CurrentSteps (via
	// Advance) or remove from it (via removeFromFrontier) while we walk,
	// so we iterate a fixed copy and let removals/additions land on the
	// live slice.
	frontier := append([]uuid.UUID(nil), pipeline.CurrentSteps...)
	dirty := false

	for _, stepID := range frontier {
		step, ok := pipeline.Steps[stepID]
		if !ok || step.Status != model.StepPending {
			removeFromFrontier(pipeline, stepID)
			dirty = true
			continue
		}

		fired, err := condition.Evaluate(step.Conditions, prices)
		if err != nil {
			// A missing price is not propagated: logged at debug and
			// retried on the next tick the asset becomes available.
			e.logger.Debug("condition evaluation deferred",
				"pipeline", id, "step", stepID, "error", err)
			e.metrics.recordEvaluation("deferred")
			continue
		}
		if !fired {
			e.metrics.recordEvaluation("not_fired")
			continue
		}
		e.metrics.recordEvaluation("fired")

		// At-most-once dispatch: remove from the frontier and persist
		// before calling out to the wallet gateway or notifier. If the
		// process crashes after this persist and before the dispatch
		// call returns, the step is not in the frontier on restart and
		// is never re-dispatched — the crash can only lose a dispatch,
		// never duplicate one.
		removeFromFrontier(pipeline, stepID)
		dirty = true
		if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
			e.logger.Error("persisting frontier removal failed", "pipeline", id, "step", stepID, "error", err)
			// Put the step back; we never dispatched, so nothing fired
			// twice, but we cannot silently drop this step either.
			pipeline.CurrentSteps = append(pipeline.CurrentSteps, stepID)
			continue
		}

		e.dispatch(ctx, pipeline, step)
	}

	if dirty {
		if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
			e.logger.Error("persisting pipeline state failed", "pipeline", id, "error", err)
		}
	}

	e.checkCompletion(pipeline)
}

// dispatch performs a single step's action: Notification actions go
// through the rate-limited notifier and settle immediately (success or
// failure, never retried automatically per spec.md §7); Order actions go
// through the order planner and wallet gateway with the retry-with-backoff
// budget, and on success leave the step Pending awaiting webhook
// confirmation rather than marking it Completed outright.
func (e *Engine) dispatch(ctx context.Context, pipeline *model.Pipeline, step *model.PipelineStep) {
	start := time.Now()

	switch step.Action.Kind {
	case model.ActionNotification:
		err := e.notifier.Send(ctx, pipeline.UserID, step.Action.Message)
		result := "success"
		if err != nil {
			step.Status = model.StepFailed
			step.Error = err.Error()
			result = "failed"
			e.logger.Warn("notification dispatch failed", "pipeline", pipeline.ID, "step", step.ID, "error", err)
		} else {
			step.Status = model.StepCompleted
			e.advance(pipeline, step)
		}
		e.metrics.recordDispatch("notification", result, time.Since(start))

	case model.ActionOrder:
		e.dispatchOrder(ctx, pipeline, step)
		e.metrics.recordDispatch("order", string(step.Status), time.Since(start))

	default:
		step.Status = model.StepFailed
		step.Error = fmt.Sprintf("unknown action kind %q", step.Action.Kind)
	}

	if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
		e.logger.Error("persisting dispatch result failed", "pipeline", pipeline.ID, "step", step.ID, "error", err)
	}
}

// dispatchOrder plans and sends a step's SwapOrder, retrying
// Retryable/RateLimited gateway failures up to wallet.MaxAttempts with the
// quadratic backoff schedule, per spec.md §4.4. The attempt counter itself
// is not persisted: after a crash mid-retry the step is no longer in the
// persisted frontier, so it is not dispatched again at all (the frontier
// removal that already happened is what prevents duplication).
func (e *Engine) dispatchOrder(ctx context.Context, pipeline *model.Pipeline, step *model.PipelineStep) {
	order := *step.Action.Order
	attempt := 0

	txHash, err := wallet.RetryWithBackoff(ctx, func() (string, error) {
		if attempt > 0 {
			e.metrics.recordRetry("order")
		}
		attempt++

		payload, chainRef, err := e.planner.Plan(ctx, order)
		if err != nil {
			if errors.Is(err, orderplanner.ErrApprovalRequired) {
				// Treated as Retryable per SPEC_FULL.md's resolution of
				// open question (ii): never auto-approve an allowance.
				return "", wallet.NewRetryableError("approval required", err)
			}
			return "", wallet.NewFatalError("order planning failed", err)
		}
		return e.gateway.SignAndSend(ctx, chainRef, payload)
	})

	if err != nil {
		step.Status = model.StepFailed
		step.Error = err.Error()
		e.logger.Warn("order dispatch failed", "pipeline", pipeline.ID, "step", step.ID, "error", err)
		return
	}

	step.TransactionHash = txHash
	e.registerTxHash(txHash, stepRef{pipelineID: pipeline.ID, stepID: step.ID})
	// Status stays Pending: the step only becomes Completed/Failed once
	// the wallet provider's transaction_updates webhook confirms it.
}

// advance appends a completed step's NextSteps to the pipeline's frontier,
// deduplicating against steps already present.
func (e *Engine) advance(pipeline *model.Pipeline, step *model.PipelineStep) {
	present := make(map[uuid.UUID]struct{}, len(pipeline.CurrentSteps))
	for _, id := range pipeline.CurrentSteps {
		present[id] = struct{}{}
	}
	for _, next := range step.NextSteps {
		if _, ok := present[next]; ok {
			continue
		}
		pipeline.CurrentSteps = append(pipeline.CurrentSteps, next)
		present[next] = struct{}{}
	}
}

// checkCompletion sets the pipeline's terminal status once its frontier is
// empty and no dispatched Order step is still awaiting its webhook: Failed
// if any step ended Failed, Completed otherwise.
func (e *Engine) checkCompletion(pipeline *model.Pipeline) {
	if len(pipeline.CurrentSteps) > 0 {
		return
	}
	status := model.StepCompleted
	for _, step := range pipeline.Steps {
		if step.Status == model.StepPending && step.TransactionHash != "" {
			return
		}
		if step.Status == model.StepFailed {
			status = model.StepFailed
		}
	}
	if pipeline.Status == status {
		return
	}
	pipeline.Status = status
	if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
		e.logger.Error("persisting pipeline completion failed", "pipeline", pipeline.ID, "error", err)
	}
}
