package engine

import (
	"context"

	"github.com/orbitengine/pipeline/internal/bus"
	"github.com/orbitengine/pipeline/internal/model"
)

// OnTransactionUpdate handles a wallet-provider webhook confirming or
// failing a previously dispatched Order step, the second half of C6's
// dispatch protocol: SignAndSend only records a transaction hash and
// leaves the step Pending, so it is this handler, not dispatchOrder, that
// ever marks an Order step Completed or Failed.
func (e *Engine) OnTransactionUpdate(ctx context.Context, update bus.TransactionUpdate) {
	ref, ok := e.lookupTxHash(update.TransactionHash)
	if !ok {
		e.logger.Debug("transaction update for unknown hash", "hash", update.TransactionHash)
		return
	}

	e.registryMu.RLock()
	entry, ok := e.active[ref.pipelineID]
	e.registryMu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	pipeline := entry.pipeline
	step, ok := pipeline.Steps[ref.stepID]
	if !ok || step.Status != model.StepPending || pipeline.Status != model.StepPending {
		entry.mu.Unlock()
		return
	}

	switch update.Event {
	case bus.TransactionConfirmed:
		step.Status = model.StepCompleted
		e.advance(pipeline, step)
	case bus.TransactionFailed:
		step.Status = model.StepFailed
		step.Error = "transaction failed on-chain"
	default:
		entry.mu.Unlock()
		return
	}

	if err := e.store.Save(pipeline.UserID, pipeline); err != nil {
		e.logger.Error("persisting webhook result failed", "pipeline", pipeline.ID, "step", step.ID, "error", err)
	}
	e.checkCompletion(pipeline)
	entry.mu.Unlock()

	// The confirmed/failed step may have advanced the frontier with a new
	// root that is immediately satisfiable (e.g. a Now condition); give it
	// one evaluation pass without waiting for the next price tick.
	e.evaluatePipeline(ctx, ref.pipelineID)
}
