// Package engine implements the Pipeline Engine (C6): owns every active
// pipeline, subscribes to the Price Bus (C1), evaluates pipelines via the
// Condition Evaluator (C5), advances the step DAG, persists via the
// Pipeline Store (C2), and dispatches via the Wallet Gateway (C4).
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitengine/pipeline/internal/blockhash"
	"github.com/orbitengine/pipeline/internal/bus"
	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/notifier"
	"github.com/orbitengine/pipeline/internal/orderplanner"
	"github.com/orbitengine/pipeline/internal/store"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// pipelineEntry pairs a pipeline with the lock serializing its mutation,
// the Go analogue of the teacher's ProviderRegistry cache entries and of
// the original's Arc<RwLock<Pipeline>> per-pipeline cell.
type pipelineEntry struct {
	mu       sync.RWMutex
	pipeline *model.Pipeline
}

// Engine is the C6 orchestrator.
type Engine struct {
	store     store.Store
	gateway   wallet.Gateway
	planner   orderplanner.Planner
	notifier  notifier.Notifier
	blockhash *blockhash.Cache
	logger    *slog.Logger

	// registryMu guards structural changes to active/byAsset (insertion,
	// deletion of whole pipelines); it is never held across a full
	// evaluate-pipeline protocol, only around map structure changes.
	registryMu sync.RWMutex
	active     map[uuid.UUID]*pipelineEntry
	byAsset    map[model.Asset]map[uuid.UUID]struct{}

	pricesMu      sync.RWMutex
	currentPrices model.PriceSnapshot

	// txIndex maps a dispatched transaction hash back to (pipeline, step)
	// so the webhook path (C6's transaction_updates handler) can resolve
	// which step a confirmation belongs to without scanning every
	// pipeline.
	txIndexMu sync.RWMutex
	txIndex   map[string]stepRef

	metrics *Metrics
}

type stepRef struct {
	pipelineID uuid.UUID
	stepID     uuid.UUID
}

// Config bundles the Engine's collaborators.
type Config struct {
	Store     store.Store
	Gateway   wallet.Gateway
	Planner   orderplanner.Planner
	Notifier  notifier.Notifier
	Blockhash *blockhash.Cache
	Logger    *slog.Logger
	Metrics   *Metrics
}

// New constructs an Engine with empty in-memory state. Pipelines must be
// reloaded from the store (e.g. via LoadAll) before the evaluation loop
// starts, matching the original's own "hydrate active_pipelines from Redis
// on boot" behavior.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Engine{
		store:         cfg.Store,
		gateway:       cfg.Gateway,
		planner:       cfg.Planner,
		notifier:      cfg.Notifier,
		blockhash:     cfg.Blockhash,
		logger:        logger,
		active:        make(map[uuid.UUID]*pipelineEntry),
		byAsset:       make(map[model.Asset]map[uuid.UUID]struct{}),
		currentPrices: make(model.PriceSnapshot),
		txIndex:       make(map[string]stepRef),
		metrics:       metrics,
	}
}

// indexAssets walks every step's condition tree and registers the
// pipeline under each referenced asset in byAsset, mirroring the
// original's extract_assets/collect_assets_from_condition (collect.rs).
func (e *Engine) indexAssets(id uuid.UUID, pipeline *model.Pipeline) {
	assetSet := make(map[model.Asset]struct{})
	for _, step := range pipeline.Steps {
		for _, asset := range model.Assets(step.Conditions) {
			assetSet[asset] = struct{}{}
		}
	}

	e.registryMu.Lock()
	defer e.registryMu.Unlock()
	for asset := range assetSet {
		ids, ok := e.byAsset[asset]
		if !ok {
			ids = make(map[uuid.UUID]struct{})
			e.byAsset[asset] = ids
		}
		ids[id] = struct{}{}
	}
}

func (e *Engine) deindexPipeline(id uuid.UUID) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()
	for asset, ids := range e.byAsset {
		delete(ids, id)
		if len(ids) == 0 {
			delete(e.byAsset, asset)
		}
	}
}

func (e *Engine) registerTxHash(hash string, ref stepRef) {
	if hash == "" {
		return
	}
	e.txIndexMu.Lock()
	e.txIndex[hash] = ref
	e.txIndexMu.Unlock()
}

func (e *Engine) lookupTxHash(hash string) (stepRef, bool) {
	e.txIndexMu.RLock()
	defer e.txIndexMu.RUnlock()
	ref, ok := e.txIndex[hash]
	return ref, ok
}

// RunPriceBus consumes price_updates from bus b until ctx is cancelled,
// the single long-lived consumer goroutine spec.md §4.6 describes. If the
// bus drops this subscriber for falling behind, it resubscribes.
func (e *Engine) RunPriceBus(ctx context.Context, b *bus.Bus) {
	updates, cancel := b.SubscribePrices()
	defer func() { cancel() }()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				updates, cancel = b.SubscribePrices()
				continue
			}
			e.OnPriceUpdate(ctx, update)
		}
	}
}

// RunTransactionBus consumes transaction_updates from bus b until ctx is
// cancelled, the webhook path of spec.md §4.6. If the bus drops this
// subscriber for falling behind, it resubscribes.
func (e *Engine) RunTransactionBus(ctx context.Context, b *bus.Bus) {
	updates, cancel := b.SubscribeTransactions()
	defer func() { cancel() }()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				updates, cancel = b.SubscribeTransactions()
				continue
			}
			e.OnTransactionUpdate(ctx, update)
		}
	}
}

// OnPriceUpdate updates current_prices and re-evaluates every pipeline
// subscribed to the updated asset (plus every Now-subscribed pipeline),
// per spec.md §4.6's evaluation loop steps 1–3.
func (e *Engine) OnPriceUpdate(ctx context.Context, update bus.PriceUpdate) {
	asset := model.Asset(update.Asset)
	e.pricesMu.Lock()
	e.currentPrices[asset] = update.Price
	e.pricesMu.Unlock()

	candidates := e.candidatesFor(asset)

	var wg sync.WaitGroup
	for _, id := range candidates {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			e.evaluatePipeline(ctx, id)
		}(id)
	}
	wg.Wait()
}

func (e *Engine) candidatesFor(asset model.Asset) []uuid.UUID {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	for id := range e.byAsset[asset] {
		seen[id] = struct{}{}
	}
	for id := range e.byAsset[model.NowAsset] {
		seen[id] = struct{}{}
	}

	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func (e *Engine) priceSnapshot() model.PriceSnapshot {
	e.pricesMu.RLock()
	defer e.pricesMu.RUnlock()
	snapshot := make(model.PriceSnapshot, len(e.currentPrices))
	for k, v := range e.currentPrices {
		snapshot[k] = v
	}
	return snapshot
}
