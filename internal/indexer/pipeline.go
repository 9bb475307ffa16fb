package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/orbitengine/pipeline/internal/bus"
	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/priced"
	"github.com/orbitengine/pipeline/internal/swap"
)

// Publisher is the slice of the Price Bus (C1) the pipeline needs: a
// non-blocking publish of one price update per Asset.
type Publisher interface {
	PublishPrice(update bus.PriceUpdate)
}

// Metrics records the operator-visible counters C9 owns. A nil Metrics on
// Config is a silent no-op.
type Metrics interface {
	IncTransactionsReceived()
	IncPublishDropped()
}

// Config bundles Pipeline's dependencies.
type Config struct {
	Source   Source
	Decoder  *swap.Decoder
	Deriver  *priced.Deriver
	Bus      Publisher
	Metrics  Metrics
	Logger   *slog.Logger

	// PublishTimeout bounds how long Pipeline waits for a blocked
	// Publisher before logging and dropping the update, per spec.md
	// §4.9's soft backpressure limit. Zero uses DefaultPublishTimeout.
	PublishTimeout time.Duration

	// QueueSize bounds the channel between Source and the decode/derive
	// loop. Zero uses DefaultQueueSize.
	QueueSize int
}

// DefaultPublishTimeout and DefaultQueueSize are C9's backpressure
// defaults: generous enough that a brief downstream stall doesn't drop
// data, short enough that a stuck subscriber doesn't stall the indexer.
const (
	DefaultPublishTimeout = 50 * time.Millisecond
	DefaultQueueSize      = 1024
)

// Pipeline is C9: it owns a Source's feed loop and, for every raw
// transaction observed, runs it through the Swap Decoder (C7) and Price
// Deriver (C8), publishing any resulting price update to the Price Bus
// (C1).
type Pipeline struct {
	cfg Config
}

// New builds a Pipeline. Decoder and Deriver must be non-nil; Source and
// Bus must be non-nil.
func New(cfg Config) *Pipeline {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

// Run starts the source's feed loop and the decode/derive/publish loop,
// blocking until ctx is cancelled or the source returns unrecoverably.
func (p *Pipeline) Run(ctx context.Context) error {
	txs := make(chan swap.RawTransaction, p.cfg.QueueSize)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.cfg.Source.Run(ctx, txs)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case tx := <-txs:
			p.process(ctx, tx)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, tx swap.RawTransaction) {
	p.incTransactionsReceived()

	for _, normalized := range p.cfg.Decoder.Decode(tx) {
		update, ok := p.cfg.Deriver.Derive(normalized)
		if !ok {
			continue
		}
		p.publish(ctx, bus.PriceUpdate{
			Asset:     model.Asset(update.Mint),
			Price:     update.Price,
			MarketCap: update.MarketCap,
			Timestamp: update.Timestamp,
		})
	}
}

// publish hands update to the bus, giving a blocked publisher up to
// PublishTimeout before logging and dropping it — the soft backpressure
// limit spec.md §4.9 calls for. bus.Bus.PublishPrice itself never blocks
// (it drops slow subscribers), so this timeout guards against a Publisher
// implementation that does block (e.g. one fronted by a synchronous
// write-through cache).
func (p *Pipeline) publish(ctx context.Context, update bus.PriceUpdate) {
	done := make(chan struct{})
	go func() {
		p.cfg.Bus.PublishPrice(update)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.PublishTimeout):
		p.cfg.Logger.Warn("price publish exceeded soft limit, dropping", "asset", update.Asset)
		p.incPublishDropped()
	case <-ctx.Done():
	}
}

func (p *Pipeline) incTransactionsReceived() {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.IncTransactionsReceived()
	}
}

func (p *Pipeline) incPublishDropped() {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.IncPublishDropped()
	}
}
