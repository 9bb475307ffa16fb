package indexer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/bus"
	"github.com/orbitengine/pipeline/internal/indexer"
	"github.com/orbitengine/pipeline/internal/priced"
	"github.com/orbitengine/pipeline/internal/swap"
)

type fakeSource struct {
	txs []swap.RawTransaction
}

func (s *fakeSource) Run(ctx context.Context, out chan<- swap.RawTransaction) error {
	for _, tx := range s.txs {
		select {
		case out <- tx:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeBus struct {
	mu        sync.Mutex
	published []bus.PriceUpdate
	block     chan struct{}
}

func (b *fakeBus) PublishPrice(update bus.PriceUpdate) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, update)
}

func (b *fakeBus) snapshot() []bus.PriceUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bus.PriceUpdate, len(b.published))
	copy(out, b.published)
	return out
}

type fakeMetadata struct{}

func (fakeMetadata) Lookup(mint string) (priced.MintMetadata, bool) {
	if mint == priced.BaseMint {
		return priced.MintMetadata{Decimals: 9}, true
	}
	return priced.MintMetadata{Decimals: 6}, true
}

func raydiumTx(baseDelta, quoteDelta float64) swap.RawTransaction {
	return swap.RawTransaction{
		Signature:   "sig",
		PoolAddress: "pool",
		Instructions: []swap.Instruction{{
			ProgramID:    swap.ProgramRaydiumAMMV4,
			Discriminant: [8]byte{9},
			Deltas: []swap.TokenDelta{
				{Mint: priced.BaseMint, Delta: baseDelta},
				{Mint: "mint-quote", Delta: quoteDelta},
			},
		}},
	}
}

func newDeriver() *priced.Deriver {
	d := priced.New(fakeMetadata{})
	d.SetBasePrice(150.0)
	return d
}

func TestPipeline_DecodesDerivesAndPublishes(t *testing.T) {
	src := &fakeSource{txs: []swap.RawTransaction{raydiumTx(1_000_000_000, -150_000_000)}}
	b := &fakeBus{}
	p := indexer.New(indexer.Config{
		Source:  src,
		Decoder: swap.New(swap.Config{}),
		Deriver: newDeriver(),
		Bus:     b,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	published := b.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, "mint-quote", string(published[0].Asset))
	assert.InDelta(t, 1.0, published[0].Price, 1e-9)
}

func TestPipeline_SkipsTransactionsWithNoDecodableSwap(t *testing.T) {
	tx := raydiumTx(1, -1)
	tx.Instructions[0].ProgramID = "unknown-program"
	src := &fakeSource{txs: []swap.RawTransaction{tx}}
	b := &fakeBus{}
	p := indexer.New(indexer.Config{
		Source:  src,
		Decoder: swap.New(swap.Config{}),
		Deriver: newDeriver(),
		Bus:     b,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	assert.Empty(t, b.snapshot())
}

type countingMetrics struct {
	mu              sync.Mutex
	received        int
	publishDropped  int
}

func (m *countingMetrics) IncTransactionsReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
}

func (m *countingMetrics) IncPublishDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishDropped++
}

func (m *countingMetrics) snapshot() (received, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received, m.publishDropped
}

// S6-adjacent boundary scenario for C9: when the bus blocks past the
// soft publish timeout, the pipeline logs and drops rather than stalling
// the whole feed, per spec.md §4.9.
func TestPipeline_DropsOnBlockedPublisherPastSoftLimit(t *testing.T) {
	src := &fakeSource{txs: []swap.RawTransaction{raydiumTx(1_000_000_000, -150_000_000)}}
	b := &fakeBus{block: make(chan struct{})} // never unblocked within the test
	metrics := &countingMetrics{}
	p := indexer.New(indexer.Config{
		Source:         src,
		Decoder:        swap.New(swap.Config{}),
		Deriver:        newDeriver(),
		Bus:            b,
		Metrics:        metrics,
		PublishTimeout: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	_, dropped := metrics.snapshot()
	assert.Equal(t, 1, dropped)
	assert.Empty(t, b.snapshot())
}

func TestWebSocketSource_ReconnectsAfterStreamCloses(t *testing.T) {
	var attempts int
	var mu sync.Mutex

	src := &indexer.WebSocketSource{
		ReconnectBackoff:     5 * time.Millisecond,
		MaxReconnectInterval: 20 * time.Millisecond,
		Dial: func(ctx context.Context) (<-chan swap.RawTransaction, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()

			ch := make(chan swap.RawTransaction, 1)
			if n == 1 {
				ch <- raydiumTx(1, -1)
				close(ch) // first connection drops immediately after one message
				return ch, nil
			}
			// second connection stays open until ctx is cancelled
			go func() {
				<-ctx.Done()
			}()
			return ch, nil
		},
	}

	out := make(chan swap.RawTransaction, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_ = src.Run(ctx, out)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2, "source must reconnect after the stream closes")
}

func TestWebSocketSource_RetriesDialErrors(t *testing.T) {
	var attempts int
	var mu sync.Mutex

	src := &indexer.WebSocketSource{
		ReconnectBackoff:     5 * time.Millisecond,
		MaxReconnectInterval: 10 * time.Millisecond,
		Dial: func(ctx context.Context) (<-chan swap.RawTransaction, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			return nil, errors.New("dial failed")
		},
	}

	out := make(chan swap.RawTransaction, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = src.Run(ctx, out)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestPollingSource_FetchesOnEveryTick(t *testing.T) {
	var calls int
	var mu sync.Mutex

	src := &indexer.PollingSource{
		Interval: 10 * time.Millisecond,
		Fetch: func(ctx context.Context) ([]swap.RawTransaction, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return []swap.RawTransaction{raydiumTx(1, -1)}, nil
		},
	}

	out := make(chan swap.RawTransaction, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	_ = src.Run(ctx, out)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2)
	assert.GreaterOrEqual(t, len(out), 2)
}

func TestPollingSource_ContinuesAfterFetchError(t *testing.T) {
	var calls int
	var mu sync.Mutex

	src := &indexer.PollingSource{
		Interval: 10 * time.Millisecond,
		Fetch: func(ctx context.Context) ([]swap.RawTransaction, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return nil, errors.New("transient")
			}
			return []swap.RawTransaction{raydiumTx(1, -1)}, nil
		},
	}

	out := make(chan swap.RawTransaction, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()

	_ = src.Run(ctx, out)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2)
	assert.NotEmpty(t, out)
}
