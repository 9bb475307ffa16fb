// Package blockhash implements the Blockhash Cache (C3): a background-
// refreshed view of the svm family's latest blockhash, used by the wallet
// gateway's svm adapter to stamp transactions before signing.
package blockhash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrStale is returned by GetBlockhash when the cached value is older than
// the configured staleness threshold and no refresh has landed since.
var ErrStale = errors.New("blockhash: cached value is stale")

// Entry is the cached blockhash plus the slot height it remains valid to.
type Entry struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
	FetchedAt            time.Time
}

// Client is the subset of solana-go's rpc.Client the cache depends on,
// narrowed for substitution in tests.
type Client interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// Cache polls an svm RPC endpoint on a ticker and serves the latest
// blockhash from memory, matching the teacher's registry-singleton shape
// (internal/provider/registry.go) but specialized to a single refreshed
// value instead of a keyed instance cache.
type Cache struct {
	client     Client
	interval   time.Duration
	staleAfter time.Duration
	commitment rpc.CommitmentType

	mu      sync.RWMutex
	current *Entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config controls refresh cadence and staleness tolerance.
type Config struct {
	RefreshInterval time.Duration
	StaleAfter      time.Duration
	Commitment      rpc.CommitmentType
}

// DefaultConfig matches the ~400ms svm slot time: refresh every 2s, treat
// anything older than 30s (per spec.md's staleness threshold) as stale.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 2 * time.Second,
		StaleAfter:      30 * time.Second,
		Commitment:      rpc.CommitmentFinalized,
	}
}

// New creates a Cache. Call Start to begin background refresh.
func New(client Client, cfg Config) *Cache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultConfig().Commitment
	}
	return &Cache{
		client:     client,
		interval:   cfg.RefreshInterval,
		staleAfter: cfg.StaleAfter,
		commitment: cfg.Commitment,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start performs a blocking initial refresh, then refreshes on a ticker
// until the context is cancelled or Stop is called.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("blockhash: initial refresh failed: %w", err)
	}
	go c.loop(ctx)
	return nil
}

func (c *Cache) loop(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			_ = c.refresh(ctx)
		}
	}
}

func (c *Cache) refresh(ctx context.Context) error {
	result, err := c.client.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return err
	}
	entry := &Entry{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
		FetchedAt:            time.Now().UTC(),
	}
	c.mu.Lock()
	c.current = entry
	c.mu.Unlock()
	return nil
}

// Stop halts the background refresh loop and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// GetBlockhash returns the cached entry, or ErrStale if it has not been
// refreshed within the staleness threshold (or never fetched at all).
func (c *Cache) GetBlockhash() (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Entry{}, ErrStale
	}
	if time.Since(c.current.FetchedAt) > c.staleAfter {
		return Entry{}, ErrStale
	}
	return *c.current, nil
}
