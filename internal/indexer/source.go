// Package indexer implements the Swap Indexer (C9): it pulls raw
// transactions from a chain-specific Source, runs them through the Swap
// Decoder (C7) and Price Deriver (C8), and publishes the resulting price
// updates on the Price Bus (C1).
package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/orbitengine/pipeline/internal/swap"
)

// Source is C9's pluggable transaction feed. Implementations range from a
// push-style reconnecting stream to a fixed-interval poller; Pipeline
// treats both identically, reading the swap.RawTransaction values the
// source sends on Run's out channel until the context is cancelled or the
// source is exhausted.
type Source interface {
	// Run starts the source's feed loop, sending every observed
	// transaction to out, and returns when ctx is cancelled or the feed
	// fails unrecoverably. Run does not close out.
	Run(ctx context.Context, out chan<- swap.RawTransaction) error
}

// WebSocketSource is a push-style Source backed by a streaming
// subscription, reconnecting with exponential backoff on disconnect — the
// Go analogue of the teacher's rpc.WebSocketRPCClient, generalized from a
// JSON-RPC request/response client to a one-directional transaction feed.
type WebSocketSource struct {
	// Dial opens one subscription attempt, returning a channel of raw
	// transactions that closes when the underlying connection drops.
	// Callers supply Dial rather than a URL so the concrete wire
	// transport (gorilla/websocket, a chain RPC SDK, a test fake) stays
	// outside this package.
	Dial func(ctx context.Context) (<-chan swap.RawTransaction, error)

	// ReconnectBackoff is the initial delay before the first reconnect
	// attempt; it doubles on each consecutive failure up to
	// MaxReconnectInterval, mirroring WebSocketRPCClient.reconnect.
	ReconnectBackoff     time.Duration
	MaxReconnectInterval time.Duration

	Logger *slog.Logger
}

// DefaultReconnectBackoff and DefaultMaxReconnectInterval match the
// teacher's WebSocketRPCClient defaults.
const (
	DefaultReconnectBackoff     = 1 * time.Second
	DefaultMaxReconnectInterval = 60 * time.Second
)

// Run dials Dial, forwards every transaction it yields to out, and
// reconnects with exponential backoff whenever the stream channel closes,
// until ctx is cancelled.
func (s *WebSocketSource) Run(ctx context.Context, out chan<- swap.RawTransaction) error {
	backoff := s.ReconnectBackoff
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}
	maxInterval := s.MaxReconnectInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxReconnectInterval
	}
	current := backoff

	for {
		stream, err := s.Dial(ctx)
		if err != nil {
			if s.logger().Enabled(ctx, slog.LevelWarn) {
				s.logger().Warn("indexer websocket dial failed", "error", err, "retry_in", current)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(current):
			}
			current *= 2
			if current > maxInterval {
				current = maxInterval
			}
			continue
		}

		// Connected: reset backoff for the next disconnect.
		current = backoff

	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tx, ok := <-stream:
				if !ok {
					s.logger().Info("indexer websocket stream closed, reconnecting")
					break drain
				}
				select {
				case out <- tx:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *WebSocketSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// PollingSource is a pull-style Source that fetches new transactions on a
// fixed interval, for chains or providers without a push subscription.
type PollingSource struct {
	Interval time.Duration

	// Fetch returns every new transaction observed since the previous
	// call (implementations track their own cursor/slot watermark).
	Fetch func(ctx context.Context) ([]swap.RawTransaction, error)

	Logger *slog.Logger
}

// Run polls Fetch every Interval, forwarding each returned transaction to
// out, until ctx is cancelled. A Fetch error is logged and the loop
// continues on the next tick rather than aborting, since a single failed
// poll (e.g. a transient RPC timeout) should not take the source down.
func (s *PollingSource) Run(ctx context.Context, out chan<- swap.RawTransaction) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			txs, err := s.Fetch(ctx)
			if err != nil {
				s.logger().Warn("indexer poll failed", "error", err)
				continue
			}
			for _, tx := range txs {
				select {
				case out <- tx:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *PollingSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
