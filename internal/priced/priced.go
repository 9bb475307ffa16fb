// Package priced implements the Price Deriver (C8): given a NormalizedSwap
// and a rolling reference price for the canonical base asset, it derives a
// per-mint price update in reference-unit terms, adjusted for decimals,
// grounded on the teacher corpus's own Price/PriceUpdate shape
// (original_source/listen-data-service/src/price.rs).
package priced

import (
	"math"
	"sync"

	"github.com/orbitengine/pipeline/internal/swap"
)

// BaseMint is the svm family's native asset mint — the reference asset
// C8's ratio derivation is anchored to, pinned from constants.rs's
// WSOL_MINT_KEY_STR (wrapped SOL is the corpus's universal AMM quote leg).
const BaseMint = "So11111111111111111111111111111111111111112"

// MintMetadata supplies the per-mint facts a ratio derivation needs beyond
// the swap record itself: decimal places (required) and circulating
// supply (optional — when absent, market cap is omitted per spec.md
// §4.8).
type MintMetadata struct {
	Decimals uint8
	Supply   *float64
}

// MetadataSource resolves a mint's MintMetadata. Implementations may hit
// an external token-metadata service; ok=false means "unknown mint",
// which causes the swap to be skipped rather than priced with guessed
// decimals.
type MetadataSource interface {
	Lookup(mint string) (MintMetadata, bool)
}

// PriceUpdate is C8's output record, matching bus.PriceUpdate's wire shape
// (and the original's listen-data-service price.rs PriceUpdate) exactly.
type PriceUpdate struct {
	Mint      string
	Price     float64
	MarketCap *float64
	Timestamp int64
}

// Deriver maintains the rolling base-asset reference price and turns
// NormalizedSwap records into PriceUpdates.
type Deriver struct {
	mu        sync.RWMutex
	basePrice float64

	metadata MetadataSource
}

// New builds a Deriver with metadata as its MintMetadata source.
func New(metadata MetadataSource) *Deriver {
	return &Deriver{metadata: metadata}
}

// SetBasePrice updates the rolling reference price for BaseMint, typically
// fed from an external spot feed on its own cadence.
func (d *Deriver) SetBasePrice(price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.basePrice = price
}

func (d *Deriver) basePriceSnapshot() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.basePrice
}

// Derive turns one NormalizedSwap into a PriceUpdate for whichever mint is
// not the base asset. If neither leg is the base mint the swap is
// inter-token and is skipped (ok=false) per spec.md §4.8. If the base
// price is not yet known, or the priced mint's metadata is unavailable,
// the swap is also skipped.
func (d *Deriver) Derive(s swap.NormalizedSwap) (PriceUpdate, bool) {
	basePrice := d.basePriceSnapshot()
	if basePrice <= 0 {
		return PriceUpdate{}, false
	}

	var pricedMint string
	var ratio float64 // |base delta / quote delta|, the priced mint's per-unit value in base-asset terms

	switch {
	case s.BaseMint == BaseMint && s.QuoteMint != BaseMint:
		pricedMint = s.QuoteMint
		if s.QuoteDelta == 0 {
			return PriceUpdate{}, false
		}
		ratio = math.Abs(s.BaseDelta / s.QuoteDelta)
	case s.QuoteMint == BaseMint && s.BaseMint != BaseMint:
		pricedMint = s.BaseMint
		if s.BaseDelta == 0 {
			return PriceUpdate{}, false
		}
		ratio = math.Abs(s.QuoteDelta / s.BaseDelta)
	default:
		// Neither leg is the base asset (inter-token), or both are —
		// either way there is nothing to price against.
		return PriceUpdate{}, false
	}

	meta, ok := d.metadata.Lookup(pricedMint)
	if !ok {
		return PriceUpdate{}, false
	}

	baseMeta, ok := d.metadata.Lookup(BaseMint)
	if !ok {
		return PriceUpdate{}, false
	}

	decimalAdjustment := math.Pow10(int(baseMeta.Decimals) - int(meta.Decimals))
	price := (ratio * basePrice) / decimalAdjustment

	var marketCap *float64
	if meta.Supply != nil {
		mc := price * (*meta.Supply) / math.Pow10(int(meta.Decimals))
		marketCap = &mc
	}

	return PriceUpdate{
		Mint:      pricedMint,
		Price:     price,
		MarketCap: marketCap,
		Timestamp: s.Timestamp.Unix(),
	}, true
}
