package priced_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/priced"
	"github.com/orbitengine/pipeline/internal/swap"
)

type fakeMetadata struct {
	byMint map[string]priced.MintMetadata
}

func (f *fakeMetadata) Lookup(mint string) (priced.MintMetadata, bool) {
	m, ok := f.byMint[mint]
	return m, ok
}

func newDeriver(basePrice float64, supply *float64) *priced.Deriver {
	meta := &fakeMetadata{byMint: map[string]priced.MintMetadata{
		priced.BaseMint: {Decimals: 9},
		"mint-quote":    {Decimals: 6, Supply: supply},
	}}
	d := priced.New(meta)
	d.SetBasePrice(basePrice)
	return d
}

func TestDeriver_DerivesPriceFromBaseLeg(t *testing.T) {
	d := newDeriver(150.0, nil)

	// 1 SOL (9 decimals) swapped for 150 USDC (6 decimals) at a base
	// price of $150/SOL should price the quote mint at $1.
	s := swap.NormalizedSwap{
		BaseMint:   priced.BaseMint,
		QuoteMint:  "mint-quote",
		BaseDelta:  1_000_000_000,
		QuoteDelta: -150_000_000,
		Timestamp:  time.Unix(1700000000, 0),
	}

	update, ok := d.Derive(s)
	require.True(t, ok)
	assert.Equal(t, "mint-quote", update.Mint)
	assert.InDelta(t, 1.0, update.Price, 1e-9)
	assert.Nil(t, update.MarketCap)
}

func TestDeriver_SymmetricWhenBaseIsQuoteLeg(t *testing.T) {
	d := newDeriver(150.0, nil)

	s := swap.NormalizedSwap{
		BaseMint:   "mint-quote",
		QuoteMint:  priced.BaseMint,
		BaseDelta:  -150_000_000,
		QuoteDelta: 1_000_000_000,
	}

	update, ok := d.Derive(s)
	require.True(t, ok)
	assert.Equal(t, "mint-quote", update.Mint)
	assert.InDelta(t, 1.0, update.Price, 1e-9)
}

func TestDeriver_InterTokenSwapIsSkipped(t *testing.T) {
	d := newDeriver(150.0, nil)
	s := swap.NormalizedSwap{BaseMint: "mint-a", QuoteMint: "mint-b", BaseDelta: 1, QuoteDelta: -1}

	_, ok := d.Derive(s)
	assert.False(t, ok)
}

func TestDeriver_UnknownBasePriceSkipsDerivation(t *testing.T) {
	meta := &fakeMetadata{byMint: map[string]priced.MintMetadata{}}
	d := priced.New(meta)

	s := swap.NormalizedSwap{BaseMint: priced.BaseMint, QuoteMint: "mint-quote", BaseDelta: 1, QuoteDelta: -1000}
	_, ok := d.Derive(s)
	assert.False(t, ok)
}

func TestDeriver_ComputesMarketCapWhenSupplyKnown(t *testing.T) {
	supply := 5_000_000_000.0 // raw units, 6 decimals -> 5000 UI supply
	d := newDeriver(150.0, &supply)

	s := swap.NormalizedSwap{
		BaseMint:   priced.BaseMint,
		QuoteMint:  "mint-quote",
		BaseDelta:  1_000_000_000,
		QuoteDelta: -150_000_000,
	}

	update, ok := d.Derive(s)
	require.True(t, ok)
	require.NotNil(t, update.MarketCap)
	assert.InDelta(t, 5000.0, *update.MarketCap, 1e-6)
}

func TestDeriver_UnknownMintMetadataSkipsDerivation(t *testing.T) {
	meta := &fakeMetadata{byMint: map[string]priced.MintMetadata{priced.BaseMint: {Decimals: 9}}}
	d := priced.New(meta)
	d.SetBasePrice(150.0)

	s := swap.NormalizedSwap{BaseMint: priced.BaseMint, QuoteMint: "mint-unknown", BaseDelta: 1, QuoteDelta: -1000}
	_, ok := d.Derive(s)
	assert.False(t, ok)
}
