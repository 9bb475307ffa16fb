package blockhash_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/blockhash"
)

type fakeClient struct {
	hash   solana.Hash
	height uint64
	calls  int
	err    error
}

func newFakeClient(hash solana.Hash, height uint64) *fakeClient {
	return &fakeClient{hash: hash, height: height}
}

func (f *fakeClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            f.hash,
			LastValidBlockHeight: f.height,
		},
	}, nil
}

func TestCache_StartPopulatesEntry(t *testing.T) {
	var hash solana.Hash
	copy(hash[:], []byte("11111111111111111111111111111111"))
	client := newFakeClient(hash, 1000)
	c := blockhash.New(client, blockhash.Config{RefreshInterval: time.Hour, StaleAfter: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	entry, err := c.GetBlockhash()
	require.NoError(t, err)
	assert.Equal(t, hash, entry.Hash)
	assert.Equal(t, uint64(1000), entry.LastValidBlockHeight)
	assert.Equal(t, 1, client.calls)
}

func TestCache_StaleAfterThreshold(t *testing.T) {
	var hash solana.Hash
	client := newFakeClient(hash, 1)
	c := blockhash.New(client, blockhash.Config{RefreshInterval: time.Hour, StaleAfter: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	time.Sleep(20 * time.Millisecond)
	_, err := c.GetBlockhash()
	assert.ErrorIs(t, err, blockhash.ErrStale)
}

func TestCache_NeverFetchedIsStale(t *testing.T) {
	client := newFakeClient(solana.Hash{}, 1)
	client.err = errors.New("rpc unreachable")
	c := blockhash.New(client, blockhash.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := c.Start(ctx)
	require.Error(t, err)

	_, getErr := c.GetBlockhash()
	assert.ErrorIs(t, getErr, blockhash.ErrStale)
}

func TestCache_RefreshesOnTicker(t *testing.T) {
	var hashA, hashB solana.Hash
	copy(hashA[:], []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	copy(hashB[:], []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	client := newFakeClient(hashA, 1)
	c := blockhash.New(client, blockhash.Config{RefreshInterval: 15 * time.Millisecond, StaleAfter: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	client.hash = hashB
	time.Sleep(50 * time.Millisecond)

	entry, err := c.GetBlockhash()
	require.NoError(t, err)
	assert.Equal(t, hashB, entry.Hash)
	assert.GreaterOrEqual(t, client.calls, 2)
}
