package ledger

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), StoreConfig{
		Path: filepath.Join(t.TempDir(), "positions.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func usdt(t *testing.T) asset.Descriptor {
	t.Helper()
	a, err := asset.Default().Resolve("USDT")
	require.NoError(t, err)
	return a
}

func TestAccumulate_CreatesOnFirstBuy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := usdt(t)

	pos, err := store.Accumulate(ctx, "wallet-1", a, big.NewInt(10_000_000))
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "wallet-1", pos.WalletID)
	assert.Equal(t, a.AssetID, pos.AssetID)
	assert.Equal(t, "USDT", pos.AssetSymbol)
	assert.Equal(t, uint8(6), pos.Decimals)
	assert.Equal(t, "10000000", pos.Amount.String())
	assert.Equal(t, "10", pos.HumanAmount())
}

func TestAccumulate_AddsOnSubsequentBuys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := usdt(t)

	deltas := []int64{10_000_000, 2_500_000, 1}
	var want int64
	var first *Position
	for _, d := range deltas {
		pos, err := store.Accumulate(ctx, "wallet-1", a, big.NewInt(d))
		require.NoError(t, err)
		want += d
		assert.Equal(t, want, pos.Amount.Int64())
		if first == nil {
			first = pos
		} else {
			// Same position row, not a new one per buy.
			assert.Equal(t, first.ID, pos.ID)
		}
	}

	got, err := store.Get(ctx, "wallet-1", a.AssetID)
	require.NoError(t, err)
	assert.Equal(t, want, got.Amount.Int64())
}

func TestAccumulate_ExceedsUint64(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := usdt(t)

	huge, ok := new(big.Int).SetString("18446744073709551615", 10) // max uint64
	require.True(t, ok)

	_, err := store.Accumulate(ctx, "wallet-1", a, huge)
	require.NoError(t, err)
	pos, err := store.Accumulate(ctx, "wallet-1", a, huge)
	require.NoError(t, err)

	want := new(big.Int).Add(huge, huge)
	assert.Equal(t, want.String(), pos.Amount.String())
}

func TestAccumulate_RejectsNonPositive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := usdt(t)

	_, err := store.Accumulate(ctx, "wallet-1", a, big.NewInt(0))
	assert.Error(t, err)
	_, err = store.Accumulate(ctx, "wallet-1", a, big.NewInt(-5))
	assert.Error(t, err)
	_, err = store.Accumulate(ctx, "wallet-1", a, nil)
	assert.Error(t, err)
}

func TestAccumulate_SeparateKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	catalog := asset.Default()
	u, err := catalog.Resolve("USDT")
	require.NoError(t, err)
	b, err := catalog.Resolve("BTC")
	require.NoError(t, err)

	_, err = store.Accumulate(ctx, "wallet-1", u, big.NewInt(100))
	require.NoError(t, err)
	_, err = store.Accumulate(ctx, "wallet-1", b, big.NewInt(200))
	require.NoError(t, err)
	_, err = store.Accumulate(ctx, "wallet-2", u, big.NewInt(300))
	require.NoError(t, err)

	positions, err := store.ListByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	// Ordered by symbol: BTC before USDT.
	assert.Equal(t, "BTC", positions[0].AssetSymbol)
	assert.Equal(t, int64(200), positions[0].Amount.Int64())
	assert.Equal(t, "USDT", positions[1].AssetSymbol)
	assert.Equal(t, int64(100), positions[1].Amount.Int64())

	other, err := store.Get(ctx, "wallet-2", u.AssetID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), other.Amount.Int64())
}

func TestAccumulate_ConcurrentSameKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := usdt(t)

	const goroutines = 8
	const perGoroutine = 25
	const delta = 1_000

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if _, err := store.Accumulate(ctx, "wallet-1", a, big.NewInt(delta)); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent accumulate failed: %v", err)
	}

	pos, err := store.Get(ctx, "wallet-1", a.AssetID)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine*delta), pos.Amount.Int64())
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nobody", "0x01")
	assert.ErrorIs(t, err, ErrNotFound)
}
