// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package factory

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/private-mev-research/Algebra/dex"
)

var (
	tokenA = dex.Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000a01")}
	tokenB = dex.Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000b02")}
	admin  = common.HexToAddress("0x0000000000000000000000000000000000000055")
	rando  = common.HexToAddress("0x0000000000000000000000000000000000000066")
)

func TestCreatePool(t *testing.T) {
	f := New(admin, WithClock(&dex.ManualClock{Time: 1_700_000_000, Block: 1}))

	pool, err := f.CreatePool(tokenA, tokenB, dex.TickSpacing030)
	require.NoError(t, err)
	require.Equal(t, dex.TickSpacing030, pool.TickSpacing())

	got, ok := f.Pool(dex.PoolKey{Currency0: tokenA, Currency1: tokenB})
	require.True(t, ok)
	require.Same(t, pool, got)
}

func TestCreatePoolRejectsUnsortedPair(t *testing.T) {
	f := New(admin)

	_, err := f.CreatePool(tokenB, tokenA, dex.TickSpacing030)
	require.ErrorIs(t, err, dex.ErrCurrencyNotSorted)
	_, err = f.CreatePool(tokenA, tokenA, dex.TickSpacing030)
	require.ErrorIs(t, err, dex.ErrCurrencyNotSorted)
}

func TestCreatePoolRejectsDuplicate(t *testing.T) {
	f := New(admin)

	_, err := f.CreatePool(tokenA, tokenB, dex.TickSpacing030)
	require.NoError(t, err)
	_, err = f.CreatePool(tokenA, tokenB, dex.TickSpacing005)
	require.ErrorIs(t, err, dex.ErrPoolExists)
}

func TestOwnership(t *testing.T) {
	f := New(admin)
	require.Equal(t, admin, f.Owner())

	require.ErrorIs(t, f.SetOwner(rando, rando), dex.ErrUnauthorized)
	require.NoError(t, f.SetOwner(admin, rando))
	require.Equal(t, rando, f.Owner())

	// The old owner lost its powers.
	require.ErrorIs(t, f.SetDefaultCommunityFee(admin, 100, 100), dex.ErrUnauthorized)
	require.NoError(t, f.SetDefaultCommunityFee(rando, 100, 100))
}

func TestDefaultCommunityFeeAppliesToNewPools(t *testing.T) {
	f := New(admin)
	require.ErrorIs(t, f.SetDefaultCommunityFee(admin, dex.MaxCommunityFee+1, 0),
		dex.ErrInvalidCommunityFee)
	require.NoError(t, f.SetDefaultCommunityFee(admin, 100, 200))

	pool, err := f.CreatePool(tokenA, tokenB, dex.TickSpacing030)
	require.NoError(t, err)
	state := pool.State()
	require.Equal(t, uint32(100), state.CommunityFee0)
	require.Equal(t, uint32(200), state.CommunityFee1)
}

func TestSetCommunityFeeOnExistingPool(t *testing.T) {
	f := New(admin)
	key := dex.PoolKey{Currency0: tokenA, Currency1: tokenB}

	require.ErrorIs(t, f.SetCommunityFee(admin, key, 50, 50), dex.ErrPoolNotInitialized)

	pool, err := f.CreatePool(tokenA, tokenB, dex.TickSpacing030)
	require.NoError(t, err)
	require.ErrorIs(t, f.SetCommunityFee(rando, key, 50, 50), dex.ErrUnauthorized)
	require.NoError(t, f.SetCommunityFee(admin, key, 50, 50))
	require.Equal(t, uint32(50), pool.State().CommunityFee0)
}

func TestPoolsShareTheVault(t *testing.T) {
	f := New(admin, WithClock(&dex.ManualClock{Time: 1_700_000_000, Block: 1}))
	pool, err := f.CreatePool(tokenA, tokenB, dex.TickSpacing030)
	require.NoError(t, err)
	require.NoError(t, pool.Initialize(new(big.Int).Set(dex.Q96)))

	vault := f.Vault()
	_, _, _, err = pool.Mint(admin, -600, 600, big.NewInt(1_000_000),
		func(a0, a1 *big.Int) error {
			if err := vault.Credit(tokenA, a0); err != nil {
				return err
			}
			return vault.Credit(tokenB, a1)
		})
	require.NoError(t, err)
	require.Positive(t, vault.Balance(tokenA).Sign())
	require.Positive(t, vault.Balance(tokenB).Sign())
}
