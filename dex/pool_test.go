// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

// fixedFeeOracle is a DataStorageOperator stub returning a constant fee.
type fixedFeeOracle struct {
	fee uint32
}

func (o *fixedFeeOracle) Write(index uint16, time uint32, tick int32, liquidity *big.Int) (uint16, error) {
	return index, nil
}

func (o *fixedFeeOracle) CurrentFee(time uint32, tick int32, index uint16, liquidity *big.Int) (uint32, error) {
	return o.fee, nil
}

var (
	testToken0 = Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000a01")}
	testToken1 = Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000b02")}
	testLP     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testTrader = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newTestPool(t *testing.T, fee uint32) (*Pool, *Vault, *ManualClock) {
	t.Helper()
	vault := NewVault()
	clock := &ManualClock{Time: 1_700_000_000, Block: 100}
	key := PoolKey{Currency0: testToken0, Currency1: testToken1}
	pool := NewPool(key, TickSpacing030, vault, &fixedFeeOracle{fee: fee}, WithClock(clock))
	return pool, vault, clock
}

// creditOwed fabricates token transfers in: whatever the pool asks for
// is credited straight to its reserves.
func creditOwed(v *Vault, key PoolKey) func(amount0, amount1 *big.Int) error {
	return func(amount0, amount1 *big.Int) error {
		if amount0 != nil && amount0.Sign() > 0 {
			if err := v.Credit(key.Currency0, amount0); err != nil {
				return err
			}
		}
		if amount1 != nil && amount1.Sign() > 0 {
			if err := v.Credit(key.Currency1, amount1); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestInitialize(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)

	_, _, _, err := pool.Mint(testLP, -600, 600, big.NewInt(1000), creditOwed(vault, pool.Key()))
	require.ErrorIs(t, err, ErrPoolNotInitialized)

	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	state := pool.State()
	require.True(t, state.Unlocked)
	require.Equal(t, int32(0), state.Tick)
	require.Equal(t, uint32(3000), state.Fee)
	require.Equal(t, MinTick, state.PrevInitializedTick)
	require.Zero(t, state.Price.Cmp(Q96))

	require.ErrorIs(t, pool.Initialize(new(big.Int).Set(Q96)), ErrPoolAlreadyInitialized)
}

func TestStateBeforeInitialize(t *testing.T) {
	pool, _, _ := newTestPool(t, 3000)

	state := pool.State()
	require.False(t, state.Unlocked)
	require.Zero(t, state.Price.Sign())
}

func TestInitializeRejectsBadPrice(t *testing.T) {
	pool, _, _ := newTestPool(t, 3000)
	require.ErrorIs(t, pool.Initialize(big.NewInt(1)), ErrInvalidSqrtPrice)
	require.ErrorIs(t, pool.Initialize(new(big.Int).Set(MaxSqrtRatio)), ErrInvalidSqrtPrice)
}

func TestSetCommunityFee(t *testing.T) {
	pool, _, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	require.ErrorIs(t, pool.SetCommunityFee(MaxCommunityFee+1, 0), ErrInvalidCommunityFee)
	require.ErrorIs(t, pool.SetCommunityFee(0, MaxCommunityFee+1), ErrInvalidCommunityFee)

	require.NoError(t, pool.SetCommunityFee(100, 250))
	state := pool.State()
	require.Equal(t, uint32(100), state.CommunityFee0)
	require.Equal(t, uint32(250), state.CommunityFee1)
}

func TestReentrancyBlocked(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	pay := creditOwed(vault, pool.Key())
	_, _, _, err := pool.Mint(testLP, -600, 600, big.NewInt(1_000_000), func(a0, a1 *big.Int) error {
		_, _, inner := pool.Swap(testTrader, true, big.NewInt(10), new(big.Int).Set(MinSqrtRatio), pay)
		require.ErrorIs(t, inner, ErrReentrant)
		return inner
	})
	require.ErrorIs(t, err, ErrReentrant)

	// The failed mint left nothing behind.
	require.Zero(t, pool.Liquidity().Sign())
}

func TestMintTickValidation(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))
	pay := creditOwed(vault, pool.Key())

	tests := []struct {
		name    string
		bottom  int32
		top     int32
		wantErr error
	}{
		{"inverted", 600, -600, ErrInvalidTickRange},
		{"empty", 60, 60, ErrInvalidTickRange},
		{"below min", MinTick - 60, 0, ErrTickOutOfRange},
		{"above max", 0, MaxTick + 60, ErrTickOutOfRange},
		{"unaligned bottom", -30, 600, ErrTickNotAligned},
		{"unaligned top", -600, 90, ErrTickNotAligned},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := pool.Mint(testLP, tc.bottom, tc.top, big.NewInt(1000), pay)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, _, _, err := pool.Mint(testLP, -600, 600, nil, pay)
	require.ErrorIs(t, err, ErrZeroLiquidityDesired)
	_, _, _, err = pool.Mint(testLP, -600, 600, big.NewInt(0), pay)
	require.ErrorIs(t, err, ErrZeroLiquidityDesired)
}

func TestMintBurnCollectRoundTrip(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))
	pay := creditOwed(vault, pool.Key())

	liquidity := big.NewInt(1_000_000)
	in0, in1, actual, err := pool.Mint(testLP, -600, 600, liquidity, pay)
	require.NoError(t, err)
	require.Zero(t, actual.Cmp(liquidity))
	require.Positive(t, in0.Sign())
	require.Positive(t, in1.Sign())
	require.Zero(t, pool.Liquidity().Cmp(liquidity))

	out0, out1, err := pool.Burn(testLP, -600, 600, liquidity)
	require.NoError(t, err)
	require.Zero(t, pool.Liquidity().Sign())

	// Withdrawal rounds down, deposit rounds up.
	require.LessOrEqual(t, out0.Cmp(in0), 0)
	require.LessOrEqual(t, out1.Cmp(in1), 0)
	require.LessOrEqual(t, new(big.Int).Sub(in0, out0).Int64(), int64(1))
	require.LessOrEqual(t, new(big.Int).Sub(in1, out1).Int64(), int64(1))

	paid0, paid1, err := pool.Collect(testLP, -600, 600, testLP, nil, nil)
	require.NoError(t, err)
	require.Zero(t, paid0.Cmp(out0))
	require.Zero(t, paid1.Cmp(out1))
	require.Zero(t, vault.AccountBalance(testLP, testToken0).Cmp(out0))
	require.Zero(t, vault.AccountBalance(testLP, testToken1).Cmp(out1))

	// Nothing left to collect.
	paid0, paid1, err = pool.Collect(testLP, -600, 600, testLP, nil, nil)
	require.NoError(t, err)
	require.Zero(t, paid0.Sign())
	require.Zero(t, paid1.Sign())
}

func TestMintScalesOnUnderpayment(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	desired := big.NewInt(1_000_000)
	_, _, actual, err := pool.Mint(testLP, -600, 600, desired, func(a0, a1 *big.Int) error {
		half := new(big.Int).Rsh(a0, 1)
		if err := vault.Credit(testToken0, half); err != nil {
			return err
		}
		return vault.Credit(testToken1, a1)
	})
	require.NoError(t, err)
	require.Negative(t, actual.Cmp(desired))
	require.Positive(t, actual.Sign())
	// Roughly half the liquidity for half the token0 payment.
	require.InDelta(t, 500_000, float64(actual.Int64()), 2000)
	require.Zero(t, pool.Liquidity().Cmp(actual))
}

func TestMintRejectsEmptyPayment(t *testing.T) {
	pool, _, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	_, _, _, err := pool.Mint(testLP, -600, 600, big.NewInt(1_000_000), func(a0, a1 *big.Int) error {
		return nil
	})
	require.ErrorIs(t, err, ErrZeroLiquidityActual)
}

func TestBurnUnknownPosition(t *testing.T) {
	pool, _, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))

	_, _, err := pool.Burn(testLP, -600, 600, big.NewInt(1))
	require.ErrorIs(t, err, ErrEmptyPosition)
	_, _, err = pool.Collect(testLP, -600, 600, testLP, nil, nil)
	require.ErrorIs(t, err, ErrEmptyPosition)
}

func TestCollectCommunityFees(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(new(big.Int).Set(Q96)))
	require.NoError(t, pool.SetCommunityFee(250, 250))
	pay := creditOwed(vault, pool.Key())

	_, _, _, err := pool.Mint(testLP, -600, 600, big.NewInt(1_000_000), pay)
	require.NoError(t, err)

	_, _, err = pool.Swap(testTrader, true, big.NewInt(10_000), new(big.Int).Set(MinSqrtRatio), pay)
	require.NoError(t, err)

	pending0, pending1 := pool.CommunityFeesPending()
	require.Positive(t, pending0.Sign())
	require.Zero(t, pending1.Sign())

	treasury := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	got0, got1, err := pool.CollectCommunityFees(treasury)
	require.NoError(t, err)
	require.Zero(t, got0.Cmp(pending0))
	require.Zero(t, got1.Cmp(pending1))
	require.Zero(t, vault.AccountBalance(treasury, testToken0).Cmp(pending0))

	pending0, pending1 = pool.CommunityFeesPending()
	require.Zero(t, pending0.Sign())
	require.Zero(t, pending1.Sign())
}
