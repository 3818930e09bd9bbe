// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMintLimitOrderValidation(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)
	pay := creditOwed(vault, pool.Key())

	require.ErrorIs(t, pool.MintLimitOrder(testLP, 60, nil, pay), ErrZeroAmountRequired)
	require.ErrorIs(t, pool.MintLimitOrder(testLP, 60, big.NewInt(0), pay), ErrZeroAmountRequired)
	require.ErrorIs(t, pool.MintLimitOrder(testLP, MinTick, big.NewInt(100), pay), ErrTickOutOfRange)
	require.ErrorIs(t, pool.MintLimitOrder(testLP, MaxTick, big.NewInt(100), pay), ErrTickOutOfRange)
	require.ErrorIs(t, pool.MintLimitOrder(testLP, 90, big.NewInt(100), pay), ErrTickNotAligned)
}

func TestMintLimitOrderUnderpaymentRefunded(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)

	err := pool.MintLimitOrder(testLP, 60, big.NewInt(1000), func(a0, a1 *big.Int) error {
		return vault.Credit(testToken0, new(big.Int).Sub(a0, big.NewInt(1)))
	})
	require.ErrorIs(t, err, ErrInsufficientInputAmount)

	// No order was booked and the short deposit went back to the maker.
	_, _, _, err = pool.LimitOrderState(testLP, 60)
	require.ErrorIs(t, err, ErrEmptyPosition)
	refunded := vault.AccountBalance(testLP, testToken0)
	require.Zero(t, refunded.Cmp(big.NewInt(999)))
}

func TestMintLimitOrderAmbiguousSide(t *testing.T) {
	pool, vault, _ := newTestPool(t, 3000)
	price, err := GetSqrtRatioAtTick(60)
	require.NoError(t, err)
	require.NoError(t, pool.Initialize(price))

	// The price sits exactly on the order tick; neither side is right.
	err = pool.MintLimitOrder(testLP, 60, big.NewInt(1000), creditOwed(vault, pool.Key()))
	require.ErrorIs(t, err, ErrAmbiguousOrderSide)
}

func TestMintLimitOrderSides(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)

	// Above the price the deposit is token0, below it token1.
	var got0, got1 *big.Int
	record := func(a0, a1 *big.Int) error {
		got0, got1 = new(big.Int).Set(a0), new(big.Int).Set(a1)
		return creditOwed(vault, pool.Key())(a0, a1)
	}

	require.NoError(t, pool.MintLimitOrder(testLP, 60, big.NewInt(1000), record))
	require.Zero(t, got0.Cmp(big.NewInt(1000)))
	require.Zero(t, got1.Sign())

	require.NoError(t, pool.MintLimitOrder(testLP, -60, big.NewInt(2000), record))
	require.Zero(t, got0.Sign())
	require.Zero(t, got1.Cmp(big.NewInt(2000)))

	principal, _, _, err := pool.LimitOrderState(testLP, 60)
	require.NoError(t, err)
	require.Zero(t, principal.Cmp(big.NewInt(1000)))
	principal, _, _, err = pool.LimitOrderState(testLP, -60)
	require.NoError(t, err)
	require.Zero(t, principal.Cmp(big.NewInt(2000)))
}

func TestLimitOrderFullFill(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)
	pay := creditOwed(vault, pool.Key())

	// A maker rests 10k token1 at tick -60; a falling swap buys it out
	// on the way down.
	require.NoError(t, pool.MintLimitOrder(testLP, -60, big.NewInt(10_000), pay))

	_, amount1, err := pool.Swap(testTrader, true, big.NewInt(20_000),
		new(big.Int).Set(MinSqrtRatio), pay)
	require.NoError(t, err)

	// The swapper's take includes the whole resting order.
	out := new(big.Int).Neg(amount1)
	require.Positive(t, out.Cmp(big.NewInt(10_000)))
	require.Less(t, pool.State().Tick, int32(-60))

	principal, owed0, owed1, err := pool.LimitOrderState(testLP, -60)
	require.NoError(t, err)
	require.Zero(t, principal.Sign())
	require.Zero(t, owed1.Sign())
	// Proceeds in token0 at the tick -60 price, net of the swap fee.
	require.Positive(t, owed0.Cmp(big.NewInt(9_900)))
	require.Negative(t, owed0.Cmp(big.NewInt(10_300)))

	paid0, paid1, err := pool.Collect(testLP, -60, -60, testLP, nil, nil)
	require.NoError(t, err)
	require.Zero(t, paid0.Cmp(owed0))
	require.Zero(t, paid1.Sign())
	require.Zero(t, vault.AccountBalance(testLP, testToken0).Cmp(owed0))
}

func TestLimitOrderPartialFillAndBurn(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)
	pay := creditOwed(vault, pool.Key())

	require.NoError(t, pool.MintLimitOrder(testLP, -60, big.NewInt(10_000), pay))

	// A budget that runs out midway through the resting order.
	_, _, err := pool.Swap(testTrader, true, big.NewInt(8_100),
		new(big.Int).Set(MinSqrtRatio), pay)
	require.NoError(t, err)

	principal, owed0, owed1, err := pool.LimitOrderState(testLP, -60)
	require.NoError(t, err)
	require.Positive(t, principal.Sign())
	require.Negative(t, principal.Cmp(big.NewInt(10_000)))
	require.InDelta(t, 5000, float64(principal.Int64()), 1200)
	require.Positive(t, owed0.Sign())
	require.Zero(t, owed1.Sign())

	// Withdraw the unfilled remainder.
	require.NoError(t, pool.BurnLimitOrder(testLP, -60, principal))

	left, owed0After, owed1After, err := pool.LimitOrderState(testLP, -60)
	require.NoError(t, err)
	require.Zero(t, left.Sign())
	require.Zero(t, owed0After.Cmp(owed0))
	require.Zero(t, owed1After.Cmp(principal))

	paid0, paid1, err := pool.Collect(testLP, -60, -60, testLP, nil, nil)
	require.NoError(t, err)
	require.Zero(t, paid0.Cmp(owed0))
	require.Zero(t, paid1.Cmp(principal))
}

func TestBurnLimitOrderValidation(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)
	pay := creditOwed(vault, pool.Key())

	require.ErrorIs(t, pool.BurnLimitOrder(testLP, 60, big.NewInt(1)), ErrEmptyPosition)

	require.NoError(t, pool.MintLimitOrder(testLP, 60, big.NewInt(1000), pay))
	require.ErrorIs(t, pool.BurnLimitOrder(testLP, 60, big.NewInt(-1)), ErrZeroAmountRequired)
	require.ErrorIs(t, pool.BurnLimitOrder(testLP, 60, big.NewInt(1001)), ErrLiquidityOverflow)

	// A full burn refunds the deposit side untouched.
	require.NoError(t, pool.BurnLimitOrder(testLP, 60, big.NewInt(1000)))
	paid0, paid1, err := pool.Collect(testLP, 60, 60, testLP, nil, nil)
	require.NoError(t, err)
	require.Zero(t, paid0.Cmp(big.NewInt(1000)))
	require.Zero(t, paid1.Sign())
}

func TestLimitOrderKeepsTickAliveWithoutLiquidity(t *testing.T) {
	pool, vault, _ := newSwapPool(t, 3000)
	pay := creditOwed(vault, pool.Key())

	// An order-only tick has no range liquidity, yet a swap must stop
	// there to fill it rather than skipping it in the index.
	require.NoError(t, pool.MintLimitOrder(testLP, -60, big.NewInt(10_000), pay))
	require.NoError(t, pool.BurnLimitOrder(testLP, -60, big.NewInt(10_000)))

	// Burned out completely: the tick is gone from the index and a
	// falling swap sails past it.
	_, _, err := pool.Swap(testTrader, true, big.NewInt(8_000),
		new(big.Int).Set(MinSqrtRatio), pay)
	require.NoError(t, err)

	principal, owed0, _, err := pool.LimitOrderState(testLP, -60)
	require.NoError(t, err)
	require.Zero(t, principal.Sign())
	require.Zero(t, owed0.Sign())
	require.Less(t, pool.State().Tick, int32(-60))
}
