// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quoter converts between the engine's Q64.96 sqrt prices and
// human-readable decimal prices, and produces swap estimates that do
// not touch pool state.
package quoter

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/private-mev-research/Algebra/dex"
)

// SqrtPriceToPrice converts a Q64.96 sqrt price into the price of
// token0 in token1, adjusted for token decimals.
func SqrtPriceToPrice(sqrtPriceQ96 *big.Int, decimals0, decimals1 int32) decimal.Decimal {
	q96 := decimal.NewFromBigInt(dex.Q96, 0)
	s := decimal.NewFromBigInt(sqrtPriceQ96, 0).DivRound(q96, 36)
	return s.Mul(s).Mul(decimal.New(1, decimals0-decimals1))
}

// PriceToSqrtPrice converts a decimal price of token0 in token1 into a
// Q64.96 sqrt price.
func PriceToSqrtPrice(price decimal.Decimal, decimals0, decimals1 int32) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, dex.ErrInvalidSqrtPrice
	}
	raw := price.Mul(decimal.New(1, decimals1-decimals0))

	f, ok := new(big.Float).SetPrec(192).SetString(raw.String())
	if !ok {
		return nil, dex.ErrInvalidSqrtPrice
	}
	f.Sqrt(f)
	f.Mul(f, new(big.Float).SetPrec(192).SetInt(dex.Q96))
	out, _ := f.Int(nil)

	if out.Cmp(dex.MinSqrtRatio) < 0 || out.Cmp(dex.MaxSqrtRatio) >= 0 {
		return nil, dex.ErrPriceOutOfBounds
	}
	return out, nil
}

// TickToPrice returns the decimal price at a tick boundary.
func TickToPrice(tick int32, decimals0, decimals1 int32) (decimal.Decimal, error) {
	sqrtPrice, err := dex.GetSqrtRatioAtTick(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return SqrtPriceToPrice(sqrtPrice, decimals0, decimals1), nil
}

// PriceToClosestTick returns the greatest tick whose price does not
// exceed the given decimal price.
func PriceToClosestTick(price decimal.Decimal, decimals0, decimals1 int32) (int32, error) {
	sqrtPrice, err := PriceToSqrtPrice(price, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	return dex.GetTickAtSqrtRatio(sqrtPrice)
}

// Quote is a swap estimate against a single liquidity range.
type Quote struct {
	AmountIn  *big.Int // input consumed, fees included
	AmountOut *big.Int
	FeeAmount *big.Int
	NextPrice *big.Int
}

// QuoteWithinRange estimates a swap assuming the given liquidity holds
// all the way to the price bound. Real executions that cross ticks will
// do no better than this.
func QuoteWithinRange(zeroToOne bool, sqrtPrice, liquidity, amountRequired *big.Int, fee uint32) (Quote, error) {
	target := dex.MaxSqrtRatio
	if zeroToOne {
		target = dex.MinSqrtRatio
	}
	step, err := dex.MovePriceTowardsTarget(zeroToOne, sqrtPrice, target, liquidity, amountRequired, fee)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountIn:  new(big.Int).Add(step.Input, step.FeeAmount),
		AmountOut: step.Output,
		FeeAmount: step.FeeAmount,
		NextPrice: step.NextPrice,
	}, nil
}
