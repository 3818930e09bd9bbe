// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"errors"
	"math/big"
)

// SwapStep is the outcome of moving the price toward a bounding target
// within a single initialized-tick interval.
type SwapStep struct {
	NextPrice *big.Int // price after the step, Q64.96
	Input     *big.Int // input consumed, excluding fee
	Output    *big.Int // output produced
	FeeAmount *big.Int // fee charged on the input token
}

// MovePriceTowardsTarget computes one swap step. amountRemaining is
// signed: positive for exact-input, negative for exact-output. The step
// never moves the price past targetPrice, and for exact-output never
// produces more than the requested amount.
func MovePriceTowardsTarget(
	zeroToOne bool,
	currentPrice, targetPrice, liquidity *big.Int,
	amountRemaining *big.Int,
	fee uint32,
) (SwapStep, error) {
	var step SwapStep
	exactInput := amountRemaining.Sign() >= 0
	feeBig := big.NewInt(int64(fee))
	feeComplement := big.NewInt(int64(FeeDenominator - fee))

	if exactInput {
		amountAvailableAfterFee, err := MulDiv(amountRemaining, feeComplement, feeDenominatorBig)
		if err != nil {
			return step, err
		}

		var inputToTarget *big.Int
		if zeroToOne {
			inputToTarget, err = GetToken0Delta(targetPrice, currentPrice, liquidity, true)
		} else {
			inputToTarget, err = GetToken1Delta(currentPrice, targetPrice, liquidity, true)
		}
		if err != nil {
			return step, err
		}

		if amountAvailableAfterFee.Cmp(inputToTarget) >= 0 {
			// Enough to reach the target: snap and charge the fee on
			// the consumed input only.
			step.NextPrice = new(big.Int).Set(targetPrice)
			step.Input = inputToTarget
			step.FeeAmount, err = MulDivRoundingUp(inputToTarget, feeBig, feeComplement)
			if err != nil {
				return step, err
			}
		} else {
			step.NextPrice, err = GetNewPriceAfterInput(currentPrice, liquidity, amountAvailableAfterFee, zeroToOne)
			if err != nil {
				return step, err
			}
			if step.NextPrice.Cmp(targetPrice) == 0 {
				// Rounding resolved the entire remainder into the
				// target after all.
				step.Input = inputToTarget
				step.FeeAmount, err = MulDivRoundingUp(inputToTarget, feeBig, feeComplement)
				if err != nil {
					return step, err
				}
			} else {
				// The delta formula could not place the price exactly;
				// the unconsumed remainder becomes fee so the trader
				// cannot exploit the rounding gap.
				step.Input = amountAvailableAfterFee
				step.FeeAmount = new(big.Int).Sub(amountRemaining, amountAvailableAfterFee)
			}
		}

		if zeroToOne {
			step.Output, err = GetToken1Delta(step.NextPrice, currentPrice, liquidity, false)
		} else {
			step.Output, err = GetToken0Delta(currentPrice, step.NextPrice, liquidity, false)
		}
		if err != nil {
			return step, err
		}
		return step, nil
	}

	// Exact output.
	requested := new(big.Int).Neg(amountRemaining)

	var outputToTarget *big.Int
	var err error
	if zeroToOne {
		outputToTarget, err = GetToken1Delta(targetPrice, currentPrice, liquidity, false)
	} else {
		outputToTarget, err = GetToken0Delta(currentPrice, targetPrice, liquidity, false)
	}
	if err != nil {
		return step, err
	}

	if requested.Cmp(outputToTarget) >= 0 {
		step.NextPrice = new(big.Int).Set(targetPrice)
		step.Output = outputToTarget
	} else {
		step.NextPrice, err = GetNewPriceAfterOutput(currentPrice, liquidity, requested, zeroToOne)
		if err != nil {
			return step, err
		}
		step.Output = requested
	}

	if zeroToOne {
		step.Input, err = GetToken0Delta(step.NextPrice, currentPrice, liquidity, true)
	} else {
		step.Input, err = GetToken1Delta(currentPrice, step.NextPrice, liquidity, true)
	}
	if err != nil {
		return step, err
	}
	// Cap the output at the requested amount; rounding may overshoot by
	// a unit.
	if step.Output.Cmp(requested) > 0 {
		step.Output = new(big.Int).Set(requested)
	}
	step.FeeAmount, err = MulDivRoundingUp(step.Input, feeBig, feeComplement)
	if err != nil {
		return step, err
	}
	return step, nil
}

var feeDenominatorBig = big.NewInt(int64(FeeDenominator))

// GetNewPriceAfterInput returns the price after consuming amountIn of
// the input token at constant liquidity, derived from x*y = L^2 in
// sqrt-price form. Rounds so the pool never undercharges.
func GetNewPriceAfterInput(price, liquidity, amountIn *big.Int, zeroToOne bool) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}

	if zeroToOne {
		// price' = L * price / (L + amountIn * price / 2^96), rounded up.
		if amountIn.Sign() == 0 {
			return new(big.Int).Set(price), nil
		}
		numerator := new(big.Int).Lsh(liquidity, 96)
		product := new(big.Int).Mul(amountIn, price)
		if product.Cmp(maxUint256) <= 0 {
			denominator := new(big.Int).Add(numerator, product)
			return MulDivRoundingUp(numerator, price, denominator)
		}
		// Wide product: fall back to the divided form, which loses at
		// most one unit of input precision but never of price.
		denominator := new(big.Int).Quo(numerator, price)
		denominator.Add(denominator, amountIn)
		return DivRoundingUp(numerator, denominator)
	}

	// price' = price + amountIn * 2^96 / L, rounded down.
	quotient, err := MulDiv(amountIn, Q96, liquidity)
	if err != nil {
		// An input whose shifted quotient overflows 256 bits cannot map
		// to a representable price.
		if errors.Is(err, ErrMulDivOverflow) {
			return nil, ErrPriceOutOfBounds
		}
		return nil, err
	}
	next := new(big.Int).Add(price, quotient)
	if next.Cmp(MaxSqrtRatio) > 0 {
		return nil, ErrPriceOutOfBounds
	}
	return next, nil
}

// GetNewPriceAfterOutput returns the price after producing amountOut of
// the output token at constant liquidity.
func GetNewPriceAfterOutput(price, liquidity, amountOut *big.Int, zeroToOne bool) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}

	if zeroToOne {
		// Token1 leaves the pool: price' = price - amountOut * 2^96 / L,
		// rounded up so the pool does not overpay.
		quotient, err := MulDivRoundingUp(amountOut, Q96, liquidity)
		if err != nil {
			return nil, err
		}
		next := new(big.Int).Sub(price, quotient)
		if next.Sign() <= 0 || next.Cmp(MinSqrtRatio) < 0 {
			return nil, ErrPriceOutOfBounds
		}
		return next, nil
	}

	// Token0 leaves the pool: price' = L * price / (L - amountOut * price / 2^96).
	numerator := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amountOut, price)
	if product.Cmp(numerator) >= 0 {
		return nil, ErrPriceOutOfBounds
	}
	denominator := new(big.Int).Sub(numerator, product)
	next, err := MulDivRoundingUp(numerator, price, denominator)
	if err != nil {
		return nil, err
	}
	if next.Cmp(MaxSqrtRatio) > 0 {
		return nil, ErrPriceOutOfBounds
	}
	return next, nil
}

// GetPriceImpactFee returns the supplemental fee, in ppm, charged for
// the sub-tick distance a step moved the price. The distance is measured
// at 1/100th-tick resolution by linear interpolation inside the start
// and end ticks and capped at PriceImpactFeeCap. If the start price
// rounded to its tick already equals the end price the fee is zero.
func GetPriceImpactFee(startPrice, endPrice *big.Int) (uint32, error) {
	startTick, err := GetTickAtSqrtRatio(startPrice)
	if err != nil {
		return 0, err
	}
	startRounded, err := GetSqrtRatioAtTick(startTick)
	if err != nil {
		return 0, err
	}
	if startRounded.Cmp(endPrice) == 0 {
		return 0, nil
	}

	startSub, err := subTickPosition(startPrice, startTick)
	if err != nil {
		return 0, err
	}
	endTick, err := GetTickAtSqrtRatio(endPrice)
	if err != nil {
		return 0, err
	}
	endSub, err := subTickPosition(endPrice, endTick)
	if err != nil {
		return 0, err
	}

	distance := startSub - endSub
	if distance < 0 {
		distance = -distance
	}
	if distance > int64(PriceImpactFeeCap) {
		return PriceImpactFeeCap, nil
	}
	return uint32(distance), nil
}

// subTickPosition interpolates a price to hundredths of a tick.
func subTickPosition(price *big.Int, tick int32) (int64, error) {
	lower, err := GetSqrtRatioAtTick(tick)
	if err != nil {
		return 0, err
	}
	upper, err := GetSqrtRatioAtTick(tick + 1)
	if err != nil {
		return 0, err
	}
	span := new(big.Int).Sub(upper, lower)
	if span.Sign() <= 0 {
		return int64(tick) * 100, nil
	}
	offset := new(big.Int).Sub(price, lower)
	frac, err := MulDiv(offset, big.NewInt(100), span)
	if err != nil {
		return 0, err
	}
	return int64(tick)*100 + frac.Int64(), nil
}
