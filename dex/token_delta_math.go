// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import "math/big"

// GetToken0Delta returns the amount of token0 covering the move between
// the two sqrt prices at the given liquidity:
//
//	amount0 = liquidity * (1/sqrt(lower) - 1/sqrt(upper))
//
// Price order does not matter. roundUp is true when the pool is owed the
// amount and false when the pool owes it.
func GetToken0Delta(priceA, priceB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	priceLower, priceUpper := sortPrices(priceA, priceB)
	if priceLower.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(priceUpper, priceLower)

	if roundUp {
		inner, err := MulDivRoundingUp(numerator1, numerator2, priceUpper)
		if err != nil {
			return nil, err
		}
		return DivRoundingUp(inner, priceLower)
	}

	inner, err := MulDiv(numerator1, numerator2, priceUpper)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Quo(inner, priceLower), nil
}

// GetToken1Delta returns the amount of token1 covering the move between
// the two sqrt prices at the given liquidity:
//
//	amount1 = liquidity * (sqrt(upper) - sqrt(lower))
func GetToken1Delta(priceA, priceB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	priceLower, priceUpper := sortPrices(priceA, priceB)

	diff := new(big.Int).Sub(priceUpper, priceLower)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

func sortPrices(a, b *big.Int) (lower, upper *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}
