// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import "math/big"

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	bigOne     = big.NewInt(1)
)

// MulDiv computes floor(a * b / denominator) with a full-precision
// intermediate product. The result must fit in 256 bits. Rounding down
// is used for amounts the pool owes; see MulDivRoundingUp for amounts
// owed to the pool.
func MulDiv(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	result := new(big.Int).Mul(a, b)
	result.Quo(result, denominator)
	if result.Cmp(maxUint256) > 0 {
		return nil, ErrMulDivOverflow
	}
	return result, nil
}

// MulDivRoundingUp computes ceil(a * b / denominator). The result must
// fit in 256 bits.
func MulDivRoundingUp(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	result, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		result.Add(result, bigOne)
	}
	if result.Cmp(maxUint256) > 0 {
		return nil, ErrMulDivOverflow
	}
	return result, nil
}

// DivRoundingUp computes ceil(a / denominator).
func DivRoundingUp(a, denominator *big.Int) (*big.Int, error) {
	return MulDivRoundingUp(a, bigOne, denominator)
}
