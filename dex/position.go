// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// Mint adds liquidity to a range position. The callback must transfer
// at least the returned amounts into the vault; partial payment scales
// the credited liquidity down proportionally, and any surplus over what
// the scaled liquidity needs is returned to recipient.
func (p *Pool) Mint(
	recipient common.Address,
	bottomTick, topTick int32,
	liquidityDesired *big.Int,
	cb MintCallback,
) (amount0, amount1, liquidityActual *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, nil, err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return nil, nil, nil, err
	}
	if err := p.checkTicks(bottomTick, topTick); err != nil {
		return nil, nil, nil, err
	}
	if liquidityDesired == nil || liquidityDesired.Sign() <= 0 {
		return nil, nil, nil, ErrZeroLiquidityDesired
	}
	if err := p.touch(); err != nil {
		return nil, nil, nil, err
	}

	needed0, needed1, err := p.amountsForLiquidity(bottomTick, topTick, liquidityDesired, true)
	if err != nil {
		return nil, nil, nil, err
	}

	before0 := p.vault.Balance(p.key.Currency0)
	before1 := p.vault.Balance(p.key.Currency1)
	if err := cb(needed0, needed1); err != nil {
		return nil, nil, nil, err
	}
	received0 := new(big.Int).Sub(p.vault.Balance(p.key.Currency0), before0)
	received1 := new(big.Int).Sub(p.vault.Balance(p.key.Currency1), before1)

	liquidityActual = new(big.Int).Set(liquidityDesired)
	if needed0.Sign() > 0 && received0.Cmp(needed0) < 0 {
		scaled, err := MulDiv(liquidityDesired, received0, needed0)
		if err != nil {
			return nil, nil, nil, err
		}
		if scaled.Cmp(liquidityActual) < 0 {
			liquidityActual = scaled
		}
	}
	if needed1.Sign() > 0 && received1.Cmp(needed1) < 0 {
		scaled, err := MulDiv(liquidityDesired, received1, needed1)
		if err != nil {
			return nil, nil, nil, err
		}
		if scaled.Cmp(liquidityActual) < 0 {
			liquidityActual = scaled
		}
	}
	if liquidityActual.Sign() <= 0 {
		p.refund(p.key.Currency0, recipient, received0)
		p.refund(p.key.Currency1, recipient, received1)
		return nil, nil, nil, ErrZeroLiquidityActual
	}

	amount0, amount1 = needed0, needed1
	if liquidityActual.Cmp(liquidityDesired) < 0 {
		amount0, amount1, err = p.amountsForLiquidity(bottomTick, topTick, liquidityActual, true)
		if err != nil {
			return nil, nil, nil, err
		}
		// Return anything paid beyond what the scaled liquidity needs.
		if refund := new(big.Int).Sub(received0, amount0); refund.Sign() > 0 {
			if err := p.vault.Pay(p.key.Currency0, recipient, refund); err != nil {
				return nil, nil, nil, err
			}
		}
		if refund := new(big.Int).Sub(received1, amount1); refund.Sign() > 0 {
			if err := p.vault.Pay(p.key.Currency1, recipient, refund); err != nil {
				return nil, nil, nil, err
			}
		}
	} else if received0.Cmp(needed0) < 0 || received1.Cmp(needed1) < 0 {
		p.refund(p.key.Currency0, recipient, received0)
		p.refund(p.key.Currency1, recipient, received1)
		return nil, nil, nil, ErrInsufficientInputAmount
	}

	if _, err := p.updatePosition(recipient, bottomTick, topTick, liquidityActual); err != nil {
		return nil, nil, nil, err
	}

	p.log.Debug("mint",
		zap.String("pool", p.key.ID().Hex()),
		zap.Int32("bottomTick", bottomTick),
		zap.Int32("topTick", topTick),
		zap.String("liquidity", liquidityActual.String()),
	)
	return amount0, amount1, liquidityActual, nil
}

// Burn removes liquidity from a range position. The withdrawn principal
// plus any accrued fees become tokens owed, to be paid out by Collect.
func (p *Pool) Burn(
	owner common.Address,
	bottomTick, topTick int32,
	liquidityAmount *big.Int,
) (amount0, amount1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return nil, nil, err
	}
	if err := p.checkTicks(bottomTick, topTick); err != nil {
		return nil, nil, err
	}
	if liquidityAmount == nil || liquidityAmount.Sign() < 0 {
		return nil, nil, ErrZeroAmountRequired
	}
	if err := p.touch(); err != nil {
		return nil, nil, err
	}

	pos, err := p.updatePosition(owner, bottomTick, topTick, new(big.Int).Neg(liquidityAmount))
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 = new(big.Int), new(big.Int)
	if liquidityAmount.Sign() > 0 {
		amount0, amount1, err = p.amountsForLiquidity(bottomTick, topTick, liquidityAmount, false)
		if err != nil {
			return nil, nil, err
		}
	}
	pos.TokensOwed0.Add(pos.TokensOwed0, amount0)
	pos.TokensOwed1.Add(pos.TokensOwed1, amount1)
	return amount0, amount1, nil
}

// Collect pays out tokens owed to a position, clamped to what has been
// accrued. Passing nil for a requested amount collects everything owed
// in that asset.
func (p *Pool) Collect(
	owner common.Address,
	bottomTick, topTick int32,
	recipient common.Address,
	amount0Requested, amount1Requested *big.Int,
) (paid0, paid1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return nil, nil, err
	}
	pos, ok := p.positions[PositionKey(owner, bottomTick, topTick)]
	if !ok {
		return nil, nil, ErrEmptyPosition
	}
	if pos.IsLimitOrder {
		p.settleLimitPosition(pos, p.ticks.GetOrCreate(bottomTick))
	}

	paid0 = clampRequested(amount0Requested, pos.TokensOwed0)
	paid1 = clampRequested(amount1Requested, pos.TokensOwed1)

	if paid0.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency0, recipient, paid0); err != nil {
			return nil, nil, err
		}
		pos.TokensOwed0.Sub(pos.TokensOwed0, paid0)
	}
	if paid1.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency1, recipient, paid1); err != nil {
			return nil, nil, err
		}
		pos.TokensOwed1.Sub(pos.TokensOwed1, paid1)
	}
	return paid0, paid1, nil
}

func clampRequested(requested, owed *big.Int) *big.Int {
	if requested == nil || requested.Cmp(owed) > 0 {
		return new(big.Int).Set(owed)
	}
	return new(big.Int).Set(requested)
}

// amountsForLiquidity computes the token amounts backing a liquidity
// delta at the current price. Below the range only token0 backs the
// position, above it only token1, inside it both.
func (p *Pool) amountsForLiquidity(bottomTick, topTick int32, liquidity *big.Int, roundUp bool) (*big.Int, *big.Int, error) {
	priceLower, err := GetSqrtRatioAtTick(bottomTick)
	if err != nil {
		return nil, nil, err
	}
	priceUpper, err := GetSqrtRatioAtTick(topTick)
	if err != nil {
		return nil, nil, err
	}

	current := p.globalState.Price
	switch {
	case current.Cmp(priceLower) <= 0:
		amount0, err := GetToken0Delta(priceLower, priceUpper, liquidity, roundUp)
		if err != nil {
			return nil, nil, err
		}
		return amount0, new(big.Int), nil
	case current.Cmp(priceUpper) >= 0:
		amount1, err := GetToken1Delta(priceLower, priceUpper, liquidity, roundUp)
		if err != nil {
			return nil, nil, err
		}
		return new(big.Int), amount1, nil
	default:
		amount0, err := GetToken0Delta(current, priceUpper, liquidity, roundUp)
		if err != nil {
			return nil, nil, err
		}
		amount1, err := GetToken1Delta(priceLower, current, liquidity, roundUp)
		if err != nil {
			return nil, nil, err
		}
		return amount0, amount1, nil
	}
}

// updatePosition applies a liquidity delta to the position and both
// bounding ticks, settles fee growth into tokens owed, and keeps the
// tick index and active liquidity consistent.
func (p *Pool) updatePosition(
	owner common.Address,
	bottomTick, topTick int32,
	liquidityDelta *big.Int,
) (*Position, error) {
	key := PositionKey(owner, bottomTick, topTick)
	pos, ok := p.positions[key]
	if !ok {
		if liquidityDelta.Sign() <= 0 {
			return nil, ErrEmptyPosition
		}
		pos = newPosition(owner, bottomTick, topTick)
		p.positions[key] = pos
	}

	currentTick := p.globalState.Tick
	if liquidityDelta.Sign() != 0 {
		toggledLower, err := p.ticks.Update(bottomTick, currentTick, liquidityDelta,
			p.totalFeeGrowth0, p.totalFeeGrowth1, p.secondsPerLiquidityCumulative, false)
		if err != nil {
			return nil, err
		}
		toggledUpper, err := p.ticks.Update(topTick, currentTick, liquidityDelta,
			p.totalFeeGrowth0, p.totalFeeGrowth1, p.secondsPerLiquidityCumulative, true)
		if err != nil {
			return nil, err
		}
		if toggledLower {
			p.toggleTickActivation(bottomTick)
		}
		if toggledUpper {
			p.toggleTickActivation(topTick)
		}
	}

	inner0, inner1 := p.ticks.GetInnerFeeGrowth(bottomTick, topTick, currentTick,
		p.totalFeeGrowth0, p.totalFeeGrowth1)
	if pos.Liquidity.Sign() > 0 {
		if delta := new(big.Int).Sub(inner0, pos.InnerFeeGrowth0Last); delta.Sign() > 0 {
			owed, err := MulDiv(delta, pos.Liquidity, Q128)
			if err != nil {
				return nil, err
			}
			pos.TokensOwed0.Add(pos.TokensOwed0, owed)
		}
		if delta := new(big.Int).Sub(inner1, pos.InnerFeeGrowth1Last); delta.Sign() > 0 {
			owed, err := MulDiv(delta, pos.Liquidity, Q128)
			if err != nil {
				return nil, err
			}
			pos.TokensOwed1.Add(pos.TokensOwed1, owed)
		}
	}
	pos.InnerFeeGrowth0Last = inner0
	pos.InnerFeeGrowth1Last = inner1

	newLiquidity := new(big.Int).Add(pos.Liquidity, liquidityDelta)
	if newLiquidity.Sign() < 0 {
		return nil, ErrLiquidityOverflow
	}
	pos.Liquidity = newLiquidity

	// Liquidity in range changes the active amount immediately.
	if liquidityDelta.Sign() != 0 && currentTick >= bottomTick && currentTick < topTick {
		active := new(big.Int).Add(p.liquidity, liquidityDelta)
		if active.Sign() < 0 {
			return nil, ErrLiquidityOverflow
		}
		p.liquidity = active
	}
	return pos, nil
}

// toggleTickActivation reconciles the tick index after a tick's
// activity flipped, then repositions the crossing cursor.
func (p *Pool) toggleTickActivation(tick int32) {
	t := p.ticks.Get(tick)
	if t != nil && t.hasActivity() {
		p.ticks.activate(tick)
	} else {
		p.ticks.deactivate(tick)
	}
	p.globalState.PrevInitializedTick = p.ticks.PrevActive(p.globalState.Tick)
}
