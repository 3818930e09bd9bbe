// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// MintLimitOrder places a resting order at a single tick. The deposit
// side follows from where the price sits: below the tick the order
// sells token0 into a rising market, above it sells token1 into a
// falling one. A price exactly on the tick leaves the side undefined
// and is rejected.
func (p *Pool) MintLimitOrder(
	owner common.Address,
	tick int32,
	amount *big.Int,
	cb MintCallback,
) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmountRequired
	}
	if tick <= MinTick || tick >= MaxTick {
		return ErrTickOutOfRange
	}
	if tick%p.tickSpacing != 0 {
		return ErrTickNotAligned
	}
	if err := p.touch(); err != nil {
		return err
	}

	tickPrice, err := GetSqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	cmp := p.globalState.Price.Cmp(tickPrice)
	if cmp == 0 {
		return ErrAmbiguousOrderSide
	}
	sellsToken0 := cmp < 0

	depositCurrency := p.key.Currency0
	amount0, amount1 := amount, new(big.Int)
	if !sellsToken0 {
		depositCurrency = p.key.Currency1
		amount0, amount1 = amount1, amount0
	}

	before := p.vault.Balance(depositCurrency)
	if err := cb(amount0, amount1); err != nil {
		return err
	}
	received := new(big.Int).Sub(p.vault.Balance(depositCurrency), before)
	if received.Cmp(amount) < 0 {
		p.refund(depositCurrency, owner, received)
		return ErrInsufficientInputAmount
	}

	key := PositionKey(owner, tick, tick)
	pos, ok := p.positions[key]
	t := p.ticks.GetOrCreate(tick)
	if !ok {
		pos = newPosition(owner, tick, tick)
		pos.IsLimitOrder = true
		pos.SellsToken0 = sellsToken0
		p.positions[key] = pos
	} else {
		p.settleLimitPosition(pos, t)
		if pos.Liquidity.Sign() > 0 && pos.SellsToken0 != sellsToken0 {
			p.refund(depositCurrency, owner, received)
			return ErrAmbiguousOrderSide
		}
		pos.SellsToken0 = sellsToken0
	}

	side := orderSide(t, sellsToken0)
	wasActive := t.hasActivity()
	side.Unfilled.Add(side.Unfilled, amount)
	pos.Liquidity.Add(pos.Liquidity, amount)
	pos.LimitSpentLast = new(big.Int).Set(side.SpentCum)
	pos.LimitAcquiredLast = new(big.Int).Set(side.AcquiredCum)
	if !wasActive {
		p.toggleTickActivation(tick)
	}

	p.log.Debug("limit order placed",
		zap.String("pool", p.key.ID().Hex()),
		zap.Int32("tick", tick),
		zap.Bool("sellsToken0", sellsToken0),
		zap.String("amount", amount.String()),
	)
	return nil
}

// BurnLimitOrder settles any fills accrued so far, then withdraws up to
// amount of the unfilled principal into tokens owed. Proceeds and
// refunds are paid out through Collect with equal tick bounds.
func (p *Pool) BurnLimitOrder(owner common.Address, tick int32, amount *big.Int) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmountRequired
	}
	pos, ok := p.positions[PositionKey(owner, tick, tick)]
	if !ok || !pos.IsLimitOrder {
		return ErrEmptyPosition
	}
	if err := p.touch(); err != nil {
		return err
	}

	t := p.ticks.GetOrCreate(tick)
	p.settleLimitPosition(pos, t)

	if amount.Cmp(pos.Liquidity) > 0 {
		return ErrLiquidityOverflow
	}
	if amount.Sign() == 0 {
		return nil
	}

	pos.Liquidity.Sub(pos.Liquidity, amount)
	side := orderSide(t, pos.SellsToken0)
	side.Unfilled.Sub(side.Unfilled, amount)
	if side.Unfilled.Sign() < 0 {
		// Pro-rata rounding can leave the side a hair short of the sum
		// of outstanding principals; never let it go negative.
		side.Unfilled.SetInt64(0)
	}
	if pos.SellsToken0 {
		pos.TokensOwed0.Add(pos.TokensOwed0, amount)
	} else {
		pos.TokensOwed1.Add(pos.TokensOwed1, amount)
	}

	if !t.hasActivity() {
		p.toggleTickActivation(tick)
	}
	return nil
}

// LimitOrderState settles and reports a resting order's outstanding
// principal and tokens owed.
func (p *Pool) LimitOrderState(owner common.Address, tick int32) (principal, owed0, owed1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, nil, err
	}
	defer p.unlock()

	pos, ok := p.positions[PositionKey(owner, tick, tick)]
	if !ok || !pos.IsLimitOrder {
		return nil, nil, nil, ErrEmptyPosition
	}
	p.settleLimitPosition(pos, p.ticks.GetOrCreate(tick))
	return new(big.Int).Set(pos.Liquidity),
		new(big.Int).Set(pos.TokensOwed0),
		new(big.Int).Set(pos.TokensOwed1), nil
}

func orderSide(t *Tick, sellsToken0 bool) *LimitOrderSide {
	if sellsToken0 {
		return &t.Orders0
	}
	return &t.Orders1
}

// settleLimitPosition attributes fills since the last touch to the
// position: principal consumed pro-rata and the opposite asset earned
// become tokens owed, and the snapshots advance.
func (p *Pool) settleLimitPosition(pos *Position, t *Tick) {
	if pos.Liquidity.Sign() == 0 {
		side := orderSide(t, pos.SellsToken0)
		pos.LimitSpentLast = new(big.Int).Set(side.SpentCum)
		pos.LimitAcquiredLast = new(big.Int).Set(side.AcquiredCum)
		return
	}
	side := orderSide(t, pos.SellsToken0)

	spentDelta := new(big.Int).Sub(side.SpentCum, pos.LimitSpentLast)
	acquiredDelta := new(big.Int).Sub(side.AcquiredCum, pos.LimitAcquiredLast)
	if spentDelta.Sign() <= 0 && acquiredDelta.Sign() <= 0 {
		return
	}

	consumed, err := MulDiv(pos.Liquidity, spentDelta, Q128)
	if err != nil || consumed.Cmp(pos.Liquidity) > 0 {
		consumed = new(big.Int).Set(pos.Liquidity)
	}
	acquired, err := MulDiv(pos.Liquidity, acquiredDelta, Q128)
	if err != nil {
		acquired = new(big.Int)
	}

	if pos.SellsToken0 {
		pos.TokensOwed1.Add(pos.TokensOwed1, acquired)
	} else {
		pos.TokensOwed0.Add(pos.TokensOwed0, acquired)
	}
	pos.Liquidity.Sub(pos.Liquidity, consumed)
	pos.LimitSpentLast = new(big.Int).Set(side.SpentCum)
	pos.LimitAcquiredLast = new(big.Int).Set(side.AcquiredCum)
}
