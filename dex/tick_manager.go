// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import "math/big"

// LimitOrderSide is the resting-order bookkeeping for one deposit side
// of a tick. Unfilled is the outstanding deposit-asset sum; SpentCum and
// AcquiredCum are Q128 per-unit accumulators used to attribute fills to
// positions pro-rata.
type LimitOrderSide struct {
	Unfilled    *big.Int
	SpentCum    *big.Int // deposit asset consumed per unit, Q128
	AcquiredCum *big.Int // opposite asset received per unit, Q128
}

func newLimitOrderSide() LimitOrderSide {
	return LimitOrderSide{
		Unfilled:    new(big.Int),
		SpentCum:    new(big.Int),
		AcquiredCum: new(big.Int),
	}
}

// Tick is the state of one initialized tick. Outer accumulators are
// measured on the side of the tick away from the current price and flip
// on every crossing.
type Tick struct {
	LiquidityTotal *big.Int // total liquidity referencing the tick
	LiquidityDelta *big.Int // net liquidity added when crossing left to right

	OuterFeeGrowth0          *big.Int // Q128
	OuterFeeGrowth1          *big.Int // Q128
	OuterSecondsPerLiquidity *big.Int

	PrevTick int32
	NextTick int32

	// Resting limit orders. Orders0 sell token0 and fill as the price
	// rises through the tick; Orders1 sell token1 and fill as it falls.
	Orders0 LimitOrderSide
	Orders1 LimitOrderSide
}

func newTick() *Tick {
	return &Tick{
		LiquidityTotal:           new(big.Int),
		LiquidityDelta:           new(big.Int),
		OuterFeeGrowth0:          new(big.Int),
		OuterFeeGrowth1:          new(big.Int),
		OuterSecondsPerLiquidity: new(big.Int),
		Orders0:                  newLimitOrderSide(),
		Orders1:                  newLimitOrderSide(),
	}
}

// hasActivity reports whether the tick still needs to be indexed.
func (t *Tick) hasActivity() bool {
	return t.LiquidityTotal.Sign() > 0 ||
		t.Orders0.Unfilled.Sign() > 0 ||
		t.Orders1.Unfilled.Sign() > 0
}

// TickTable is the ordered sparse set of initialized ticks. The sorted
// doubly-linked traversal is the authoritative crossing order; the
// two-level bitmap accelerates nearest-tick queries. Both structures are
// mutated only through activate/deactivate so they cannot diverge.
type TickTable struct {
	spacing int32
	ticks   map[int32]*Tick
	tree    *tickTree
}

// NewTickTable builds a table with permanent sentinel entries at the
// tick bounds. Sentinels live in the linked list but not in the bitmap,
// so they terminate traversal without ever being crossed.
func NewTickTable(spacing int32) *TickTable {
	tt := &TickTable{
		spacing: spacing,
		ticks:   make(map[int32]*Tick),
		tree:    newTickTree(spacing),
	}
	head := newTick()
	tail := newTick()
	head.PrevTick = MinTick
	head.NextTick = MaxTick
	tail.PrevTick = MinTick
	tail.NextTick = MaxTick
	tt.ticks[MinTick] = head
	tt.ticks[MaxTick] = tail
	return tt
}

// Get returns the tick state, or nil if it was never initialized.
func (tt *TickTable) Get(tick int32) *Tick {
	return tt.ticks[tick]
}

// GetOrCreate returns the tick state, allocating it on first use. The
// tick is not linked or indexed until it gains activity.
func (tt *TickTable) GetOrCreate(tick int32) *Tick {
	t, ok := tt.ticks[tick]
	if !ok {
		t = newTick()
		tt.ticks[tick] = t
	}
	return t
}

// NextActive returns the nearest indexed tick strictly above the given
// tick, falling back to the MaxTick sentinel.
func (tt *TickTable) NextActive(tick int32) int32 {
	if next, ok := tt.tree.NextAbove(tick); ok {
		return next
	}
	return MaxTick
}

// PrevActive returns the nearest indexed tick at or below the given
// tick, falling back to the MinTick sentinel.
func (tt *TickTable) PrevActive(tick int32) int32 {
	if prev, ok := tt.tree.PrevAtOrBelow(tick); ok {
		return prev
	}
	return MinTick
}

// activate links the tick into the traversal order and sets its bitmap
// bit. No-op for sentinels and already-active ticks.
func (tt *TickTable) activate(tick int32) {
	if tick == MinTick || tick == MaxTick {
		return
	}
	if tt.tree.Has(tick) {
		return
	}
	prev := tt.PrevActive(tick - 1)
	next := tt.nextInList(prev)

	t := tt.ticks[tick]
	t.PrevTick = prev
	t.NextTick = next
	tt.ticks[prev].NextTick = tick
	tt.ticks[next].PrevTick = tick
	tt.tree.Toggle(tick)
}

// deactivate unlinks the tick and clears its bitmap bit. Tick state is
// retained so stale positions can still settle against it.
func (tt *TickTable) deactivate(tick int32) {
	if tick == MinTick || tick == MaxTick {
		return
	}
	if !tt.tree.Has(tick) {
		return
	}
	t := tt.ticks[tick]
	tt.ticks[t.PrevTick].NextTick = t.NextTick
	tt.ticks[t.NextTick].PrevTick = t.PrevTick
	tt.tree.Toggle(tick)
}

func (tt *TickTable) nextInList(tick int32) int32 {
	if tick == MinTick {
		if next, ok := tt.tree.NextAbove(MinTick); ok {
			return next
		}
		return MaxTick
	}
	return tt.ticks[tick].NextTick
}

// Update applies a liquidity delta to one bound of a range position and
// reports whether the tick's activity toggled. On the first transition
// to active, the outer accumulators are seeded so that everything
// accrued so far counts as "outside" relative to the current price.
func (tt *TickTable) Update(
	tick, currentTick int32,
	liquidityDelta *big.Int,
	totalFeeGrowth0, totalFeeGrowth1 *big.Int,
	secondsPerLiquidity *big.Int,
	isUpper bool,
) (toggled bool, err error) {
	t := tt.GetOrCreate(tick)

	wasActive := t.hasActivity()

	newTotal := new(big.Int).Add(t.LiquidityTotal, liquidityDelta)
	if newTotal.Sign() < 0 {
		return false, ErrLiquidityOverflow
	}
	t.LiquidityTotal = newTotal

	// The upper bound sheds liquidity when crossed upward, the lower
	// bound gains it.
	if isUpper {
		t.LiquidityDelta = new(big.Int).Sub(t.LiquidityDelta, liquidityDelta)
	} else {
		t.LiquidityDelta = new(big.Int).Add(t.LiquidityDelta, liquidityDelta)
	}

	isActive := t.hasActivity()
	if isActive && !wasActive {
		if tick <= currentTick {
			t.OuterFeeGrowth0 = new(big.Int).Set(totalFeeGrowth0)
			t.OuterFeeGrowth1 = new(big.Int).Set(totalFeeGrowth1)
			t.OuterSecondsPerLiquidity = new(big.Int).Set(secondsPerLiquidity)
		} else {
			t.OuterFeeGrowth0 = new(big.Int)
			t.OuterFeeGrowth1 = new(big.Int)
			t.OuterSecondsPerLiquidity = new(big.Int)
		}
	}
	return isActive != wasActive, nil
}

// Cross flips the tick's outer accumulators to the other side of the
// price and returns the signed liquidity delta to apply when traversing
// left to right. Callers negate it for right-to-left crossings.
func (tt *TickTable) Cross(
	tick int32,
	totalFeeGrowth0, totalFeeGrowth1 *big.Int,
	secondsPerLiquidity *big.Int,
) *big.Int {
	t := tt.ticks[tick]
	if t == nil {
		return new(big.Int)
	}
	t.OuterFeeGrowth0 = new(big.Int).Sub(totalFeeGrowth0, t.OuterFeeGrowth0)
	t.OuterFeeGrowth1 = new(big.Int).Sub(totalFeeGrowth1, t.OuterFeeGrowth1)
	t.OuterSecondsPerLiquidity = new(big.Int).Sub(secondsPerLiquidity, t.OuterSecondsPerLiquidity)
	return new(big.Int).Set(t.LiquidityDelta)
}

// GetInnerFeeGrowth returns the fee growth accrued strictly between the
// two bounds, for both assets. It holds whether the current price is
// below, inside, or above the range.
func (tt *TickTable) GetInnerFeeGrowth(
	bottomTick, topTick, currentTick int32,
	totalFeeGrowth0, totalFeeGrowth1 *big.Int,
) (*big.Int, *big.Int) {
	lower := tt.GetOrCreate(bottomTick)
	upper := tt.GetOrCreate(topTick)

	var below0, below1 *big.Int
	if currentTick >= bottomTick {
		below0, below1 = lower.OuterFeeGrowth0, lower.OuterFeeGrowth1
	} else {
		below0 = new(big.Int).Sub(totalFeeGrowth0, lower.OuterFeeGrowth0)
		below1 = new(big.Int).Sub(totalFeeGrowth1, lower.OuterFeeGrowth1)
	}

	var above0, above1 *big.Int
	if currentTick < topTick {
		above0, above1 = upper.OuterFeeGrowth0, upper.OuterFeeGrowth1
	} else {
		above0 = new(big.Int).Sub(totalFeeGrowth0, upper.OuterFeeGrowth0)
		above1 = new(big.Int).Sub(totalFeeGrowth1, upper.OuterFeeGrowth1)
	}

	inner0 := new(big.Int).Sub(totalFeeGrowth0, below0)
	inner0.Sub(inner0, above0)
	inner1 := new(big.Int).Sub(totalFeeGrowth1, below1)
	inner1.Sub(inner1, above1)
	return inner0, inner1
}
