// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

var communityFeeDenominatorBig = big.NewInt(int64(CommunityFeeDenominator))

// fillRecord stages a consumption of resting orders at one tick side.
type fillRecord struct {
	side     *LimitOrderSide
	spent    *big.Int // Q128 per-unit principal consumed
	acquired *big.Int // Q128 per-unit opposite asset credited
	output   *big.Int // principal units taken from the side
}

// crossRecord stages a tick crossing with the fee growth totals observed
// at the moment the price passed it.
type crossRecord struct {
	tick int32
	fg0  *big.Int
	fg1  *big.Int
	spl  *big.Int
}

// swapState stages everything a swap touches. Nothing in the pool or
// its ticks changes until commit, so a failed swap leaves no trace.
type swapState struct {
	price     *big.Int
	tick      int32
	cursor    int32 // nearest usable tick at or below the price
	liquidity *big.Int

	feeGrowthInput   *big.Int // Q128 growth of the input asset accumulator
	communityPending *big.Int // community share of fees, input asset

	remaining *big.Int // >0 remaining input, <0 remaining output
	amountIn  *big.Int
	amountOut *big.Int

	fills     []fillRecord
	crossings []crossRecord
	dead      []int32 // ticks to retire from the index at commit
	deadSet   map[int32]bool
}

// effectiveUnfilled is the side's unfilled sum net of staged fills.
func (st *swapState) effectiveUnfilled(side *LimitOrderSide) *big.Int {
	avail := new(big.Int).Set(side.Unfilled)
	for _, f := range st.fills {
		if f.side == side {
			avail.Sub(avail, f.output)
		}
	}
	return avail
}

func (st *swapState) markDead(tick int32) {
	if !st.deadSet[tick] {
		st.deadSet[tick] = true
		st.dead = append(st.dead, tick)
	}
}

// Swap trades against the pool. A positive amountRequired is an exact
// input (including fees); a negative one is an exact output.
// limitSqrtPrice bounds how far the price may move. The returned deltas
// are from the pool's perspective: positive amounts flow in, negative
// amounts flow out.
func (p *Pool) Swap(
	recipient common.Address,
	zeroToOne bool,
	amountRequired *big.Int,
	limitSqrtPrice *big.Int,
	cb SwapCallback,
) (amount0, amount1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return nil, nil, err
	}
	if err := p.touch(); err != nil {
		return nil, nil, err
	}

	st, err := p.swapCompute(zeroToOne, amountRequired, limitSqrtPrice)
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 = orientAmounts(zeroToOne, st.amountIn, st.amountOut)

	inputCurrency, outputCurrency := p.key.Currency0, p.key.Currency1
	if !zeroToOne {
		inputCurrency, outputCurrency = outputCurrency, inputCurrency
	}

	// Input settles before anything changes hands or is written back.
	before := p.vault.Balance(inputCurrency)
	if err := cb(amount0, amount1); err != nil {
		return nil, nil, err
	}
	received := new(big.Int).Sub(p.vault.Balance(inputCurrency), before)
	if received.Cmp(st.amountIn) < 0 {
		p.refund(inputCurrency, recipient, received)
		return nil, nil, ErrInsufficientInputAmount
	}

	if st.amountOut.Sign() > 0 {
		if err := p.vault.Pay(outputCurrency, recipient, st.amountOut); err != nil {
			return nil, nil, err
		}
	}
	p.commitSwap(st, zeroToOne)

	p.log.Debug("swap",
		zap.String("pool", p.key.ID().Hex()),
		zap.Bool("zeroToOne", zeroToOne),
		zap.String("amountIn", st.amountIn.String()),
		zap.String("amountOut", st.amountOut.String()),
		zap.Int32("tick", p.globalState.Tick),
	)
	return amount0, amount1, nil
}

// SwapSupportingFeeOnInputTokens trades with tokens whose transfers
// shave a fee. The input is collected up front, the swap runs on what
// actually arrived, and any unspent input is returned to the recipient.
func (p *Pool) SwapSupportingFeeOnInputTokens(
	recipient common.Address,
	zeroToOne bool,
	amountToSell *big.Int,
	limitSqrtPrice *big.Int,
	cb SwapCallback,
) (amount0, amount1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return nil, nil, err
	}
	if amountToSell == nil || amountToSell.Sign() <= 0 {
		return nil, nil, ErrZeroAmountRequired
	}
	if err := p.touch(); err != nil {
		return nil, nil, err
	}

	inputCurrency, outputCurrency := p.key.Currency0, p.key.Currency1
	if !zeroToOne {
		inputCurrency, outputCurrency = outputCurrency, inputCurrency
	}

	before := p.vault.Balance(inputCurrency)
	in0, in1 := orientAmounts(zeroToOne, amountToSell, new(big.Int))
	if err := cb(in0, in1); err != nil {
		return nil, nil, err
	}
	received := new(big.Int).Sub(p.vault.Balance(inputCurrency), before)
	if received.Sign() <= 0 {
		return nil, nil, ErrZeroAmountRequired
	}

	st, err := p.swapCompute(zeroToOne, received, limitSqrtPrice)
	if err != nil {
		p.refund(inputCurrency, recipient, received)
		return nil, nil, err
	}
	p.commitSwap(st, zeroToOne)

	if st.amountOut.Sign() > 0 {
		if err := p.vault.Pay(outputCurrency, recipient, st.amountOut); err != nil {
			return nil, nil, err
		}
	}
	if unspent := new(big.Int).Sub(received, st.amountIn); unspent.Sign() > 0 {
		if err := p.vault.Pay(inputCurrency, recipient, unspent); err != nil {
			return nil, nil, err
		}
	}

	amount0, amount1 = orientAmounts(zeroToOne, st.amountIn, st.amountOut)
	return amount0, amount1, nil
}

func orientAmounts(zeroToOne bool, amountIn, amountOut *big.Int) (*big.Int, *big.Int) {
	in := new(big.Int).Set(amountIn)
	out := new(big.Int).Neg(amountOut)
	if zeroToOne {
		return in, out
	}
	return out, in
}

// swapCompute runs the swap loop against staged state. Callers hold the
// pool lock, settle the input, and then commit.
func (p *Pool) swapCompute(zeroToOne bool, amountRequired, limitSqrtPrice *big.Int) (*swapState, error) {
	if amountRequired == nil || amountRequired.Sign() == 0 {
		return nil, ErrZeroAmountRequired
	}
	if limitSqrtPrice == nil {
		return nil, ErrInvalidLimitPrice
	}
	current := p.globalState.Price

	exactInput := amountRequired.Sign() > 0
	fee := p.globalState.Fee
	communityFee := p.globalState.CommunityFee0
	if !zeroToOne {
		communityFee = p.globalState.CommunityFee1
	}
	feeGrowthInput := p.totalFeeGrowth0
	if !zeroToOne {
		feeGrowthInput = p.totalFeeGrowth1
	}
	communityPending := p.communityFeePending0
	if !zeroToOne {
		communityPending = p.communityFeePending1
	}

	st := &swapState{
		price:            new(big.Int).Set(current),
		tick:             p.globalState.Tick,
		cursor:           p.globalState.PrevInitializedTick,
		liquidity:        new(big.Int).Set(p.liquidity),
		feeGrowthInput:   new(big.Int).Set(feeGrowthInput),
		communityPending: new(big.Int).Set(communityPending),
		remaining:        new(big.Int).Set(amountRequired),
		amountIn:         new(big.Int),
		amountOut:        new(big.Int),
		deadSet:          make(map[int32]bool),
	}

	if limitSqrtPrice.Cmp(current) == 0 {
		// Nothing can move; not an error.
		return st, nil
	}
	if zeroToOne {
		if limitSqrtPrice.Cmp(current) > 0 || limitSqrtPrice.Cmp(MinSqrtRatio) < 0 {
			return nil, ErrInvalidLimitPrice
		}
	} else {
		if limitSqrtPrice.Cmp(current) < 0 || limitSqrtPrice.Cmp(MaxSqrtRatio) >= 0 {
			return nil, ErrInvalidLimitPrice
		}
	}

	clampPrice, err := GetSqrtRatioAtTick(p.blockStartTick)
	if err != nil {
		return nil, err
	}

	// Resting orders sitting exactly at the start price fill before any
	// price movement. The falling direction reaches them through the
	// cursor candidate; the rising direction needs this explicit check.
	if !zeroToOne {
		if err := p.fillAtCursorStart(st, exactInput, fee, communityFee); err != nil {
			return nil, err
		}
	}

	for st.remaining.Sign() != 0 && st.price.Cmp(limitSqrtPrice) != 0 {
		candidate := st.cursor
		if !zeroToOne {
			candidate = p.nextUsable(st, st.cursor)
		}
		candidatePrice, err := GetSqrtRatioAtTick(candidate)
		if err != nil {
			return nil, err
		}

		// Fee-curve discontinuity: the block's first-observed tick caps
		// a single step when it lies strictly between here and the
		// candidate. Reaching it is not a crossing.
		targetPrice := candidatePrice
		clamped := false
		if zeroToOne {
			if clampPrice.Cmp(st.price) < 0 && clampPrice.Cmp(candidatePrice) > 0 {
				targetPrice, clamped = clampPrice, true
			}
		} else {
			if clampPrice.Cmp(st.price) > 0 && clampPrice.Cmp(candidatePrice) < 0 {
				targetPrice, clamped = clampPrice, true
			}
		}

		// The caller's price bound binds tighter than any tick; on an
		// exact coincidence the bound wins and the tick stays uncrossed.
		limited := false
		if zeroToOne {
			if limitSqrtPrice.Cmp(targetPrice) >= 0 {
				targetPrice, limited = limitSqrtPrice, true
			}
		} else {
			if limitSqrtPrice.Cmp(targetPrice) <= 0 {
				targetPrice, limited = limitSqrtPrice, true
			}
		}

		if !clamped && !limited && candidatePrice.Cmp(st.price) == 0 {
			// At the candidate exactly: fill its resting orders, then
			// cross it or retire it.
			if candidate == MinTick || candidate == MaxTick {
				break
			}
			if err := p.fillAtTick(st, candidate, candidatePrice, zeroToOne, exactInput, fee, communityFee); err != nil {
				return nil, err
			}
			p.passTick(st, candidate, zeroToOne)
			continue
		}

		startPrice := new(big.Int).Set(st.price)
		step, err := MovePriceTowardsTarget(zeroToOne, st.price, targetPrice, st.liquidity, st.remaining, fee)
		if err != nil {
			return nil, err
		}

		if exactInput {
			spent := new(big.Int).Add(step.Input, step.FeeAmount)
			st.remaining.Sub(st.remaining, spent)
			st.amountIn.Add(st.amountIn, spent)
			st.amountOut.Add(st.amountOut, step.Output)
		} else {
			st.remaining.Add(st.remaining, step.Output)
			st.amountOut.Add(st.amountOut, step.Output)
			spent := new(big.Int).Add(step.Input, step.FeeAmount)
			st.amountIn.Add(st.amountIn, spent)
		}

		feeAmount := new(big.Int).Set(step.FeeAmount)
		if exactInput && step.Input.Sign() > 0 {
			// Exact-output trades deliberately skip the impact
			// surcharge; the two directions are not symmetric.
			impact, err := GetPriceImpactFee(startPrice, step.NextPrice)
			if err != nil {
				return nil, err
			}
			if impact > 0 && st.remaining.Sign() > 0 {
				surcharge, err := MulDivRoundingUp(step.Input, big.NewInt(int64(impact)), feeDenominatorBig)
				if err != nil {
					return nil, err
				}
				if surcharge.Cmp(st.remaining) > 0 {
					surcharge = new(big.Int).Set(st.remaining)
				}
				st.remaining.Sub(st.remaining, surcharge)
				st.amountIn.Add(st.amountIn, surcharge)
				feeAmount.Add(feeAmount, surcharge)
			}
		}
		if err := st.accrueFee(feeAmount, communityFee); err != nil {
			return nil, err
		}

		st.price = step.NextPrice
		if st.price.Cmp(targetPrice) != 0 {
			// Partial step; the requested amount ran out inside the
			// current tick range.
			tick, err := GetTickAtSqrtRatio(st.price)
			if err != nil {
				return nil, err
			}
			st.tick = tick
			break
		}
		if limited || clamped {
			tick, err := GetTickAtSqrtRatio(st.price)
			if err != nil {
				return nil, err
			}
			st.tick = tick
			if limited {
				break
			}
			continue
		}
		// Reached the candidate exactly: fill and cross it now, even if
		// the budget is spent, so the committed tick matches the price.
		if candidate == MinTick || candidate == MaxTick {
			break
		}
		if err := p.fillAtTick(st, candidate, candidatePrice, zeroToOne, exactInput, fee, communityFee); err != nil {
			return nil, err
		}
		p.passTick(st, candidate, zeroToOne)
	}

	return st, nil
}

// nextUsable is nextInList skipping ticks staged for retirement.
func (p *Pool) nextUsable(st *swapState, from int32) int32 {
	next := p.ticks.nextInList(from)
	for next != MaxTick && st.deadSet[next] {
		next = p.ticks.Get(next).NextTick
	}
	return next
}

// prevUsable is PrevActive skipping ticks staged for retirement.
func (p *Pool) prevUsable(st *swapState, tick int32) int32 {
	prev := p.ticks.PrevActive(tick)
	for prev != MinTick && st.deadSet[prev] {
		prev = p.ticks.PrevActive(prev - 1)
	}
	return prev
}

// passTick stages the crossing of a candidate tick the price has
// reached, or its retirement when nothing is left to cross, and
// repositions the cursor.
func (p *Pool) passTick(st *swapState, tick int32, zeroToOne bool) {
	t := p.ticks.Get(tick)
	if t != nil && t.LiquidityTotal.Sign() > 0 {
		fg0, fg1 := p.crossGrowthTotals(st, zeroToOne)
		st.crossings = append(st.crossings, crossRecord{
			tick: tick,
			fg0:  new(big.Int).Set(fg0),
			fg1:  new(big.Int).Set(fg1),
			spl:  new(big.Int).Set(p.secondsPerLiquidityCumulative),
		})
		if zeroToOne {
			st.liquidity.Sub(st.liquidity, t.LiquidityDelta)
		} else {
			st.liquidity.Add(st.liquidity, t.LiquidityDelta)
		}
	} else if t != nil && p.tickDrained(st, t) {
		st.markDead(tick)
	}

	if zeroToOne {
		st.tick = tick - 1
	} else {
		st.tick = tick
	}
	st.cursor = p.prevUsable(st, st.tick)
}

// tickDrained reports whether the tick has no activity left once staged
// fills are taken into account.
func (p *Pool) tickDrained(st *swapState, t *Tick) bool {
	if t.LiquidityTotal.Sign() > 0 {
		return false
	}
	return st.effectiveUnfilled(&t.Orders0).Sign() == 0 &&
		st.effectiveUnfilled(&t.Orders1).Sign() == 0
}

func (p *Pool) crossGrowthTotals(st *swapState, zeroToOne bool) (*big.Int, *big.Int) {
	if zeroToOne {
		return st.feeGrowthInput, p.totalFeeGrowth1
	}
	return p.totalFeeGrowth0, st.feeGrowthInput
}

// fillAtCursorStart handles a rising swap that begins with the price
// sitting exactly on an active tick holding sell-side orders.
func (p *Pool) fillAtCursorStart(st *swapState, exactInput bool, fee, communityFee uint32) error {
	t := p.ticks.Get(st.cursor)
	if t == nil || t.Orders0.Unfilled.Sign() == 0 {
		return nil
	}
	cursorPrice, err := GetSqrtRatioAtTick(st.cursor)
	if err != nil {
		return err
	}
	if cursorPrice.Cmp(st.price) != 0 {
		return nil
	}
	if err := p.fillAtTick(st, st.cursor, cursorPrice, false, exactInput, fee, communityFee); err != nil {
		return err
	}
	if p.tickDrained(st, t) {
		st.markDead(st.cursor)
		st.cursor = p.prevUsable(st, st.tick)
	}
	return nil
}

// fillAtTick stages the consumption of resting orders at an exact price
// point. Falling swaps buy out the token1 side, rising swaps the token0
// side. Makers receive the swapper's input net of the swap fee,
// attributed pro-rata through the side's cumulative accumulators.
func (p *Pool) fillAtTick(st *swapState, tick int32, sqrtP *big.Int, zeroToOne, exactInput bool, fee, communityFee uint32) error {
	t := p.ticks.Get(tick)
	if t == nil {
		return nil
	}
	side := &t.Orders1
	if !zeroToOne {
		side = &t.Orders0
	}
	avail := st.effectiveUnfilled(side)
	if avail.Sign() == 0 || st.remaining.Sign() == 0 {
		return nil
	}

	var input, output, feeAmt *big.Int
	var err error
	if exactInput {
		afterFee := new(big.Int).Mul(st.remaining, big.NewInt(int64(FeeDenominator-fee)))
		afterFee.Quo(afterFee, feeDenominatorBig)
		inAll, err2 := limitInputForOutput(avail, sqrtP, zeroToOne)
		if err2 != nil {
			return err2
		}
		if afterFee.Cmp(inAll) >= 0 {
			input, output = inAll, avail
			feeAmt, err = feeOnTop(input, fee)
			if err != nil {
				return err
			}
		} else {
			input = afterFee
			output, err = limitOutputForInput(input, sqrtP, zeroToOne)
			if err != nil {
				return err
			}
			if output.Cmp(avail) > 0 {
				output = new(big.Int).Set(avail)
			}
			feeAmt = new(big.Int).Sub(st.remaining, afterFee)
		}
	} else {
		requested := new(big.Int).Neg(st.remaining)
		output = requested
		if output.Cmp(avail) > 0 {
			output = new(big.Int).Set(avail)
		}
		input, err = limitInputForOutput(output, sqrtP, zeroToOne)
		if err != nil {
			return err
		}
		feeAmt, err = feeOnTop(input, fee)
		if err != nil {
			return err
		}
	}

	if output.Sign() == 0 && input.Sign() == 0 {
		return nil
	}

	// Pro-rata attribution against the unfilled sum before this fill.
	spentDelta, err := MulDiv(output, Q128, avail)
	if err != nil {
		return err
	}
	acquiredDelta, err := MulDiv(input, Q128, avail)
	if err != nil {
		return err
	}
	st.fills = append(st.fills, fillRecord{
		side:     side,
		spent:    spentDelta,
		acquired: acquiredDelta,
		output:   output,
	})

	spent := new(big.Int).Add(input, feeAmt)
	if exactInput {
		st.remaining.Sub(st.remaining, spent)
	} else {
		st.remaining.Add(st.remaining, output)
	}
	st.amountIn.Add(st.amountIn, spent)
	st.amountOut.Add(st.amountOut, output)

	return st.accrueFee(feeAmt, communityFee)
}

// limitOutputForInput converts an input amount at an exact sqrt price.
// The output rounds down in the swapper's disfavor.
func limitOutputForInput(input, sqrtP *big.Int, zeroToOne bool) (*big.Int, error) {
	a, b := sqrtP, Q96
	if !zeroToOne {
		a, b = Q96, sqrtP
	}
	half, err := MulDiv(input, a, b)
	if err != nil {
		return nil, err
	}
	return MulDiv(half, a, b)
}

// limitInputForOutput is the inverse conversion, rounding up.
func limitInputForOutput(output, sqrtP *big.Int, zeroToOne bool) (*big.Int, error) {
	a, b := Q96, sqrtP
	if !zeroToOne {
		a, b = sqrtP, Q96
	}
	half, err := MulDivRoundingUp(output, a, b)
	if err != nil {
		return nil, err
	}
	return MulDivRoundingUp(half, a, b)
}

// feeOnTop grosses a net input up to the fee charged on it.
func feeOnTop(input *big.Int, fee uint32) (*big.Int, error) {
	if input.Sign() == 0 || fee == 0 {
		return new(big.Int), nil
	}
	return MulDivRoundingUp(input, big.NewInt(int64(fee)), big.NewInt(int64(FeeDenominator-fee)))
}

// accrueFee splits a fee amount between the community share and the
// per-liquidity growth accumulator. With no active liquidity the whole
// amount goes to the community.
func (st *swapState) accrueFee(feeAmt *big.Int, communityFee uint32) error {
	if feeAmt.Sign() == 0 {
		return nil
	}
	community := new(big.Int)
	if communityFee > 0 {
		community.Mul(feeAmt, big.NewInt(int64(communityFee)))
		community.Quo(community, communityFeeDenominatorBig)
	}
	lpShare := new(big.Int).Sub(feeAmt, community)
	if st.liquidity.Sign() > 0 {
		growth, err := MulDiv(lpShare, Q128, st.liquidity)
		if err != nil {
			return err
		}
		st.feeGrowthInput.Add(st.feeGrowthInput, growth)
	} else {
		community.Add(community, lpShare)
	}
	st.communityPending.Add(st.communityPending, community)
	return nil
}

// commitSwap writes the staged swap state back to the pool: global
// state, active liquidity, fee accumulators, order fills, crossings,
// and retired ticks, in that order.
func (p *Pool) commitSwap(st *swapState, zeroToOne bool) {
	p.globalState.Price = st.price
	p.globalState.Tick = st.tick
	p.liquidity = st.liquidity
	if zeroToOne {
		p.totalFeeGrowth0 = st.feeGrowthInput
		p.communityFeePending0 = st.communityPending
	} else {
		p.totalFeeGrowth1 = st.feeGrowthInput
		p.communityFeePending1 = st.communityPending
	}

	for _, f := range st.fills {
		f.side.SpentCum.Add(f.side.SpentCum, f.spent)
		f.side.AcquiredCum.Add(f.side.AcquiredCum, f.acquired)
		f.side.Unfilled.Sub(f.side.Unfilled, f.output)
		if f.side.Unfilled.Sign() < 0 {
			f.side.Unfilled.SetInt64(0)
		}
	}
	for _, c := range st.crossings {
		p.ticks.Cross(c.tick, c.fg0, c.fg1, c.spl)
	}
	for _, tick := range st.dead {
		p.ticks.deactivate(tick)
	}
	p.globalState.PrevInitializedTick = st.cursor

	if len(st.crossings) > 0 && p.incentive != nil {
		// Farming failures must not unwind a completed swap.
		if err := p.incentive.CrossTo(st.tick, zeroToOne); err != nil {
			p.log.Warn("incentive crossTo failed", zap.Error(err))
		}
	}
}
