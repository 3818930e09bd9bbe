// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// Pool is a single concentrated liquidity pool. All mutating operations
// take the reentrancy lock for their full duration, including payment
// callbacks, so state is never observed mid-transition.
type Pool struct {
	key         PoolKey
	tickSpacing int32

	mu     sync.Mutex
	locked bool

	globalState GlobalState
	liquidity   *big.Int

	totalFeeGrowth0               *big.Int // Q128, per unit of liquidity
	totalFeeGrowth1               *big.Int
	secondsPerLiquidityCumulative *big.Int // Q128

	communityFeePending0 *big.Int
	communityFeePending1 *big.Int

	ticks     *TickTable
	positions map[common.Hash]*Position

	vault     TokenCustody
	oracle    DataStorageOperator
	clock     Clock
	incentive IncentiveTracker
	log       *zap.Logger

	// Intra-block price fence. blockStartTick is the tick observed at
	// the first touch of the current block; swaps in the same block may
	// not cross ticks beyond it.
	lastBlock      uint64
	blockStartTick int32

	lastTimepointTime uint32
}

// PoolOption configures optional pool collaborators.
type PoolOption func(*Pool)

// WithLogger attaches a structured logger. A nil logger is replaced
// with a no-op one.
func WithLogger(log *zap.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) PoolOption {
	return func(p *Pool) { p.clock = clock }
}

// WithIncentiveTracker attaches a farming hook notified on crossings.
func WithIncentiveTracker(tracker IncentiveTracker) PoolOption {
	return func(p *Pool) { p.incentive = tracker }
}

// NewPool constructs an uninitialized pool. Initialize must be called
// with a starting price before any liquidity or swap operation.
func NewPool(key PoolKey, tickSpacing int32, vault TokenCustody, oracle DataStorageOperator, opts ...PoolOption) *Pool {
	p := &Pool{
		key:                           key,
		tickSpacing:                   tickSpacing,
		globalState:                   GlobalState{Price: new(big.Int)},
		liquidity:                     new(big.Int),
		totalFeeGrowth0:               new(big.Int),
		totalFeeGrowth1:               new(big.Int),
		secondsPerLiquidityCumulative: new(big.Int),
		communityFeePending0:          new(big.Int),
		communityFeePending1:          new(big.Int),
		ticks:                         NewTickTable(tickSpacing),
		positions:                     make(map[common.Hash]*Position),
		vault:                         vault,
		oracle:                        oracle,
		clock:                         NewSystemClock(),
		log:                           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) lock() error {
	p.mu.Lock()
	if p.locked {
		p.mu.Unlock()
		return ErrReentrant
	}
	p.locked = true
	p.mu.Unlock()
	return nil
}

func (p *Pool) unlock() {
	p.mu.Lock()
	p.locked = false
	p.mu.Unlock()
}

// Key returns the pool's currency pair.
func (p *Pool) Key() PoolKey { return p.key }

// TickSpacing returns the tick alignment granularity.
func (p *Pool) TickSpacing() int32 { return p.tickSpacing }

// State returns a copy of the pool's global state.
func (p *Pool) State() GlobalState {
	st := p.globalState
	st.Price = new(big.Int).Set(p.globalState.Price)
	return st
}

// Liquidity returns the currently active in-range liquidity.
func (p *Pool) Liquidity() *big.Int { return new(big.Int).Set(p.liquidity) }

// TotalFeeGrowth returns the global per-liquidity fee accumulators.
func (p *Pool) TotalFeeGrowth() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.totalFeeGrowth0), new(big.Int).Set(p.totalFeeGrowth1)
}

// CommunityFeesPending returns protocol fees accumulated and not yet
// swept to the community vault.
func (p *Pool) CommunityFeesPending() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.communityFeePending0), new(big.Int).Set(p.communityFeePending1)
}

// Initialize sets the starting price and unlocks the pool. The initial
// fee comes from the oracle operator so it tracks the same curve swaps
// will use.
func (p *Pool) Initialize(price *big.Int) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if p.globalState.Unlocked {
		return ErrPoolAlreadyInitialized
	}
	tick, err := GetTickAtSqrtRatio(price)
	if err != nil {
		return err
	}

	now := p.clock.Timestamp()
	index, err := p.oracle.Write(0, now, tick, new(big.Int))
	if err != nil {
		return err
	}
	fee, err := p.oracle.CurrentFee(now, tick, index, new(big.Int))
	if err != nil {
		return err
	}

	p.globalState = GlobalState{
		Price:               new(big.Int).Set(price),
		Tick:                tick,
		Fee:                 fee,
		TimepointIndex:      index,
		PrevInitializedTick: MinTick,
		Unlocked:            true,
	}
	p.lastTimepointTime = now
	p.lastBlock = p.clock.BlockNumber()
	p.blockStartTick = tick

	p.log.Info("pool initialized",
		zap.String("pool", p.key.ID().Hex()),
		zap.Int32("tick", tick),
		zap.Uint32("fee", fee),
	)
	return nil
}

// SetCommunityFee sets the protocol fee share for both assets, in
// thousandths, capped at MaxCommunityFee.
func (p *Pool) SetCommunityFee(fee0, fee1 uint32) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if fee0 > MaxCommunityFee || fee1 > MaxCommunityFee {
		return ErrInvalidCommunityFee
	}
	p.globalState.CommunityFee0 = fee0
	p.globalState.CommunityFee1 = fee1
	p.log.Info("community fee updated",
		zap.String("pool", p.key.ID().Hex()),
		zap.Uint32("fee0", fee0),
		zap.Uint32("fee1", fee1),
	)
	return nil
}

// CollectCommunityFees pays accumulated protocol fees to recipient and
// zeroes the pending counters.
func (p *Pool) CollectCommunityFees(recipient common.Address) (*big.Int, *big.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	amount0 := p.communityFeePending0
	amount1 := p.communityFeePending1
	p.communityFeePending0 = new(big.Int)
	p.communityFeePending1 = new(big.Int)

	if amount0.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency0, recipient, amount0); err != nil {
			return nil, nil, err
		}
	}
	if amount1.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency1, recipient, amount1); err != nil {
			return nil, nil, err
		}
	}
	return amount0, amount1, nil
}

// touch performs the once-per-interaction bookkeeping: advancing the
// seconds-per-liquidity accumulator, recording an oracle timepoint when
// the timestamp moved, refreshing the dynamic fee, and pinning the
// block-start tick on the first touch of a new block.
func (p *Pool) touch() error {
	now := p.clock.Timestamp()
	if now > p.lastTimepointTime {
		elapsed := new(big.Int).SetUint64(uint64(now - p.lastTimepointTime))
		if p.liquidity.Sign() > 0 {
			elapsed.Lsh(elapsed, 128)
			elapsed.Quo(elapsed, p.liquidity)
		} else {
			elapsed.Lsh(elapsed, 128)
		}
		p.secondsPerLiquidityCumulative.Add(p.secondsPerLiquidityCumulative, elapsed)

		index, err := p.oracle.Write(p.globalState.TimepointIndex, now, p.globalState.Tick, p.liquidity)
		if err != nil {
			return err
		}
		p.globalState.TimepointIndex = index
		p.lastTimepointTime = now

		fee, err := p.oracle.CurrentFee(now, p.globalState.Tick, index, p.liquidity)
		if err != nil {
			return err
		}
		p.globalState.Fee = fee
	}

	if block := p.clock.BlockNumber(); block != p.lastBlock {
		p.lastBlock = block
		p.blockStartTick = p.globalState.Tick
	}
	return nil
}

// refund returns a partial deposit to its payer after an operation
// failed post-callback, so no tokens are stranded in the vault.
func (p *Pool) refund(currency Currency, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if err := p.vault.Pay(currency, to, amount); err != nil {
		p.log.Warn("refund failed", zap.Error(err))
	}
}

func (p *Pool) requireUnlocked() error {
	if !p.globalState.Unlocked {
		return ErrPoolNotInitialized
	}
	return nil
}

// checkTicks validates a range position's bounds.
func (p *Pool) checkTicks(bottomTick, topTick int32) error {
	if bottomTick >= topTick {
		return ErrInvalidTickRange
	}
	if bottomTick < MinTick || topTick > MaxTick {
		return ErrTickOutOfRange
	}
	if bottomTick%p.tickSpacing != 0 || topTick%p.tickSpacing != 0 {
		return ErrTickNotAligned
	}
	return nil
}
