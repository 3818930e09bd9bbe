// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex implements a concentrated-liquidity AMM swap engine.
// A Pool holds two assets and lets liquidity providers deposit into
// arbitrary tick ranges; traders swap against the aggregate liquidity
// active at the current price, paying a dynamically adjusted fee.
// Degenerate ranges (bottomTick == topTick) are resting limit orders
// that fill when the price reaches their tick exactly.
package dex

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Fee and community-fee denominators. Fees are expressed in
// parts-per-million of the swapped amount; the community fee is a
// per-mille fraction of the trading fee.
const (
	FeeDenominator          uint32 = 1_000_000
	CommunityFeeDenominator uint32 = 1_000
	MaxCommunityFee         uint32 = 250 // 25% of the trading fee

	// FlashFee is the fixed borrow fee for flash loans, in ppm.
	FlashFee uint32 = 100 // 0.01%

	// PriceImpactFeeCap bounds the supplemental fee charged for
	// sub-tick price movement, in the same ppm units as the base fee.
	PriceImpactFeeCap uint32 = 20_000
)

// Standard tick spacings.
const (
	TickSpacing001 int32 = 1
	TickSpacing005 int32 = 10
	TickSpacing030 int32 = 60
	TickSpacing100 int32 = 200
)

// Tick and sqrt-price bounds. Prices are Q64.96 fixed point: the square
// root of the token1/token0 exchange rate scaled by 2^96.
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	MinSqrtRatio    = new(big.Int).SetUint64(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Currency identifies a pool asset by its token address.
type Currency struct {
	Address common.Address
}

// ToBytes serializes the currency for hashing.
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// PoolKey identifies a pool by its sorted currency pair.
type PoolKey struct {
	Currency0 Currency // Lower address token
	Currency1 Currency // Higher address token
}

// ID computes the unique pool identifier.
func (pk PoolKey) ID() common.Hash {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())
	var id [32]byte
	h.Digest().Read(id[:])
	return common.Hash(id)
}

// PositionKey computes the unique position identifier for
// (owner, bottomTick, topTick). Equal bounds denote a limit order.
func PositionKey(owner common.Address, bottomTick, topTick int32) common.Hash {
	h := blake3.New()
	h.Write(owner.Bytes())
	var tickBytes [8]byte
	binary.BigEndian.PutUint32(tickBytes[:4], uint32(bottomTick))
	binary.BigEndian.PutUint32(tickBytes[4:], uint32(topTick))
	h.Write(tickBytes[:])
	var key [32]byte
	h.Digest().Read(key[:])
	return common.Hash(key)
}

// GlobalState is the per-pool state touched by every operation. It is an
// ordinary mutable record guarded by the pool's operation lock; all swap
// iterations stage their changes locally and write the record back once.
type GlobalState struct {
	Price               *big.Int // current sqrt price, Q64.96
	Tick                int32    // floor(log_1.0001(price^2))
	Fee                 uint32   // current base fee, ppm
	TimepointIndex      uint16   // most recently written oracle timepoint
	CommunityFee0       uint32   // per-mille skim on token0 fees
	CommunityFee1       uint32   // per-mille skim on token1 fees
	PrevInitializedTick int32    // nearest initialized tick at or below Tick
	Unlocked            bool     // liveness flag, false while an operation runs
}

// Position tracks liquidity deposited over [bottomTick, topTick) plus the
// fees accrued since the position was last touched. For limit orders
// (bottomTick == topTick) the growth snapshots are replaced by the tick's
// cumulative spent/acquired accumulators.
type Position struct {
	Owner      common.Address
	BottomTick int32
	TopTick    int32

	Liquidity *big.Int

	InnerFeeGrowth0Last *big.Int // Q128, at last touch
	InnerFeeGrowth1Last *big.Int

	TokensOwed0 *big.Int
	TokensOwed1 *big.Int

	// Limit-order settlement snapshots (Q128 per unit of resting size).
	LimitSpentLast    *big.Int
	LimitAcquiredLast *big.Int
	IsLimitOrder      bool
	SellsToken0       bool // deposit side recorded at first mint
}

func newPosition(owner common.Address, bottomTick, topTick int32) *Position {
	return &Position{
		Owner:               owner,
		BottomTick:          bottomTick,
		TopTick:             topTick,
		Liquidity:           new(big.Int),
		InnerFeeGrowth0Last: new(big.Int),
		InnerFeeGrowth1Last: new(big.Int),
		TokensOwed0:         new(big.Int),
		TokensOwed1:         new(big.Int),
		LimitSpentLast:      new(big.Int),
		LimitAcquiredLast:   new(big.Int),
	}
}

// SwapCallback is invoked after the swap amounts are known and must make
// the input amount available to the pool's custody before returning.
// Amounts are positive when owed to the pool.
type SwapCallback func(amount0, amount1 *big.Int) error

// MintCallback must deposit the owed token amounts with the pool's
// custody. Underpayment scales the minted liquidity down.
type MintCallback func(amount0, amount1 *big.Int) error

// FlashCallback runs with the borrowed amounts already paid out and must
// return them plus the quoted fees before it finishes.
type FlashCallback func(fee0, fee1 *big.Int) error

// TokenCustody abstracts the token ledger the pool owns balances in.
// The engine never trusts callbacks: it reads balances back through this
// interface and verifies post-conditions.
type TokenCustody interface {
	// Balance returns the pool-owned balance of the given token.
	Balance(token Currency) *big.Int
	// Pay pushes tokens from the pool's balance to a recipient.
	Pay(token Currency, to common.Address, amount *big.Int) error
	// Reclaim pulls previously paid tokens back from a recipient,
	// unwinding a payout whose operation failed.
	Reclaim(token Currency, from common.Address, amount *big.Int) error
}

// DataStorageOperator supplies historical timepoints and the dynamic base
// fee. The pool calls Write once per first-touch-in-block.
type DataStorageOperator interface {
	// Write records a (time, tick, liquidity) timepoint and returns the
	// new timepoint index.
	Write(index uint16, time uint32, tick int32, liquidity *big.Int) (uint16, error)
	// CurrentFee returns the base fee in ppm for the given state.
	CurrentFee(time uint32, tick int32, index uint16, liquidity *big.Int) (uint32, error)
}

// IncentiveTracker is notified after a swap that crossed ticks so
// external reward accounting stays synchronized. Notification failures
// are logged and never unwind the swap.
type IncentiveTracker interface {
	CrossTo(targetTick int32, zeroToOne bool) error
}

// Clock supplies the block context the engine needs for once-per-block
// bookkeeping. Embedders map this onto their host environment.
type Clock interface {
	Timestamp() uint32
	BlockNumber() uint64
}

// Errors - invalid arguments. No state is mutated when these surface.
var (
	ErrZeroAmountRequired   = errors.New("amount required cannot be zero")
	ErrInvalidTickRange     = errors.New("invalid tick range")
	ErrTickOutOfRange       = errors.New("tick out of range")
	ErrTickNotAligned       = errors.New("tick not aligned to spacing")
	ErrInvalidLimitPrice    = errors.New("price limit on wrong side or out of bounds")
	ErrInvalidSqrtPrice     = errors.New("invalid sqrt price")
	ErrZeroLiquidityDesired = errors.New("liquidity desired cannot be zero")
	ErrInvalidCommunityFee  = errors.New("community fee exceeds maximum")
	ErrAmbiguousOrderSide   = errors.New("limit order tick equals current tick")
)

// Errors - arithmetic bounds. The whole operation aborts; no partial
// state is written.
var (
	ErrDivisionByZero    = errors.New("division by zero")
	ErrMulDivOverflow    = errors.New("muldiv result exceeds 256 bits")
	ErrPriceOutOfBounds  = errors.New("computed price outside representable bounds")
	ErrZeroLiquidity     = errors.New("liquidity cannot be zero")
	ErrLiquidityOverflow = errors.New("liquidity delta overflows tick total")
)

// Errors - insufficient funds.
var (
	ErrInsufficientInputAmount = errors.New("callback did not deliver the promised tokens")
	ErrFlashLoanNotRepaid      = errors.New("flash loan not repaid with fee")
	ErrZeroLiquidityActual     = errors.New("payment too small for any liquidity")
	ErrInsufficientBalance     = errors.New("insufficient custody balance")
)

// Errors - state preconditions.
var (
	ErrReentrant              = errors.New("reentrancy detected")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrEmptyPosition          = errors.New("burning from an empty position")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCurrencyNotSorted      = errors.New("currencies not sorted")
	ErrPoolExists             = errors.New("pool already exists")
)
