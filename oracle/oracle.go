// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle records pool observations and derives the dynamic swap
// fee from recent tick volatility.
package oracle

import (
	"math/big"
	"sync"
)

const (
	// MaxTimepoints is the ring buffer capacity. Indices are uint16 so
	// the buffer wraps naturally.
	MaxTimepoints = 1 << 16

	// MinFee and MaxFee bound the dynamic fee, in parts per million.
	MinFee = 100
	MaxFee = 50000

	// WindowSeconds is the lookback used to average volatility.
	WindowSeconds = 86400
)

// FeeConfig shapes the volatility-to-fee mapping. The fee starts at
// BaseFee and grows linearly with average squared tick movement, with
// the volatility term capped before clamping to [MinFee, MaxFee].
type FeeConfig struct {
	BaseFee           uint32 // ppm at zero volatility
	VolatilityGain    uint32 // ppm added per unit of average volatility
	MaxVolatilityTerm uint32 // cap on the volatility contribution, ppm
}

// DefaultFeeConfig mirrors a 0.3% pool at rest.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		BaseFee:           3000,
		VolatilityGain:    15,
		MaxVolatilityTerm: 47000,
	}
}

// Timepoint is one recorded observation.
type Timepoint struct {
	Initialized          bool
	BlockTimestamp       uint32
	Tick                 int32
	TickCumulative       int64  // tick * seconds, summed
	VolatilityCumulative uint64 // squared tick moves, summed
	Liquidity            *big.Int
}

// DataStorage is the per-pool observation log. It satisfies the pool's
// DataStorageOperator interface.
type DataStorage struct {
	mu         sync.Mutex
	timepoints []Timepoint
	cfg        FeeConfig
	latest     uint16
	filled     bool // ring has wrapped at least once
	empty      bool
}

func NewDataStorage(cfg FeeConfig) *DataStorage {
	return &DataStorage{
		timepoints: make([]Timepoint, MaxTimepoints),
		cfg:        cfg,
		empty:      true,
	}
}

// Write appends an observation. Repeated writes at the same timestamp
// keep the earlier one and return the same index.
func (ds *DataStorage) Write(index uint16, time uint32, tick int32, liquidity *big.Int) (uint16, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.empty {
		ds.timepoints[0] = Timepoint{
			Initialized:    true,
			BlockTimestamp: time,
			Tick:           tick,
			Liquidity:      new(big.Int).Set(liquidity),
		}
		ds.latest = 0
		ds.empty = false
		return 0, nil
	}

	last := &ds.timepoints[index]
	if last.BlockTimestamp == time {
		return index, nil
	}

	dt := uint64(time - last.BlockTimestamp)
	deviation := int64(tick - last.Tick)

	next := index + 1 // wraps
	if next == 0 {
		ds.filled = true
	}
	ds.timepoints[next] = Timepoint{
		Initialized:          true,
		BlockTimestamp:       time,
		Tick:                 tick,
		TickCumulative:       last.TickCumulative + int64(last.Tick)*int64(dt),
		VolatilityCumulative: last.VolatilityCumulative + uint64(deviation*deviation),
		Liquidity:            new(big.Int).Set(liquidity),
	}
	ds.latest = next
	return next, nil
}

// CurrentFee maps the average volatility over the lookback window to a
// swap fee in parts per million.
func (ds *DataStorage) CurrentFee(time uint32, tick int32, index uint16, liquidity *big.Int) (uint32, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	fee := uint64(ds.cfg.BaseFee)
	if !ds.empty {
		vol := ds.averageVolatility(time, index)
		term := vol * uint64(ds.cfg.VolatilityGain)
		if term > uint64(ds.cfg.MaxVolatilityTerm) {
			term = uint64(ds.cfg.MaxVolatilityTerm)
		}
		fee += term
	}
	if fee < MinFee {
		fee = MinFee
	}
	if fee > MaxFee {
		fee = MaxFee
	}
	return uint32(fee), nil
}

// TickCumulativeAt reconstructs the tick cumulative at a past moment by
// interpolating between the surrounding observations. Callers use pairs
// of these to form time-weighted average ticks.
func (ds *DataStorage) TickCumulativeAt(time uint32, secondsAgo uint32) (int64, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.empty {
		return 0, false
	}
	target := time - secondsAgo
	latest := &ds.timepoints[ds.latest]
	if target >= latest.BlockTimestamp {
		dt := int64(target - latest.BlockTimestamp)
		return latest.TickCumulative + int64(latest.Tick)*dt, true
	}

	before, after, ok := ds.surrounding(target)
	if !ok {
		return 0, false
	}
	if after == nil || after.BlockTimestamp == before.BlockTimestamp {
		dt := int64(target - before.BlockTimestamp)
		return before.TickCumulative + int64(before.Tick)*dt, true
	}
	// Linear interpolation between the surrounding observations.
	span := int64(after.BlockTimestamp - before.BlockTimestamp)
	elapsed := int64(target - before.BlockTimestamp)
	delta := after.TickCumulative - before.TickCumulative
	return before.TickCumulative + delta*elapsed/span, true
}

func (ds *DataStorage) oldest() uint16 {
	if ds.filled {
		return ds.latest + 1
	}
	return 0
}

// averageVolatility is the accumulated squared tick movement over the
// lookback window divided by its duration.
func (ds *DataStorage) averageVolatility(time uint32, index uint16) uint64 {
	latest := &ds.timepoints[index]
	var windowStart uint32
	if time > WindowSeconds {
		windowStart = time - WindowSeconds
	}

	before, _, ok := ds.surrounding(windowStart)
	if !ok {
		before = &ds.timepoints[ds.oldest()]
	}
	if before.BlockTimestamp >= latest.BlockTimestamp {
		return 0
	}
	volDelta := latest.VolatilityCumulative - before.VolatilityCumulative
	span := uint64(latest.BlockTimestamp - before.BlockTimestamp)
	if span == 0 {
		return 0
	}
	return volDelta / span
}

// surrounding binary-searches the ring for the observations bracketing
// target. Timestamps are monotone in write order, so the search runs on
// unwrapped virtual indices.
func (ds *DataStorage) surrounding(target uint32) (before, after *Timepoint, ok bool) {
	lo := uint32(ds.oldest())
	hi := uint32(ds.latest)
	if ds.filled && hi < lo {
		hi += MaxTimepoints
	}
	oldest := &ds.timepoints[uint16(lo)]
	if target < oldest.BlockTimestamp {
		return nil, nil, false
	}

	for lo < hi {
		mid := (lo + hi + 1) / 2
		tp := &ds.timepoints[uint16(mid)]
		if tp.BlockTimestamp <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	before = &ds.timepoints[uint16(lo)]
	if uint16(lo) != ds.latest {
		after = &ds.timepoints[uint16(lo+1)]
	}
	return before, after, true
}
