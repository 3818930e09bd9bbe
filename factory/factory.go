// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package factory creates and tracks pools and holds the governance
// levers: ownership, default fee configuration, and community fees.
package factory

import (
	"bytes"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/private-mev-research/Algebra/dex"
	"github.com/private-mev-research/Algebra/oracle"
)

// Factory registers pools by currency pair. Every pool shares the
// factory's vault and clock and gets its own observation log.
type Factory struct {
	mu    sync.Mutex
	owner common.Address

	vault  *dex.Vault
	clock  dex.Clock
	feeCfg oracle.FeeConfig
	pools  map[common.Hash]*dex.Pool

	defaultCommunityFee0 uint32
	defaultCommunityFee1 uint32

	log *zap.Logger
}

// Option configures optional factory collaborators.
type Option func(*Factory)

// WithLogger attaches a structured logger; nil keeps the no-op one.
func WithLogger(log *zap.Logger) Option {
	return func(f *Factory) {
		if log != nil {
			f.log = log
		}
	}
}

// WithClock overrides the time source used by new pools.
func WithClock(clock dex.Clock) Option {
	return func(f *Factory) { f.clock = clock }
}

// WithFeeConfig sets the fee curve given to new pools' oracles.
func WithFeeConfig(cfg oracle.FeeConfig) Option {
	return func(f *Factory) { f.feeCfg = cfg }
}

func New(owner common.Address, opts ...Option) *Factory {
	f := &Factory{
		owner:  owner,
		vault:  dex.NewVault(),
		clock:  dex.NewSystemClock(),
		feeCfg: oracle.DefaultFeeConfig(),
		pools:  make(map[common.Hash]*dex.Pool),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Vault returns the shared token custody backing all pools.
func (f *Factory) Vault() *dex.Vault { return f.vault }

// Owner returns the current governance address.
func (f *Factory) Owner() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// CreatePool registers a pool for a sorted currency pair. The pair must
// be given in ascending address order and not exist yet.
func (f *Factory) CreatePool(currency0, currency1 dex.Currency, tickSpacing int32) (*dex.Pool, error) {
	if bytes.Compare(currency0.Address.Bytes(), currency1.Address.Bytes()) >= 0 {
		return nil, dex.ErrCurrencyNotSorted
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := dex.PoolKey{Currency0: currency0, Currency1: currency1}
	id := key.ID()
	if _, exists := f.pools[id]; exists {
		return nil, dex.ErrPoolExists
	}

	pool := dex.NewPool(key, tickSpacing, f.vault,
		oracle.NewDataStorage(f.feeCfg),
		dex.WithClock(f.clock),
		dex.WithLogger(f.log),
	)
	f.pools[id] = pool

	f.log.Info("pool created",
		zap.String("pool", id.Hex()),
		zap.String("currency0", currency0.Address.Hex()),
		zap.String("currency1", currency1.Address.Hex()),
		zap.Int32("tickSpacing", tickSpacing),
	)

	if f.defaultCommunityFee0 > 0 || f.defaultCommunityFee1 > 0 {
		if err := pool.SetCommunityFee(f.defaultCommunityFee0, f.defaultCommunityFee1); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// Pool looks a pool up by its pair key.
func (f *Factory) Pool(key dex.PoolKey) (*dex.Pool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pool, ok := f.pools[key.ID()]
	return pool, ok
}

// SetOwner transfers governance. Only the current owner may call it.
func (f *Factory) SetOwner(caller, newOwner common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return dex.ErrUnauthorized
	}
	f.owner = newOwner
	f.log.Info("owner changed",
		zap.String("previous", caller.Hex()),
		zap.String("owner", newOwner.Hex()),
	)
	return nil
}

// SetDefaultCommunityFee sets the community fee applied to pools created
// from now on, in thousandths.
func (f *Factory) SetDefaultCommunityFee(caller common.Address, fee0, fee1 uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return dex.ErrUnauthorized
	}
	if fee0 > dex.MaxCommunityFee || fee1 > dex.MaxCommunityFee {
		return dex.ErrInvalidCommunityFee
	}
	f.defaultCommunityFee0 = fee0
	f.defaultCommunityFee1 = fee1
	return nil
}

// SetCommunityFee updates an existing pool's community fee.
func (f *Factory) SetCommunityFee(caller common.Address, key dex.PoolKey, fee0, fee1 uint32) error {
	f.mu.Lock()
	pool, ok := f.pools[key.ID()]
	owner := f.owner
	f.mu.Unlock()

	if caller != owner {
		return dex.ErrUnauthorized
	}
	if !ok {
		return dex.ErrPoolNotInitialized
	}
	return pool.SetCommunityFee(fee0, fee1)
}
