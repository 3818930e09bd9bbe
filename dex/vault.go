// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Vault is an in-memory TokenCustody. It tracks the pool's own reserves
// plus per-recipient account balances so tests and embedders can settle
// without an external token layer.
type Vault struct {
	mu       sync.Mutex
	reserves map[common.Address]*uint256.Int                    // pool holdings per currency
	accounts map[common.Address]map[common.Address]*uint256.Int // recipient -> currency -> balance
}

func NewVault() *Vault {
	return &Vault{
		reserves: make(map[common.Address]*uint256.Int),
		accounts: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Balance returns the pool's current reserve of the currency.
func (v *Vault) Balance(currency Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.reserves[currency.Address]; ok {
		return r.ToBig()
	}
	return new(big.Int)
}

// Pay moves amount of currency from the pool's reserves to recipient.
func (v *Vault) Pay(currency Currency, recipient common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrMulDivOverflow
	}
	r, ok := v.reserves[currency.Address]
	if !ok || r.Lt(delta) {
		return ErrInsufficientBalance
	}
	r.Sub(r, delta)
	v.creditLocked(recipient, currency, delta)
	return nil
}

// Credit adds amount of currency to the pool's reserves. Payment
// callbacks call this to simulate token transfers in.
func (v *Vault) Credit(currency Currency, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrMulDivOverflow
	}
	r, ok := v.reserves[currency.Address]
	if !ok {
		r = new(uint256.Int)
		v.reserves[currency.Address] = r
	}
	r.Add(r, delta)
	return nil
}

// Reclaim moves amount of currency from an account back to the pool's
// reserves. Flash loans use it to unwind an unrepaid payout.
func (v *Vault) Reclaim(currency Currency, from common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrMulDivOverflow
	}
	acct, ok := v.accounts[from]
	if !ok {
		return ErrInsufficientBalance
	}
	b, ok := acct[currency.Address]
	if !ok || b.Lt(delta) {
		return ErrInsufficientBalance
	}
	b.Sub(b, delta)
	r, ok := v.reserves[currency.Address]
	if !ok {
		r = new(uint256.Int)
		v.reserves[currency.Address] = r
	}
	r.Add(r, delta)
	return nil
}

// AccountBalance returns what recipient has been paid in currency.
func (v *Vault) AccountBalance(recipient common.Address, currency Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if acct, ok := v.accounts[recipient]; ok {
		if b, ok := acct[currency.Address]; ok {
			return b.ToBig()
		}
	}
	return new(big.Int)
}

func (v *Vault) creditLocked(recipient common.Address, currency Currency, delta *uint256.Int) {
	acct, ok := v.accounts[recipient]
	if !ok {
		acct = make(map[common.Address]*uint256.Int)
		v.accounts[recipient] = acct
	}
	b, ok := acct[currency.Address]
	if !ok {
		b = new(uint256.Int)
		acct[currency.Address] = b
	}
	b.Add(b, delta)
}

// SystemClock reads block-less wall time; block numbers advance once per
// second of wall time from process start.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock { return &SystemClock{start: time.Now()} }

func (c *SystemClock) Timestamp() uint32   { return uint32(time.Now().Unix()) }
func (c *SystemClock) BlockNumber() uint64 { return uint64(time.Since(c.start) / time.Second) }

// ManualClock is a hand-advanced Clock for deterministic tests.
type ManualClock struct {
	Time  uint32
	Block uint64
}

func (c *ManualClock) Timestamp() uint32   { return c.Time }
func (c *ManualClock) BlockNumber() uint64 { return c.Block }

// Advance moves the clock forward by seconds and blocks.
func (c *ManualClock) Advance(seconds uint32, blocks uint64) {
	c.Time += seconds
	c.Block += blocks
}
