// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// Flash lends amount0 and amount1 to recipient for the duration of the
// callback. The callback must return the principal plus a flat fee of
// FlashFee parts per million per asset; the fee accrues to in-range
// liquidity like a swap fee, minus the community share.
func (p *Pool) Flash(
	recipient common.Address,
	amount0, amount1 *big.Int,
	cb FlashCallback,
) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err := p.requireUnlocked(); err != nil {
		return err
	}
	if amount0 == nil {
		amount0 = new(big.Int)
	}
	if amount1 == nil {
		amount1 = new(big.Int)
	}
	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return ErrZeroAmountRequired
	}
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return ErrZeroAmountRequired
	}
	if err := p.touch(); err != nil {
		return err
	}

	fee0, err := flashFee(amount0)
	if err != nil {
		return err
	}
	fee1, err := flashFee(amount1)
	if err != nil {
		return err
	}

	before0 := p.vault.Balance(p.key.Currency0)
	before1 := p.vault.Balance(p.key.Currency1)

	if amount0.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency0, recipient, amount0); err != nil {
			return err
		}
	}
	if amount1.Sign() > 0 {
		if err := p.vault.Pay(p.key.Currency1, recipient, amount1); err != nil {
			return err
		}
	}

	failed := cb(fee0, fee1) != nil

	after0 := p.vault.Balance(p.key.Currency0)
	after1 := p.vault.Balance(p.key.Currency1)
	owed0 := new(big.Int).Add(before0, fee0)
	owed1 := new(big.Int).Add(before1, fee1)
	if failed || after0.Cmp(owed0) < 0 || after1.Cmp(owed1) < 0 {
		// Unwind the payout so a failed loan leaves the reserves
		// exactly where they were.
		p.reclaimLoan(recipient, p.key.Currency0, amount0, before0)
		p.reclaimLoan(recipient, p.key.Currency1, amount1, before1)
		return ErrFlashLoanNotRepaid
	}

	// Whatever came back beyond the principal is treated as the paid
	// fee, so overpayment also reaches liquidity providers.
	paid0 := new(big.Int).Sub(after0, before0)
	paid1 := new(big.Int).Sub(after1, before1)
	if err := p.accrueFlashFee(paid0, true); err != nil {
		return err
	}
	if err := p.accrueFlashFee(paid1, false); err != nil {
		return err
	}

	p.log.Debug("flash",
		zap.String("pool", p.key.ID().Hex()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return nil
}

// reclaimLoan pulls back whatever part of the lent principal has not
// come home, up to what the recipient's account still holds.
func (p *Pool) reclaimLoan(recipient common.Address, currency Currency, amount, before *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	shortfall := new(big.Int).Sub(before, p.vault.Balance(currency))
	if shortfall.Sign() <= 0 {
		return
	}
	if err := p.vault.Reclaim(currency, recipient, shortfall); err != nil {
		p.log.Warn("flash reclaim failed", zap.Error(err))
	}
}

func flashFee(amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	return MulDivRoundingUp(amount, big.NewInt(int64(FlashFee)), feeDenominatorBig)
}

func (p *Pool) accrueFlashFee(paid *big.Int, isToken0 bool) error {
	if paid.Sign() <= 0 {
		return nil
	}
	communityFee := p.globalState.CommunityFee0
	if !isToken0 {
		communityFee = p.globalState.CommunityFee1
	}
	community := new(big.Int)
	if communityFee > 0 {
		community.Mul(paid, big.NewInt(int64(communityFee)))
		community.Quo(community, communityFeeDenominatorBig)
	}
	lpShare := new(big.Int).Sub(paid, community)
	if p.liquidity.Sign() > 0 {
		growth, err := MulDiv(lpShare, Q128, p.liquidity)
		if err != nil {
			return err
		}
		if isToken0 {
			p.totalFeeGrowth0.Add(p.totalFeeGrowth0, growth)
		} else {
			p.totalFeeGrowth1.Add(p.totalFeeGrowth1, growth)
		}
	} else {
		community.Add(community, lpShare)
	}
	if isToken0 {
		p.communityFeePending0.Add(p.communityFeePending0, community)
	} else {
		p.communityFeePending1.Add(p.communityFeePending1, community)
	}
	return nil
}
