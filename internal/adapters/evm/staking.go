package evm

import (
	"context"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

func (a *Adapter) pid() *big.Int {
	return new(big.Int).SetUint64(a.inst.PoolID)
}

func (a *Adapter) Stake(ctx context.Context, shares sdkmath.Int) error {
	if err := checkPositive(shares); err != nil {
		return err
	}
	if err := a.ensureAllowance(ctx, a.inst.Pair, a.inst.MasterChef, shares); err != nil {
		return err
	}
	return a.send(ctx, masterChefABI, a.inst.MasterChef, "deposit", a.pid(), shares.BigInt())
}

func (a *Adapter) Unstake(ctx context.Context, shares sdkmath.Int) error {
	if err := checkPositive(shares); err != nil {
		return err
	}
	return a.send(ctx, masterChefABI, a.inst.MasterChef, "withdraw", a.pid(), shares.BigInt())
}

func (a *Adapter) StakedBalance(ctx context.Context) (sdkmath.Int, error) {
	out, err := a.view(ctx, masterChefABI, a.inst.MasterChef, "userInfo", a.pid(), a.inst.Self)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return uintAt(out, 0)
}

func (a *Adapter) PendingReward(ctx context.Context) (sdkmath.Int, error) {
	out, err := a.view(ctx, a.pending, a.inst.MasterChef, a.pendMth, a.pid(), a.inst.Self)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return uintAt(out, 0)
}

// Claim deposits zero, which masterchef contracts treat as a harvest.
func (a *Adapter) Claim(ctx context.Context) error {
	return a.send(ctx, masterChefABI, a.inst.MasterChef, "deposit", a.pid(), big.NewInt(0))
}
