package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNoHedger = errors.New("instance has no hedger configured")

// Open buys the option pair. The ids are read from a simulation of the same call made
// just before sending it; the signing client serializes transactions of the account.
func (a *Adapter) Open(ctx context.Context, shares sdkmath.Int, moneynessBps uint32, period time.Duration) (sdkmath.Int, sdkmath.Int, error) {
	if a.inst.Hedger == (common.Address{}) {
		return sdkmath.Int{}, sdkmath.Int{}, ErrNoHedger
	}
	if err := checkPositive(shares); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := a.ensureAllowance(ctx, a.inst.Pair, a.inst.Hedger, shares); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	// Premiums are pulled in the legs; any standing approval is enough.
	if err := a.ensureAllowance(ctx, a.inst.LegA.Token, a.inst.Hedger, sdkmath.OneInt()); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := a.ensureAllowance(ctx, a.inst.LegB.Token, a.inst.Hedger, sdkmath.OneInt()); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	args := []interface{}{a.inst.Pair, shares.BigInt(), big.NewInt(int64(moneynessBps)), big.NewInt(int64(period / time.Second))}
	out, err := a.preview(ctx, hedgerABI, a.inst.Hedger, "hedgeLPToken", args...)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	callID, err := uintAt(out, 0)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	putID, err := uintAt(out, 1)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if callID.IsZero() || putID.IsZero() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: hedger returned ids %s/%s", ErrUnexpectedABI, callID, putID)
	}

	if err := a.send(ctx, hedgerABI, a.inst.Hedger, "hedgeLPToken", args...); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	evmLogger.Info().
		Str("instance", a.inst.ID).
		Str("callID", callID.String()).
		Str("putID", putID.String()).
		Str("shares", shares.String()).
		Msg("Hedge opened")
	return callID, putID, nil
}

// Close settles both options and returns what each leg received.
func (a *Adapter) Close(ctx context.Context, callID, putID sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	before, err := a.balances(ctx, a.inst.LegA.Token, a.inst.LegB.Token)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := a.send(ctx, hedgerABI, a.inst.Hedger, "closeHedge", a.inst.Pair, callID.BigInt(), putID.BigInt()); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	after, err := a.balances(ctx, a.inst.LegA.Token, a.inst.LegB.Token)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return received(before[0], after[0]), received(before[1], after[1]), nil
}

func (a *Adapter) UnrealizedProfit(ctx context.Context, callID, putID sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	out, err := a.view(ctx, hedgerABI, a.inst.Hedger, "getHedgeProfit", a.inst.Pair, callID.BigInt(), putID.BigInt())
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	profit0, err := uintAt(out, 0)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	profit1, err := uintAt(out, 1)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	aIsToken0, err := a.legAIsToken0(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if aIsToken0 {
		return profit0, profit1, nil
	}
	return profit1, profit0, nil
}
