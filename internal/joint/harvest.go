package joint

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/metrics"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/valuation"

	"github.com/ethereum/go-ethereum/common"
)

const (
	phaseBeforeBalance = "before balance"
	phaseAfterBalance  = "after balance"
)

// Harvest unwinds the position, converts rewards, rebalances both legs to equal
// performance and resets the contributions. With returnFunds each provider receives
// its leg. A harvest on an idle position is a no-op.
func (j *Joint) Harvest(ctx context.Context, caller common.Address, returnFunds bool) (types.OperationReport, error) {
	return j.run(ctx, types.OpHarvest, caller, access.RoleProvider, func(op *operation) error {
		return j.harvest(op, returnFunds)
	})
}

func (j *Joint) harvest(op *operation, returnFunds bool) error {
	ctx, inst, venue := op.ctx, op.inst, j.venue

	if op.staged.IsIdle() {
		op.report.NoOp = true
		op.log.Info().Msg("Nothing invested, harvest is a no-op")
		return nil
	}

	// --- Step 1-3: Unwind ---
	if err := j.unwind(op); err != nil {
		return err
	}

	// --- Step 4: Convert rewards ---
	if !inst.RewardIsLeg() {
		if err := j.convertReward(op); err != nil {
			return err
		}
	}

	// --- Step 5: Ratios before balancing ---
	currentA, currentB, err := j.legBalances(ctx, inst)
	if err != nil {
		return err
	}
	if err := j.recordRatios(op, phaseBeforeBalance, currentA, currentB); err != nil {
		return err
	}

	// --- Step 6: Solve ---
	reserveA, reserveB, err := venue.AMM.Reserves(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reserves: %w", err)
	}
	side, amount, err := valuation.SellAmountToBalance(valuation.Inputs{
		CurrentA:   currentA,
		CurrentB:   currentB,
		StartingA:  op.staged.ContributedA,
		StartingB:  op.staged.ContributedB,
		ReserveA:   reserveA,
		ReserveB:   reserveB,
		PrecisionA: inst.LegA.Precision(),
		PrecisionB: inst.LegB.Precision(),
	}, j.quoter)
	if err != nil {
		return fmt.Errorf("failed to compute rebalancing amount: %w", err)
	}
	op.log.Info().
		Str("sellSide", string(side)).
		Str("amount", amount.String()).
		Msg("Step 6: Rebalancing amount computed")

	// --- Step 7: Rebalance ---
	if side != types.SideNone && amount.IsPositive() {
		sell, _ := inst.Leg(side)
		buy, _ := inst.Leg(side.Other())
		received, err := venue.AMM.Swap(ctx, sell.Token, buy.Token, amount)
		if err != nil {
			return fmt.Errorf("rebalancing swap: %w", err)
		}
		op.irreversible("rebalance_swap")
		op.report.Swaps = append(op.report.Swaps, types.SwapRecord{
			Purpose:   "rebalance",
			SellSide:  side,
			TokenIn:   sell.Symbol,
			TokenOut:  buy.Symbol,
			AmountIn:  amount,
			AmountOut: received,
		})

		currentA, currentB, err = j.legBalances(ctx, inst)
		if err != nil {
			return err
		}
		if err := j.recordRatios(op, phaseAfterBalance, currentA, currentB); err != nil {
			return err
		}
	}
	op.report.FinalA = currentA
	op.report.FinalB = currentB

	// --- Step 8: Reset ---
	op.staged.Reset()
	op.markDirty()

	// --- Step 9: Return funds ---
	if returnFunds {
		if err := j.returnLegs(op, currentA, currentB); err != nil {
			return err
		}
	}

	op.log.Info().
		Str("finalA", currentA.String()).
		Str("finalB", currentB.String()).
		Bool("returned", returnFunds).
		Msg("Position harvested")
	return nil
}

// unwind unstakes everything, closes the hedge and removes all liquidity.
// It clears the staged hedge but leaves the contributions untouched.
func (j *Joint) unwind(op *operation) error {
	ctx, venue := op.ctx, j.venue

	staked, err := venue.Staking.StakedBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read staked balance: %w", err)
	}
	op.log.Info().Str("shares", staked.String()).Msg("Step 1: Unstaking pool shares...")
	if staked.IsPositive() {
		if err := venue.Staking.Unstake(ctx, staked); err != nil {
			return fmt.Errorf("unstake: %w", err)
		}
		op.onFailure("unstake", func(ctx context.Context) error {
			return venue.Staking.Stake(ctx, staked)
		})
	}

	if op.staged.Hedge.IsOpen() {
		hedge := op.staged.Hedge
		op.log.Info().
			Str("callID", hedge.CallID.String()).
			Str("putID", hedge.PutID.String()).
			Msg("Step 2: Closing hedge...")
		payoutA, payoutB, err := venue.Hedge.Close(ctx, hedge.CallID, hedge.PutID)
		if err != nil {
			return fmt.Errorf("close hedge: %w", err)
		}
		op.settle("close_hedge", clearHedge)
		op.log.Info().
			Str("payoutA", payoutA.String()).
			Str("payoutB", payoutB.String()).
			Msg("Hedge closed")
	} else {
		op.log.Info().Msg("Step 2: No hedge open")
	}

	shares, err := venue.AMM.PairBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pool share balance: %w", err)
	}
	op.log.Info().Str("shares", shares.String()).Msg("Step 3: Removing liquidity...")
	if shares.IsPositive() {
		outA, outB, err := venue.AMM.RemoveLiquidity(ctx, shares)
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		op.onFailure("remove_liquidity", func(ctx context.Context) error {
			_, _, _, err := venue.AMM.AddLiquidity(ctx, outA, outB)
			return err
		})
	}
	return nil
}

// convertReward swaps the whole reward balance into the leg FindSwapLeg picks.
func (j *Joint) convertReward(op *operation) error {
	ctx, inst, venue := op.ctx, op.inst, j.venue

	balance, err := venue.Tokens.BalanceOf(ctx, inst.Reward)
	if err != nil {
		return fmt.Errorf("failed to read reward balance: %w", err)
	}
	if !balance.IsPositive() {
		op.log.Info().Msg("Step 4: No reward to convert")
		return nil
	}
	target, err := findSwapLeg(inst, inst.Reward)
	if err != nil {
		return err
	}
	op.log.Info().
		Str("amount", balance.String()).
		Str("target", target.Hex()).
		Msg("Step 4: Converting reward...")
	received, err := venue.AMM.Swap(ctx, inst.Reward, target, balance)
	if err != nil {
		return fmt.Errorf("reward swap: %w", err)
	}
	op.irreversible("reward_swap")

	out := target.Hex()
	if side := inst.SideOf(target); side != types.SideNone {
		leg, _ := inst.Leg(side)
		out = leg.Symbol
	}
	op.report.Swaps = append(op.report.Swaps, types.SwapRecord{
		Purpose:   "reward",
		TokenIn:   inst.Reward.Hex(),
		TokenOut:  out,
		AmountIn:  balance,
		AmountOut: received,
	})
	return nil
}

func clearHedge(l *types.Ledger) {
	l.Hedge = types.NoHedge()
}

func (j *Joint) legBalances(ctx context.Context, inst types.Instance) (sdkmath.Int, sdkmath.Int, error) {
	balA, err := j.venue.Tokens.BalanceOf(ctx, inst.LegA.Token)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("failed to read %s balance: %w", inst.LegA.Symbol, err)
	}
	balB, err := j.venue.Tokens.BalanceOf(ctx, inst.LegB.Token)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("failed to read %s balance: %w", inst.LegB.Symbol, err)
	}
	return balA, balB, nil
}

// recordRatios emits the performance of each leg as a log event, a gauge and a report sample.
func (j *Joint) recordRatios(op *operation, phase string, currentA, currentB sdkmath.Int) error {
	ratioA, ratioB, err := valuation.Ratios(currentA, currentB, op.staged.ContributedA, op.staged.ContributedB)
	if err != nil {
		return fmt.Errorf("failed to compute ratios: %w", err)
	}
	op.report.Ratios = append(op.report.Ratios, types.RatioSample{Phase: phase, RatioA: ratioA, RatioB: ratioB})
	metrics.PerformanceRatio.WithLabelValues(op.inst.ID, "A", phase).Set(ratioFloat(ratioA))
	metrics.PerformanceRatio.WithLabelValues(op.inst.ID, "B", phase).Set(ratioFloat(ratioB))
	op.log.Info().
		Str("phase", phase).
		Str("ratioA", ratioA.String()).
		Str("ratioB", ratioB.String()).
		Msg("ratios")
	return nil
}

func ratioFloat(r sdkmath.Int) float64 {
	if r.IsInt64() {
		return float64(r.Int64())
	}
	f, _ := r.BigInt().Float64()
	return f
}

// returnLegs transfers each leg balance to its provider.
func (j *Joint) returnLegs(op *operation, amountA, amountB sdkmath.Int) error {
	ctx, inst := op.ctx, op.inst
	transfers := []struct {
		leg      types.Leg
		amount   sdkmath.Int
		returned *sdkmath.Int
	}{
		{inst.LegA, amountA, &op.report.ReturnedA},
		{inst.LegB, amountB, &op.report.ReturnedB},
	}
	for _, t := range transfers {
		if !t.amount.IsPositive() {
			continue
		}
		op.log.Info().
			Str("token", t.leg.Symbol).
			Str("amount", t.amount.String()).
			Str("provider", t.leg.Provider.Hex()).
			Msg("Returning funds to provider")
		if err := j.venue.Tokens.Transfer(ctx, t.leg.Token, t.leg.Provider, t.amount); err != nil {
			return fmt.Errorf("transfer %s to provider: %w", t.leg.Symbol, err)
		}
		op.irreversible("transfer_" + t.leg.Symbol)
		*t.returned = t.amount
	}
	return nil
}

// Liquidate unwinds the position without rebalancing or resetting the contributions,
// so the next harvest still measures the epoch's performance.
func (j *Joint) Liquidate(ctx context.Context, caller common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpLiquidate, caller, access.RoleAuthorized, func(op *operation) error {
		if err := j.unwind(op); err != nil {
			return err
		}
		a, b, err := j.legBalances(op.ctx, op.inst)
		if err != nil {
			return err
		}
		op.report.FinalA, op.report.FinalB = a, b
		return nil
	})
}

// ReturnLooseToProviders sends whatever each leg holds outside the pool to its provider.
func (j *Joint) ReturnLooseToProviders(ctx context.Context, caller common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpReturnLoose, caller, access.RoleAuthorized, func(op *operation) error {
		a, b, err := j.legBalances(op.ctx, op.inst)
		if err != nil {
			return err
		}
		return j.returnLegs(op, a, b)
	})
}
