package joint

import (
	"context"
	"fmt"

	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// Invest provides liquidity with the balances both providers deposited, hedges the
// position when a budget is set and stakes every pool share. Only a provider may call it.
func (j *Joint) Invest(ctx context.Context, caller common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpInvest, caller, access.RoleProvider, j.invest)
}

func (j *Joint) invest(op *operation) error {
	ctx, inst, venue := op.ctx, op.inst, j.venue

	// --- Step 1: Preconditions ---
	op.log.Info().Msg("Step 1: Checking invest preconditions...")
	if !op.staged.IsIdle() {
		return fmt.Errorf("%w: contributions %s/%s", ErrAlreadyInvested, op.staged.ContributedA, op.staged.ContributedB)
	}
	if op.staged.Hedge.IsOpen() {
		return fmt.Errorf("%w: call %s put %s", types.ErrHedgeAlreadyActive, op.staged.Hedge.CallID, op.staged.Hedge.PutID)
	}
	staked, err := venue.Staking.StakedBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read staked balance: %w", err)
	}
	unstaked, err := venue.AMM.PairBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pool share balance: %w", err)
	}
	if staked.IsPositive() || unstaked.IsPositive() {
		return fmt.Errorf("%w: holding %s staked and %s unstaked pool shares", ErrAlreadyInvested, staked, unstaked)
	}

	balA, err := venue.Tokens.BalanceOf(ctx, inst.LegA.Token)
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", inst.LegA.Symbol, err)
	}
	balB, err := venue.Tokens.BalanceOf(ctx, inst.LegB.Token)
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", inst.LegB.Symbol, err)
	}
	if !balA.IsPositive() || !balB.IsPositive() {
		return fmt.Errorf("%w: %s=%s %s=%s", ErrNothingToInvest, inst.LegA.Symbol, balA, inst.LegB.Symbol, balB)
	}

	// --- Step 2: Provide liquidity ---
	params := op.staged.Params
	amountA, err := applyBps(balA, params.HedgeBudgetBps)
	if err != nil {
		return err
	}
	amountB, err := applyBps(balB, params.HedgeBudgetBps)
	if err != nil {
		return err
	}
	op.log.Info().
		Str("amountA", amountA.String()).
		Str("amountB", amountB.String()).
		Uint32("hedgeBudgetBps", params.HedgeBudgetBps).
		Msg("Step 2: Adding liquidity...")

	usedA, usedB, shares, err := venue.AMM.AddLiquidity(ctx, amountA, amountB)
	if err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	op.onFailure("add_liquidity", func(ctx context.Context) error {
		_, _, err := venue.AMM.RemoveLiquidity(ctx, shares)
		return err
	})
	op.staged.ContributedA = usedA
	op.staged.ContributedB = usedB
	op.report.ContributedA = usedA
	op.report.ContributedB = usedB
	op.report.Shares = shares

	// --- Step 3: Hedge ---
	if params.HedgeBudgetBps > 0 {
		op.log.Info().
			Str("shares", shares.String()).
			Uint32("moneynessBps", params.HedgeMoneynessBps).
			Dur("period", params.HedgePeriod).
			Msg("Step 3: Opening hedge...")
		callID, putID, err := venue.Hedge.Open(ctx, shares, params.HedgeMoneynessBps, params.HedgePeriod)
		if err != nil {
			return fmt.Errorf("open hedge: %w", err)
		}
		op.onFailure("open_hedge", func(ctx context.Context) error {
			_, _, err := venue.Hedge.Close(ctx, callID, putID)
			return err
		})
		op.staged.Hedge = types.Hedge{CallID: callID, PutID: putID}
		if err := op.staged.Hedge.Validate(); err != nil {
			return err
		}
		op.report.Hedge = op.staged.Hedge
	} else {
		op.log.Info().Msg("Step 3: Hedge budget is zero, skipping hedge")
	}

	// --- Step 4: Stake ---
	toStake, err := venue.AMM.PairBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pool share balance: %w", err)
	}
	op.log.Info().Str("shares", toStake.String()).Msg("Step 4: Staking pool shares...")
	if err := venue.Staking.Stake(ctx, toStake); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	op.onFailure("stake", func(ctx context.Context) error {
		return venue.Staking.Unstake(ctx, toStake)
	})

	op.staged.Cycle++
	op.staged.InvestedAt = j.now().UTC()
	op.markDirty()

	op.log.Info().
		Str("contributedA", usedA.String()).
		Str("contributedB", usedB.String()).
		Bool("hedged", op.staged.Hedge.IsOpen()).
		Uint64("cycle", op.staged.Cycle).
		Msg("Position invested")
	return nil
}
