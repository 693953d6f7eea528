package joint

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// SetParameters replaces the strategy parameters. Governance or a strategist may call it.
func (j *Joint) SetParameters(ctx context.Context, caller common.Address, params types.Parameters) (types.OperationReport, error) {
	return j.UpdateParameters(ctx, caller, func(p *types.Parameters) { *p = params })
}

// UpdateParameters applies mutate to the committed parameters inside the boundary,
// so concurrent setters of different fields never overwrite each other.
func (j *Joint) UpdateParameters(ctx context.Context, caller common.Address, mutate func(*types.Parameters)) (types.OperationReport, error) {
	return j.run(ctx, types.OpSetParameters, caller, access.RoleAuthorized, func(op *operation) error {
		params := op.staged.Params
		mutate(&params)
		if err := params.Validate(); err != nil {
			return err
		}
		op.log.Info().
			Uint32("hedgeBudgetBps", params.HedgeBudgetBps).
			Uint32("hedgeMoneynessBps", params.HedgeMoneynessBps).
			Dur("hedgePeriod", params.HedgePeriod).
			Dur("minTimeToMaturity", params.MinTimeToMaturity).
			Msg("Updating strategy parameters")
		op.staged.Params = params
		op.markDirty()
		return nil
	})
}

func (j *Joint) SetHedgeBudget(ctx context.Context, caller common.Address, bps uint32) (types.OperationReport, error) {
	return j.UpdateParameters(ctx, caller, func(p *types.Parameters) { p.HedgeBudgetBps = bps })
}

func (j *Joint) SetHedgeMoneyness(ctx context.Context, caller common.Address, bps uint32) (types.OperationReport, error) {
	return j.UpdateParameters(ctx, caller, func(p *types.Parameters) { p.HedgeMoneynessBps = bps })
}

func (j *Joint) SetHedgePeriod(ctx context.Context, caller common.Address, period time.Duration) (types.OperationReport, error) {
	return j.UpdateParameters(ctx, caller, func(p *types.Parameters) { p.HedgePeriod = period })
}

// Sweep sends the whole balance of a stray token to the governance of provider A.
// Legs and pool shares cannot be swept.
func (j *Joint) Sweep(ctx context.Context, caller common.Address, token common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpSweep, caller, access.RoleGovernance, func(op *operation) error {
		inst := op.inst
		if token == inst.LegA.Token || token == inst.LegB.Token || token == inst.Pair {
			return fmt.Errorf("%w: %s", ErrSweepForbidden, token.Hex())
		}
		balance, err := j.venue.Tokens.BalanceOf(op.ctx, token)
		if err != nil {
			return fmt.Errorf("failed to read balance of %s: %w", token.Hex(), err)
		}
		if !balance.IsPositive() {
			return fmt.Errorf("sweep %s: %w", token.Hex(), adapters.ErrZeroAmount)
		}
		governance, err := j.access.GovernanceOf(op.ctx, inst.LegA.Provider)
		if err != nil {
			return fmt.Errorf("failed to resolve governance: %w", err)
		}
		if err := j.venue.Tokens.Transfer(op.ctx, token, governance, balance); err != nil {
			return fmt.Errorf("sweep transfer: %w", err)
		}
		op.irreversible("sweep")
		op.log.Warn().
			Str("token", token.Hex()).
			Str("amount", balance.String()).
			Str("to", governance.Hex()).
			Msg("Token swept")
		return nil
	})
}

// SwapTokenForToken sells amount of from for to. The target must be one of the legs.
func (j *Joint) SwapTokenForToken(ctx context.Context, caller common.Address, from, to common.Address, amount sdkmath.Int) (types.OperationReport, error) {
	return j.run(ctx, types.OpSwap, caller, access.RoleGovernance, func(op *operation) error {
		inst := op.inst
		if inst.SideOf(to) == types.SideNone || from == to {
			return fmt.Errorf("%w: %s", ErrUnsupportedSwapTarget, to.Hex())
		}
		if amount.IsNil() || !amount.IsPositive() {
			return adapters.ErrZeroAmount
		}
		received, err := j.venue.AMM.Swap(op.ctx, from, to, amount)
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}
		op.irreversible("manual_swap")
		op.report.Swaps = append(op.report.Swaps, types.SwapRecord{
			Purpose:   "manual",
			TokenIn:   from.Hex(),
			TokenOut:  to.Hex(),
			AmountIn:  amount,
			AmountOut: received,
		})
		return nil
	})
}

// ClaimRewardsManually collects pending staking rewards.
func (j *Joint) ClaimRewardsManually(ctx context.Context, caller common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpManualClaim, caller, access.RoleGovernance, func(op *operation) error {
		if err := j.venue.Staking.Claim(op.ctx); err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		op.irreversible("claim")
		return nil
	})
}

// WithdrawStakedManually unstakes amount pool shares.
func (j *Joint) WithdrawStakedManually(ctx context.Context, caller common.Address, amount sdkmath.Int) (types.OperationReport, error) {
	return j.run(ctx, types.OpManualWithdraw, caller, access.RoleGovernance, func(op *operation) error {
		if amount.IsNil() || !amount.IsPositive() {
			return adapters.ErrZeroAmount
		}
		if err := j.venue.Staking.Unstake(op.ctx, amount); err != nil {
			return fmt.Errorf("unstake: %w", err)
		}
		op.onFailure("unstake", func(ctx context.Context) error {
			return j.venue.Staking.Stake(ctx, amount)
		})
		op.report.Shares = amount
		return nil
	})
}

// RemoveLiquidityManually burns amount unstaked pool shares.
func (j *Joint) RemoveLiquidityManually(ctx context.Context, caller common.Address, amount sdkmath.Int) (types.OperationReport, error) {
	return j.run(ctx, types.OpManualRemove, caller, access.RoleGovernance, func(op *operation) error {
		if amount.IsNil() || !amount.IsPositive() {
			return adapters.ErrZeroAmount
		}
		outA, outB, err := j.venue.AMM.RemoveLiquidity(op.ctx, amount)
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		op.onFailure("remove_liquidity", func(ctx context.Context) error {
			_, _, _, err := j.venue.AMM.AddLiquidity(ctx, outA, outB)
			return err
		})
		op.report.Shares = amount
		op.report.FinalA, op.report.FinalB = outA, outB
		return nil
	})
}

// CloseHedgeManually closes the open hedge and clears both option ids together.
func (j *Joint) CloseHedgeManually(ctx context.Context, caller common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpManualHedge, caller, access.RoleGovernance, func(op *operation) error {
		hedge := op.staged.Hedge
		if !hedge.IsOpen() {
			op.report.NoOp = true
			return nil
		}
		payoutA, payoutB, err := j.venue.Hedge.Close(op.ctx, hedge.CallID, hedge.PutID)
		if err != nil {
			return fmt.Errorf("close hedge: %w", err)
		}
		op.settle("close_hedge", clearHedge)
		op.report.Hedge = hedge
		op.report.FinalA, op.report.FinalB = payoutA, payoutB
		return nil
	})
}

// SetProvider replaces the provider of one leg. The new provider must want that leg's
// token and the position must be idle.
func (j *Joint) SetProvider(ctx context.Context, caller common.Address, side types.Side, provider common.Address) (types.OperationReport, error) {
	return j.run(ctx, types.OpSetProvider, caller, access.RoleGovernance, func(op *operation) error {
		inst := op.inst
		leg, ok := inst.Leg(side)
		if !ok {
			return fmt.Errorf("%w: unknown side %q", types.ErrInvalidInstance, side)
		}
		if provider == (common.Address{}) {
			return fmt.Errorf("%w: provider cannot be zero", types.ErrInvalidInstance)
		}
		if !op.staged.IsIdle() {
			return ErrNotIdle
		}
		want, err := j.venue.Provider.Want(op.ctx, provider)
		if err != nil {
			return fmt.Errorf("failed to read provider want: %w", err)
		}
		if want != leg.Token {
			return fmt.Errorf("%w: %s wants %s, leg %s is %s", ErrProviderMismatch, provider.Hex(), want.Hex(), side, leg.Token.Hex())
		}

		updated := inst
		if side == types.SideA {
			updated.LegA.Provider = provider
		} else {
			updated.LegB.Provider = provider
		}
		if err := j.store.UpdateInstance(op.ctx, updated); err != nil {
			return err
		}

		j.mu.Lock()
		j.inst = updated
		j.mu.Unlock()
		j.access.SetProviders(updated.LegA.Provider, updated.LegB.Provider)

		op.log.Warn().
			Str("side", string(side)).
			Str("old", leg.Provider.Hex()).
			Str("new", provider.Hex()).
			Msg("Provider replaced")
		return nil
	})
}
