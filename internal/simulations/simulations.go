package simulations

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/valuation"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotALeg = errors.New("token is not a leg of this joint")
)

var projectorLogger = logger.GetForComponent("projector")

// Source is the read side of a joint controller.
type Source interface {
	Instance() types.Instance
	Venue() adapters.Venue
	Ledger(ctx context.Context) (types.Ledger, error)
	FindSwapLeg(token common.Address) (common.Address, error)
}

// Projector estimates what a full harvest with returned funds would pay out right now.
// It only calls read methods of the venue.
type Projector struct {
	source Source
	now    func() time.Time
}

// NewProjector creates a projector reading from source.
func NewProjector(source Source) *Projector {
	return &Projector{source: source, now: time.Now}
}

// poolState is the pair after the joint's shares would be burned.
type poolState struct {
	reserveA sdkmath.Int
	reserveB sdkmath.Int
}

// ProjectedAssets simulates unstake, hedge close, liquidity removal, reward conversion and the
// rebalancing swap against current chain state. Each simulated swap moves a local copy of the
// pools it trades through. An idle position projects its loose balances.
func (p *Projector) ProjectedAssets(ctx context.Context) (types.Projection, error) {
	inst := p.source.Instance()
	venue := p.source.Venue()
	log := projectorLogger.With().Str("instance", inst.ID).Logger()

	ledger, err := p.source.Ledger(ctx)
	if err != nil {
		return types.Projection{}, fmt.Errorf("failed to load ledger: %w", err)
	}

	proj := types.Projection{
		InstanceID:   inst.ID,
		At:           p.now().UTC(),
		PoolA:        sdkmath.ZeroInt(),
		PoolB:        sdkmath.ZeroInt(),
		HedgeProfitA: sdkmath.ZeroInt(),
		HedgeProfitB: sdkmath.ZeroInt(),
		RewardValue:  sdkmath.ZeroInt(),
		SellAmount:   sdkmath.ZeroInt(),
		BuyAmount:    sdkmath.ZeroInt(),
	}

	proj.LooseA, err = venue.Tokens.BalanceOf(ctx, inst.LegA.Token)
	if err != nil {
		return types.Projection{}, fmt.Errorf("failed to read %s balance: %w", inst.LegA.Symbol, err)
	}
	proj.LooseB, err = venue.Tokens.BalanceOf(ctx, inst.LegB.Token)
	if err != nil {
		return types.Projection{}, fmt.Errorf("failed to read %s balance: %w", inst.LegB.Symbol, err)
	}
	if ledger.IsIdle() {
		proj.AmountA, proj.AmountB = proj.LooseA, proj.LooseB
		return proj, nil
	}

	pool, err := p.projectPool(ctx, venue, &proj)
	if err != nil {
		return types.Projection{}, err
	}

	if ledger.Hedge.IsOpen() {
		proj.HedgeProfitA, proj.HedgeProfitB, err = venue.Hedge.UnrealizedProfit(ctx, ledger.Hedge.CallID, ledger.Hedge.PutID)
		if err != nil {
			return types.Projection{}, fmt.Errorf("failed to read hedge profit: %w", err)
		}
	}

	quoter := valuation.NewConstantProduct(inst.FeeBps)
	book := newReserveBook(venue.AMM, quoter)
	book.set(inst.LegA.Token, inst.LegB.Token, pool.reserveA, pool.reserveB)

	if err := p.projectReward(ctx, inst, venue, book, &proj); err != nil {
		return types.Projection{}, err
	}

	currentA := proj.LooseA.Add(proj.PoolA).Add(proj.HedgeProfitA)
	currentB := proj.LooseB.Add(proj.PoolB).Add(proj.HedgeProfitB)
	switch proj.RewardSide {
	case types.SideA:
		currentA = currentA.Add(proj.RewardValue)
	case types.SideB:
		currentB = currentB.Add(proj.RewardValue)
	}

	reserveA, reserveB, err := book.get(ctx, inst.LegA.Token, inst.LegB.Token)
	if err != nil {
		return types.Projection{}, err
	}
	side, amount, err := valuation.SellAmountToBalance(valuation.Inputs{
		CurrentA:   currentA,
		CurrentB:   currentB,
		StartingA:  ledger.ContributedA,
		StartingB:  ledger.ContributedB,
		ReserveA:   reserveA,
		ReserveB:   reserveB,
		PrecisionA: inst.LegA.Precision(),
		PrecisionB: inst.LegB.Precision(),
	}, quoter)
	if err != nil {
		return types.Projection{}, fmt.Errorf("failed to compute rebalancing amount: %w", err)
	}

	if side != types.SideNone && amount.IsPositive() {
		sell, _ := inst.Leg(side)
		buy, _ := inst.Leg(side.Other())
		out, err := book.swap(ctx, sell.Token, buy.Token, amount)
		if err != nil {
			return types.Projection{}, fmt.Errorf("failed to quote rebalancing swap: %w", err)
		}
		proj.SellSide, proj.SellAmount, proj.BuyAmount = side, amount, out
		if side == types.SideA {
			currentA, currentB = currentA.Sub(amount), currentB.Add(out)
		} else {
			currentB, currentA = currentB.Sub(amount), currentA.Add(out)
		}
	}
	proj.AmountA, proj.AmountB = currentA, currentB

	log.Debug().
		Str("amountA", proj.AmountA.String()).
		Str("amountB", proj.AmountB.String()).
		Str("sellSide", string(proj.SellSide)).
		Str("sellAmount", proj.SellAmount.String()).
		Msg("Harvest projection computed")
	return proj, nil
}

// projectPool values every pool share the joint holds, staked or not, and returns the
// reserves that remain once they are burned.
func (p *Projector) projectPool(ctx context.Context, venue adapters.Venue, proj *types.Projection) (poolState, error) {
	staked, err := venue.Staking.StakedBalance(ctx)
	if err != nil {
		return poolState{}, fmt.Errorf("failed to read staked balance: %w", err)
	}
	unstaked, err := venue.AMM.PairBalance(ctx)
	if err != nil {
		return poolState{}, fmt.Errorf("failed to read pool share balance: %w", err)
	}
	reserveA, reserveB, err := venue.AMM.Reserves(ctx)
	if err != nil {
		return poolState{}, fmt.Errorf("failed to read reserves: %w", err)
	}

	shares := staked.Add(unstaked)
	if !shares.IsPositive() {
		return poolState{reserveA: reserveA, reserveB: reserveB}, nil
	}
	supply, err := venue.AMM.PairSupply(ctx)
	if err != nil {
		return poolState{}, fmt.Errorf("failed to read pool share supply: %w", err)
	}
	if proj.PoolA, err = valuation.MulDiv(shares, reserveA, supply); err != nil {
		return poolState{}, err
	}
	if proj.PoolB, err = valuation.MulDiv(shares, reserveB, supply); err != nil {
		return poolState{}, err
	}
	return poolState{
		reserveA: reserveA.Sub(proj.PoolA),
		reserveB: reserveB.Sub(proj.PoolB),
	}, nil
}

// projectReward values pending and held rewards in the leg they would be swapped into.
// The conversion is applied to book, as the rebalancing swap trades after it.
func (p *Projector) projectReward(ctx context.Context, inst types.Instance, venue adapters.Venue, book *reserveBook, proj *types.Projection) error {
	pending, err := venue.Staking.PendingReward(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending reward: %w", err)
	}

	// A reward paid in a leg is already counted in the loose balance once held.
	if inst.RewardIsLeg() {
		proj.RewardSide = inst.SideOf(inst.Reward)
		proj.RewardValue = pending
		return nil
	}

	held, err := venue.Tokens.BalanceOf(ctx, inst.Reward)
	if err != nil {
		return fmt.Errorf("failed to read reward balance: %w", err)
	}
	total := pending.Add(held)
	if !total.IsPositive() {
		return nil
	}
	target, err := p.source.FindSwapLeg(inst.Reward)
	if err != nil {
		return err
	}
	value, err := book.swap(ctx, inst.Reward, target, total)
	if err != nil {
		return fmt.Errorf("failed to quote reward conversion: %w", err)
	}
	proj.RewardSide = inst.SideOf(target)
	proj.RewardValue = value
	return nil
}

// ProjectedAssetsInToken returns the projected amount of one leg token.
func (p *Projector) ProjectedAssetsInToken(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	side := p.source.Instance().SideOf(token)
	if side == types.SideNone {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrNotALeg, token.Hex())
	}
	proj, err := p.ProjectedAssets(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return proj.Amount(side), nil
}
