package joint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/adapters/paper"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA     = common.HexToAddress("0x01")
	tokenB     = common.HexToAddress("0x02")
	rewardTok  = common.HexToAddress("0x03")
	stray      = common.HexToAddress("0x04")
	pairAddr   = common.HexToAddress("0x10")
	rewardPair = common.HexToAddress("0x11")
	self       = common.HexToAddress("0x20")
	providerA  = common.HexToAddress("0xa1")
	providerB  = common.HexToAddress("0xb1")
	governance = common.HexToAddress("0xa2")
	strategist = common.HexToAddress("0xa3")
	stranger   = common.HexToAddress("0xff")

	t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

const poolID = 3

func tokens(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func testInstance() types.Instance {
	return types.Instance{
		ID:         "joint-test",
		Variant:    "spookyswap",
		LegA:       types.Leg{Token: tokenA, Symbol: "WFTM", Decimals: 18, Provider: providerA},
		LegB:       types.Leg{Token: tokenB, Symbol: "USDC", Decimals: 18, Provider: providerB},
		Pair:       pairAddr,
		Router:     common.HexToAddress("0x12"),
		MasterChef: common.HexToAddress("0x13"),
		PoolID:     poolID,
		Reward:     rewardTok,
		BaseAsset:  tokenA,
		Hedger:     common.HexToAddress("0x14"),
		Self:       self,
		FeeBps:     30,
	}
}

func testParams() types.Parameters {
	return types.Parameters{
		HedgeBudgetBps:    50,
		HedgeMoneynessBps: 1000,
		HedgePeriod:       24 * time.Hour,
		MinTimeToMaturity: time.Hour,
	}
}

type fixture struct {
	ctx   context.Context
	venue *paper.Venue
	store *state.BadgerStore
	inst  types.Instance
	joint *Joint
	clock time.Time
}

type fixtureOption func(*adapters.Venue)

// withoutSnapshots forces the compensation path.
func withoutSnapshots(v *adapters.Venue) { v.Tx = nil }

func newFixture(t *testing.T, params types.Parameters, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), inst: testInstance(), clock: t0}

	f.venue = paper.NewVenue(30)
	f.venue.RegisterToken(tokenA, "WFTM", 18)
	f.venue.RegisterToken(tokenB, "USDC", 18)
	f.venue.RegisterToken(rewardTok, "BOO", 18)
	f.venue.RegisterToken(stray, "JUNK", 18)
	f.venue.CreatePool(pairAddr, tokenA, tokenB, tokens(100000), tokens(100000))
	f.venue.CreatePool(rewardPair, rewardTok, tokenA, tokens(100000), tokens(100000))
	f.venue.AddStakingPool(poolID, pairAddr)
	f.venue.RegisterProvider(providerA, governance, strategist, tokenA)
	f.venue.RegisterProvider(providerB, governance, strategist, tokenB)

	store, err := state.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store
	_, err = store.CreateInstance(f.ctx, f.inst, types.NewLedger(f.inst.ID, params))
	require.NoError(t, err)

	bundle := f.venue.Bind(f.inst)
	for _, opt := range opts {
		opt(&bundle)
	}
	j, err := New(Config{
		Instance: f.inst,
		Venue:    bundle,
		Store:    store,
		Clock:    func() time.Time { return f.clock },
	})
	require.NoError(t, err)
	f.joint = j
	return f
}

func (f *fixture) fund(a, b sdkmath.Int) {
	f.venue.Mint(tokenA, self, a)
	f.venue.Mint(tokenB, self, b)
}

func (f *fixture) ledger(t *testing.T) types.Ledger {
	t.Helper()
	l, err := f.joint.Ledger(f.ctx)
	require.NoError(t, err)
	return l
}

func (f *fixture) staked(t *testing.T) sdkmath.Int {
	t.Helper()
	s, err := f.venue.Account(f.inst).StakedBalance(f.ctx)
	require.NoError(t, err)
	return s
}

func (f *fixture) invest(t *testing.T) types.OperationReport {
	t.Helper()
	f.fund(tokens(1000), tokens(1000))
	report, err := f.joint.Invest(f.ctx, providerA)
	require.NoError(t, err)
	return report
}

func TestInvest(t *testing.T) {
	f := newFixture(t, testParams())
	report := f.invest(t)

	assert.True(t, report.Success)
	assert.Equal(t, tokens(995).String(), report.ContributedA.String())
	assert.Equal(t, tokens(995).String(), report.ContributedB.String())

	ledger := f.ledger(t)
	assert.Equal(t, types.StateInvested, ledger.State())
	assert.Equal(t, tokens(995).String(), ledger.ContributedA.String())
	assert.Equal(t, tokens(995).String(), ledger.ContributedB.String())
	assert.True(t, ledger.Hedge.IsOpen())
	assert.Equal(t, "1", ledger.Hedge.CallID.String())
	assert.Equal(t, "2", ledger.Hedge.PutID.String())
	assert.Equal(t, uint64(1), ledger.Cycle)
	assert.Equal(t, t0, ledger.InvestedAt)

	assert.Equal(t, report.Shares.String(), f.staked(t).String())
	assert.Equal(t, tokens(5).String(), f.venue.Balance(tokenA, self).String())
	assert.Equal(t, tokens(5).String(), f.venue.Balance(tokenB, self).String())
	assert.Equal(t, 1, f.venue.OpenHedges())
}

func TestInvest_NoHedgeWithZeroBudget(t *testing.T) {
	params := testParams()
	params.HedgeBudgetBps = 0
	f := newFixture(t, params)
	f.invest(t)

	ledger := f.ledger(t)
	assert.False(t, ledger.Hedge.IsOpen())
	assert.NoError(t, ledger.Hedge.Validate())
	assert.Equal(t, tokens(1000).String(), ledger.ContributedA.String())
	assert.Equal(t, 0, f.venue.OpenHedges())
}

func TestInvest_Preconditions(t *testing.T) {
	f := newFixture(t, testParams())

	_, err := f.joint.Invest(f.ctx, providerA)
	assert.ErrorIs(t, err, ErrNothingToInvest)

	f.venue.Mint(tokenA, self, tokens(10))
	_, err = f.joint.Invest(f.ctx, providerB)
	assert.ErrorIs(t, err, ErrNothingToInvest)

	f.invest(t)
	f.fund(tokens(10), tokens(10))
	_, err = f.joint.Invest(f.ctx, providerA)
	assert.ErrorIs(t, err, ErrAlreadyInvested)
}

func TestInvest_Authorization(t *testing.T) {
	f := newFixture(t, testParams())
	f.fund(tokens(1000), tokens(1000))

	for _, caller := range []common.Address{stranger, governance, strategist} {
		_, err := f.joint.Invest(f.ctx, caller)
		assert.ErrorIs(t, err, access.ErrUnauthorized)
	}
	assert.True(t, f.ledger(t).IsIdle())
}

func TestInvest_FailureRollsBack(t *testing.T) {
	for name, opts := range map[string][]fixtureOption{
		"snapshot":     nil,
		"compensation": {withoutSnapshots},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, testParams(), opts...)
			f.fund(tokens(1000), tokens(1000))
			before := f.ledger(t)

			f.venue.FailNext(paper.FailStake, errors.New("masterchef paused"))
			report, err := f.joint.Invest(f.ctx, providerA)
			require.Error(t, err)
			assert.False(t, report.Success)
			assert.NotErrorIs(t, err, ErrCompensationFailed)

			after := f.ledger(t)
			assert.Equal(t, before.Version, after.Version)
			assert.True(t, after.IsIdle())
			assert.False(t, after.Hedge.IsOpen())

			assert.Equal(t, tokens(1000).String(), f.venue.Balance(tokenA, self).String())
			assert.Equal(t, tokens(1000).String(), f.venue.Balance(tokenB, self).String())
			assert.Equal(t, 0, f.venue.OpenHedges())
			assert.True(t, f.staked(t).IsZero())
			rA, rB, err := f.venue.PoolReserves(pairAddr, tokenA, tokenB)
			require.NoError(t, err)
			assert.Equal(t, tokens(100000).String(), rA.String())
			assert.Equal(t, tokens(100000).String(), rB.String())

			// The position can still be opened afterwards.
			_, err = f.joint.Invest(f.ctx, providerA)
			require.NoError(t, err)
		})
	}
}

func TestHarvest_RebalancesAndReturns(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)
	require.NoError(t, f.venue.SetHedgeProfit(sdkmath.NewInt(1), sdkmath.NewInt(2), tokens(100), sdkmath.ZeroInt()))

	report, err := f.joint.Harvest(f.ctx, providerB, true)
	require.NoError(t, err)
	assert.False(t, report.NoOp)

	require.Len(t, report.Ratios, 2)
	before, after := report.Ratios[0], report.Ratios[1]
	assert.Equal(t, phaseBeforeBalance, before.Phase)
	assert.Equal(t, "11055", before.RatioA.String())
	assert.Equal(t, "10050", before.RatioB.String())
	assert.Equal(t, phaseAfterBalance, after.Phase)
	assert.LessOrEqual(t, after.RatioA.Sub(after.RatioB).Abs().Int64(), int64(1))

	require.Len(t, report.Swaps, 1)
	assert.Equal(t, types.SideA, report.Swaps[0].SellSide)
	assert.Equal(t, "50087590805251489681", report.Swaps[0].AmountIn.String())

	assert.Equal(t, "1049912409194748510319", f.venue.Balance(tokenA, providerA).String())
	assert.Equal(t, "1049912403112364442467", f.venue.Balance(tokenB, providerB).String())
	assert.True(t, f.venue.Balance(tokenA, self).IsZero())
	assert.True(t, f.venue.Balance(tokenB, self).IsZero())

	ledger := f.ledger(t)
	assert.True(t, ledger.IsIdle())
	assert.False(t, ledger.Hedge.IsOpen())
	assert.Equal(t, 0, f.venue.OpenHedges())
	assert.True(t, f.staked(t).IsZero())
}

func TestHarvest_ConvertsReward(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)
	f.venue.AccrueReward(poolID, self, tokens(50))

	report, err := f.joint.Harvest(f.ctx, providerA, false)
	require.NoError(t, err)

	require.Len(t, report.Swaps, 2)
	assert.Equal(t, "reward", report.Swaps[0].Purpose)
	assert.Equal(t, "49825162156664902546", report.Swaps[0].AmountOut.String())
	assert.Equal(t, "24953104231690980156", report.Swaps[1].AmountIn.String())

	require.Len(t, report.Ratios, 2)
	assert.Equal(t, "10300", report.Ratios[1].RatioA.String())
	assert.Equal(t, "10300", report.Ratios[1].RatioB.String())

	// Funds stay with the joint when not returned.
	assert.Equal(t, "1024872057924973922390", f.venue.Balance(tokenA, self).String())
	assert.True(t, f.venue.Balance(rewardTok, self).IsZero())
}

func TestHarvest_TwiceIsNoOp(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)

	_, err := f.joint.Harvest(f.ctx, providerA, false)
	require.NoError(t, err)
	version := f.ledger(t).Version
	balA := f.venue.Balance(tokenA, self)

	report, err := f.joint.Harvest(f.ctx, providerA, false)
	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Equal(t, version, f.ledger(t).Version)
	assert.Equal(t, balA.String(), f.venue.Balance(tokenA, self).String())
}

func TestHarvest_FailureLeavesPositionIntact(t *testing.T) {
	f := newFixture(t, testParams())
	invested := f.invest(t)
	before := f.ledger(t)

	f.venue.FailNext(paper.FailTransfer, errors.New("token paused"))
	_, err := f.joint.Harvest(f.ctx, providerA, true)
	require.Error(t, err)

	after := f.ledger(t)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.ContributedA.String(), after.ContributedA.String())
	assert.True(t, after.Hedge.IsOpen())
	assert.Equal(t, invested.Shares.String(), f.staked(t).String())
	assert.Equal(t, 1, f.venue.OpenHedges())
}

func TestHarvest_FailureWithoutSnapshotsKeepsClosedHedge(t *testing.T) {
	f := newFixture(t, testParams(), withoutSnapshots)
	f.invest(t)
	before := f.ledger(t)
	require.True(t, before.Hedge.IsOpen())

	f.venue.FailNext(paper.FailTransfer, errors.New("token paused"))
	_, err := f.joint.Harvest(f.ctx, providerA, true)
	require.Error(t, err)

	// The hedge is gone on the venue, so the ledger must not point at it.
	after := f.ledger(t)
	assert.Equal(t, 0, f.venue.OpenHedges())
	assert.False(t, after.Hedge.IsOpen())
	assert.NoError(t, after.Hedge.Validate())
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, types.StateInvested, after.State())
	assert.Equal(t, before.ContributedA.String(), after.ContributedA.String())
	assert.Equal(t, before.ContributedB.String(), after.ContributedB.String())

	report, err := f.joint.CloseHedgeManually(f.ctx, governance)
	require.NoError(t, err)
	assert.True(t, report.NoOp)

	report, err = f.joint.Harvest(f.ctx, providerA, true)
	require.NoError(t, err)
	assert.False(t, report.NoOp)
	assert.True(t, f.ledger(t).IsIdle())
	assert.True(t, f.venue.Balance(tokenA, providerA).IsPositive())
	assert.True(t, f.venue.Balance(tokenB, providerB).IsPositive())
}

func TestLiquidate_FailureWithoutSnapshotsKeepsClosedHedge(t *testing.T) {
	f := newFixture(t, testParams(), withoutSnapshots)
	f.invest(t)

	f.venue.FailNext(paper.FailRemoveLiquidity, errors.New("router paused"))
	_, err := f.joint.Liquidate(f.ctx, strategist)
	require.Error(t, err)

	ledger := f.ledger(t)
	assert.False(t, ledger.Hedge.IsOpen())
	assert.Equal(t, types.StateInvested, ledger.State())
	assert.Equal(t, 0, f.venue.OpenHedges())

	_, err = f.joint.Liquidate(f.ctx, strategist)
	require.NoError(t, err)
	assert.True(t, f.staked(t).IsZero())
}

func TestLiquidateThenHarvest(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)

	_, err := f.joint.Liquidate(f.ctx, strategist)
	require.NoError(t, err)
	ledger := f.ledger(t)
	assert.Equal(t, types.StateInvested, ledger.State())
	assert.False(t, ledger.Hedge.IsOpen())
	assert.True(t, f.staked(t).IsZero())
	assert.Equal(t, tokens(1000).String(), f.venue.Balance(tokenA, self).String())

	_, err = f.joint.Liquidate(f.ctx, providerA)
	assert.ErrorIs(t, err, access.ErrUnauthorized)

	report, err := f.joint.Harvest(f.ctx, providerA, true)
	require.NoError(t, err)
	assert.False(t, report.NoOp)
	assert.True(t, f.ledger(t).IsIdle())
}

func TestReturnLooseToProviders(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)

	_, err := f.joint.ReturnLooseToProviders(f.ctx, governance)
	require.NoError(t, err)
	assert.Equal(t, tokens(5).String(), f.venue.Balance(tokenA, providerA).String())
	assert.Equal(t, tokens(5).String(), f.venue.Balance(tokenB, providerB).String())
}

func TestSetParameters(t *testing.T) {
	f := newFixture(t, testParams())

	_, err := f.joint.SetHedgeBudget(f.ctx, strategist, 0)
	require.NoError(t, err)
	_, err = f.joint.SetHedgeMoneyness(f.ctx, governance, 500)
	require.NoError(t, err)
	_, err = f.joint.SetHedgePeriod(f.ctx, governance, 48*time.Hour)
	require.NoError(t, err)

	params := f.ledger(t).Params
	assert.Equal(t, uint32(0), params.HedgeBudgetBps)
	assert.Equal(t, uint32(500), params.HedgeMoneynessBps)
	assert.Equal(t, 48*time.Hour, params.HedgePeriod)

	_, err = f.joint.SetHedgeBudget(f.ctx, governance, 10001)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	_, err = f.joint.SetHedgePeriod(f.ctx, governance, 0)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	_, err = f.joint.SetHedgeBudget(f.ctx, providerA, 10)
	assert.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestSetParameters_ConcurrentSettersKeepEachOther(t *testing.T) {
	f := newFixture(t, testParams())

	for i := 0; i < 10; i++ {
		budget := uint32(100 + i)
		moneyness := uint32(2000 + i)
		period := time.Duration(i+2) * time.Hour

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := f.joint.SetHedgeBudget(f.ctx, strategist, budget)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.joint.SetHedgeMoneyness(f.ctx, governance, moneyness)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.joint.SetHedgePeriod(f.ctx, governance, period)
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		params := f.ledger(t).Params
		assert.Equal(t, budget, params.HedgeBudgetBps)
		assert.Equal(t, moneyness, params.HedgeMoneynessBps)
		assert.Equal(t, period, params.HedgePeriod)
		assert.Equal(t, time.Hour, params.MinTimeToMaturity)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t, testParams())
	f.venue.Mint(stray, self, tokens(7))

	_, err := f.joint.Sweep(f.ctx, strategist, stray)
	assert.ErrorIs(t, err, access.ErrUnauthorized)

	_, err = f.joint.Sweep(f.ctx, governance, stray)
	require.NoError(t, err)
	assert.Equal(t, tokens(7).String(), f.venue.Balance(stray, governance).String())

	for _, token := range []common.Address{tokenA, tokenB, pairAddr} {
		_, err = f.joint.Sweep(f.ctx, governance, token)
		assert.ErrorIs(t, err, ErrSweepForbidden)
	}
}

func TestSwapTokenForToken(t *testing.T) {
	f := newFixture(t, testParams())
	f.venue.Mint(rewardTok, self, tokens(10))

	_, err := f.joint.SwapTokenForToken(f.ctx, governance, rewardTok, stray, tokens(1))
	assert.ErrorIs(t, err, ErrUnsupportedSwapTarget)

	report, err := f.joint.SwapTokenForToken(f.ctx, governance, rewardTok, tokenB, tokens(10))
	require.NoError(t, err)
	require.Len(t, report.Swaps, 1)
	// Routed through the base asset.
	assert.True(t, f.venue.Balance(tokenB, self).IsPositive())
	assert.True(t, f.venue.Balance(rewardTok, self).IsZero())
}

func TestManualHatches(t *testing.T) {
	f := newFixture(t, testParams())
	invested := f.invest(t)
	f.venue.AccrueReward(poolID, self, tokens(3))

	_, err := f.joint.ClaimRewardsManually(f.ctx, governance)
	require.NoError(t, err)
	assert.Equal(t, tokens(3).String(), f.venue.Balance(rewardTok, self).String())

	half := invested.Shares.QuoRaw(2)
	_, err = f.joint.WithdrawStakedManually(f.ctx, governance, half)
	require.NoError(t, err)
	_, err = f.joint.RemoveLiquidityManually(f.ctx, governance, half)
	require.NoError(t, err)
	assert.Equal(t, invested.Shares.Sub(half).String(), f.staked(t).String())

	_, err = f.joint.CloseHedgeManually(f.ctx, governance)
	require.NoError(t, err)
	ledger := f.ledger(t)
	assert.False(t, ledger.Hedge.IsOpen())
	assert.NoError(t, ledger.Hedge.Validate())
	assert.Equal(t, 0, f.venue.OpenHedges())

	report, err := f.joint.CloseHedgeManually(f.ctx, governance)
	require.NoError(t, err)
	assert.True(t, report.NoOp)

	_, err = f.joint.WithdrawStakedManually(f.ctx, strategist, half)
	assert.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestSetProvider(t *testing.T) {
	f := newFixture(t, testParams())
	replacement := common.HexToAddress("0xa9")
	f.venue.RegisterProvider(replacement, governance, strategist, tokenA)

	_, err := f.joint.SetProvider(f.ctx, governance, types.SideB, replacement)
	assert.ErrorIs(t, err, ErrProviderMismatch)

	_, err = f.joint.SetProvider(f.ctx, governance, types.SideA, replacement)
	require.NoError(t, err)
	assert.Equal(t, replacement, f.joint.Instance().LegA.Provider)

	stored, err := f.store.LoadInstance(f.ctx, f.inst.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement, stored.LegA.Provider)

	f.fund(tokens(10), tokens(10))
	_, err = f.joint.Invest(f.ctx, providerA)
	assert.ErrorIs(t, err, access.ErrUnauthorized)
	_, err = f.joint.Invest(f.ctx, replacement)
	require.NoError(t, err)

	_, err = f.joint.SetProvider(f.ctx, governance, types.SideA, providerA)
	assert.ErrorIs(t, err, ErrNotIdle)
}

func TestFindSwapLeg(t *testing.T) {
	f := newFixture(t, testParams())

	tests := []struct {
		name  string
		inst  func(types.Instance) types.Instance
		token common.Address
		want  common.Address
		err   error
	}{
		{"leg A to B", nil, tokenA, tokenB, nil},
		{"leg B to A", nil, tokenB, tokenA, nil},
		{"reward to base leg", nil, rewardTok, tokenA, nil},
		{"reward to leg A when no leg is base", func(i types.Instance) types.Instance {
			i.BaseAsset = stray
			return i
		}, rewardTok, tokenA, nil},
		{"foreign token", nil, stray, common.Address{}, ErrUnsupportedSwapTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := f.inst
			if tt.inst != nil {
				inst = tt.inst(inst)
			}
			got, err := findSwapLeg(inst, tt.token)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := f.joint.FindSwapLeg(tokenB)
	require.NoError(t, err)
	assert.Equal(t, tokenA, got)
}

func TestName(t *testing.T) {
	f := newFixture(t, testParams())
	assert.Equal(t, "JointOfSpookySwap(WFTM-USDC)", f.joint.Name())
}

func TestEpochBoundaries(t *testing.T) {
	f := newFixture(t, testParams())

	start, err := f.joint.ShouldStartEpoch(f.ctx)
	require.NoError(t, err)
	assert.False(t, start)

	f.fund(tokens(1000), tokens(1000))
	start, err = f.joint.ShouldStartEpoch(f.ctx)
	require.NoError(t, err)
	assert.True(t, start)

	end, err := f.joint.ShouldEndEpoch(f.ctx, t0)
	require.NoError(t, err)
	assert.False(t, end)

	_, err = f.joint.Invest(f.ctx, providerA)
	require.NoError(t, err)

	start, err = f.joint.ShouldStartEpoch(f.ctx)
	require.NoError(t, err)
	assert.False(t, start)

	end, err = f.joint.ShouldEndEpoch(f.ctx, t0.Add(22*time.Hour))
	require.NoError(t, err)
	assert.False(t, end)
	end, err = f.joint.ShouldEndEpoch(f.ctx, t0.Add(23*time.Hour))
	require.NoError(t, err)
	assert.True(t, end)
}

func TestOperationReportsPersisted(t *testing.T) {
	f := newFixture(t, testParams())
	f.invest(t)
	f.clock = t0.Add(time.Minute)
	_, err := f.joint.Harvest(f.ctx, providerA, false)
	require.NoError(t, err)

	reports, err := f.store.RecentReports(f.ctx, f.inst.ID, 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, types.OpHarvest, reports[0].Operation)
	assert.Equal(t, types.OpInvest, reports[1].Operation)
	assert.True(t, reports[0].Success)
	assert.NotEmpty(t, reports[0].OperationID)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, testParams())

	_, err := New(Config{Instance: f.inst, Venue: adapters.Venue{}, Store: f.store})
	assert.Error(t, err)

	bad := f.inst
	bad.Variant = "pancakeswap"
	_, err = New(Config{Instance: bad, Venue: f.venue.Bind(bad), Store: f.store})
	assert.ErrorIs(t, err, adapters.ErrUnknownVariant)
}
