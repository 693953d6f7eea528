package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters/paper"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA    = common.HexToAddress("0x01")
	tokenB    = common.HexToAddress("0x02")
	rewardTok = common.HexToAddress("0x03")
	pairAddr  = common.HexToAddress("0x10")
	providerA = common.HexToAddress("0xa1")
	providerB = common.HexToAddress("0xb1")

	t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func tokens(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func instance(id string, self common.Address) types.Instance {
	return types.Instance{
		ID:         id,
		Variant:    "spookyswap",
		LegA:       types.Leg{Token: tokenA, Symbol: "WFTM", Decimals: 18, Provider: providerA},
		LegB:       types.Leg{Token: tokenB, Symbol: "USDC", Decimals: 18, Provider: providerB},
		Pair:       pairAddr,
		Router:     common.HexToAddress("0x12"),
		MasterChef: common.HexToAddress("0x13"),
		PoolID:     3,
		Reward:     rewardTok,
		BaseAsset:  tokenA,
		Hedger:     common.HexToAddress("0x14"),
		Self:       self,
		FeeBps:     30,
	}
}

type fixture struct {
	ctx    context.Context
	venue  *paper.Venue
	store  *state.BadgerStore
	clock  time.Time
	joints []*joint.Joint
}

func newFixture(t *testing.T, selves ...common.Address) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), clock: t0}

	f.venue = paper.NewVenue(30)
	f.venue.RegisterToken(tokenA, "WFTM", 18)
	f.venue.RegisterToken(tokenB, "USDC", 18)
	f.venue.RegisterToken(rewardTok, "BOO", 18)
	f.venue.CreatePool(pairAddr, tokenA, tokenB, tokens(100000), tokens(100000))
	f.venue.CreatePool(common.HexToAddress("0x11"), rewardTok, tokenA, tokens(100000), tokens(100000))
	f.venue.AddStakingPool(3, pairAddr)
	f.venue.RegisterProvider(providerA, common.HexToAddress("0xa2"), common.HexToAddress("0xa3"), tokenA)
	f.venue.RegisterProvider(providerB, common.HexToAddress("0xa2"), common.HexToAddress("0xa3"), tokenB)

	store, err := state.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store

	params := types.Parameters{HedgeBudgetBps: 50, HedgeMoneynessBps: 1000, HedgePeriod: 24 * time.Hour, MinTimeToMaturity: time.Hour}
	for i, self := range selves {
		inst := instance("joint-"+string(rune('a'+i)), self)
		_, err := store.CreateInstance(f.ctx, inst, types.NewLedger(inst.ID, params))
		require.NoError(t, err)
		j, err := joint.New(joint.Config{
			Instance: inst,
			Venue:    f.venue.Bind(inst),
			Store:    store,
			LockKey:  "paper-venue",
			Clock:    func() time.Time { return f.clock },
		})
		require.NoError(t, err)
		f.joints = append(f.joints, j)
		f.venue.Mint(tokenA, self, tokens(1000))
		f.venue.Mint(tokenB, self, tokens(1000))
	}
	return f
}

func (f *fixture) keeper(t *testing.T, returnFunds bool) *Keeper {
	t.Helper()
	k, err := NewKeeper(Config{Joints: f.joints, ReturnFunds: returnFunds, Clock: func() time.Time { return f.clock }})
	require.NoError(t, err)
	return k
}

func (f *fixture) ledger(t *testing.T, i int) types.Ledger {
	t.Helper()
	l, err := f.joints[i].Ledger(f.ctx)
	require.NoError(t, err)
	return l
}

func TestRunCycle_RollsEpochs(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x20"))
	k := f.keeper(t, false)

	require.NoError(t, k.RunCycle(f.ctx))
	first := f.ledger(t, 0)
	assert.Equal(t, types.StateInvested, first.State())
	assert.Equal(t, uint64(1), first.Cycle)
	assert.Equal(t, t0, first.InvestedAt)

	f.clock = t0.Add(22 * time.Hour)
	require.NoError(t, k.RunCycle(f.ctx))
	assert.Equal(t, uint64(1), f.ledger(t, 0).Cycle)

	f.clock = t0.Add(23 * time.Hour)
	require.NoError(t, k.RunCycle(f.ctx))
	second := f.ledger(t, 0)
	assert.Equal(t, types.StateInvested, second.State())
	assert.Equal(t, uint64(2), second.Cycle)
	assert.Equal(t, f.clock, second.InvestedAt)
	assert.True(t, f.venue.Balance(tokenA, providerA).IsZero())

	assert.Equal(t, int64(3), k.Cycles())
}

func TestRunCycle_ReturnsFunds(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x20"))
	k := f.keeper(t, true)

	require.NoError(t, k.RunCycle(f.ctx))
	f.clock = t0.Add(24 * time.Hour)
	require.NoError(t, k.RunCycle(f.ctx))

	assert.True(t, f.ledger(t, 0).IsIdle())
	assert.True(t, f.venue.Balance(tokenA, providerA).IsPositive())
	assert.True(t, f.venue.Balance(tokenB, providerB).IsPositive())

	start, err := f.joints[0].ShouldStartEpoch(f.ctx)
	require.NoError(t, err)
	assert.False(t, start)
}

func TestRunCycle_IsolatesFailures(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x20"), common.HexToAddress("0x21"))
	k := f.keeper(t, false)

	boom := errors.New("masterchef paused")
	f.venue.FailNext(paper.FailStake, boom)
	err := k.RunCycle(f.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "joint-a")

	assert.True(t, f.ledger(t, 0).IsIdle())
	assert.Equal(t, types.StateInvested, f.ledger(t, 1).State())

	require.NoError(t, k.RunCycle(f.ctx))
	assert.Equal(t, types.StateInvested, f.ledger(t, 0).State())
}

func TestRefreshProjections(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x20"))
	k := f.keeper(t, false)

	require.NoError(t, k.RefreshProjections(f.ctx))
	idle, ok := k.LatestProjection("joint-a")
	require.True(t, ok)
	assert.Equal(t, tokens(1000).String(), idle.AmountA.String())

	require.NoError(t, k.RunCycle(f.ctx))
	require.NoError(t, k.RefreshProjections(f.ctx))
	invested, ok := k.LatestProjection("joint-a")
	require.True(t, ok)
	assert.True(t, invested.AmountA.IsPositive())
	assert.True(t, invested.PoolA.IsPositive())

	_, ok = k.LatestProjection("missing")
	assert.False(t, ok)
}

func TestNewKeeper_Validation(t *testing.T) {
	_, err := NewKeeper(Config{})
	assert.Error(t, err)

	f := newFixture(t, common.HexToAddress("0x20"))
	_, err = NewKeeper(Config{Joints: []*joint.Joint{f.joints[0], f.joints[0]}})
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x20"), common.HexToAddress("0x21"))
	k, err := NewKeeper(Config{Joints: f.joints[:1], Clock: func() time.Time { return f.clock }})
	require.NoError(t, err)

	assert.Error(t, k.Add(nil))
	assert.Error(t, k.Add(f.joints[0]))
	require.NoError(t, k.Add(f.joints[1]))

	require.NoError(t, k.RunCycle(f.ctx))
	assert.Equal(t, types.StateInvested, f.ledger(t, 1).State())
	require.NoError(t, k.RefreshProjections(f.ctx))
	_, ok := k.LatestProjection("joint-b")
	assert.True(t, ok)
}

type countingJob struct {
	runs     int
	deadline bool
	err      error
}

func (c *countingJob) Name() string { return "counting" }

func (c *countingJob) Run(ctx context.Context) error {
	c.runs++
	_, c.deadline = ctx.Deadline()
	return c.err
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(context.Background(), time.Minute)

	job := &countingJob{err: errors.New("failed")}
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)
	assert.True(t, job.deadline)

	assert.Error(t, s.AddJob("not a schedule", job))
	require.NoError(t, s.AddJob("@every 1h", job))
	s.Start()
	s.Stop()

	f := newFixture(t, common.HexToAddress("0x20"))
	k := f.keeper(t, false)
	require.NoError(t, s.RunNow(EpochJob{Keeper: k}))
	require.NoError(t, s.RunNow(ProjectionJob{Keeper: k}))
	assert.Equal(t, types.StateInvested, f.ledger(t, 0).State())
}
