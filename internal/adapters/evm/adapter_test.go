package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA     = common.HexToAddress("0x01")
	tokenB     = common.HexToAddress("0x02")
	rewardTok  = common.HexToAddress("0x03")
	baseAsset  = common.HexToAddress("0x05")
	pair       = common.HexToAddress("0x10")
	router     = common.HexToAddress("0x12")
	masterChef = common.HexToAddress("0x13")
	hedger     = common.HexToAddress("0x14")
	self       = common.HexToAddress("0x20")
)

type handler func(to common.Address, args []interface{}) ([]interface{}, error)

type sentCall struct {
	to     common.Address
	method string
	args   []interface{}
}

// fakeChain decodes calls by selector against the adapter ABIs and dispatches them by method name.
type fakeChain struct {
	methods    map[string]abi.Method
	handlers   map[string]handler
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[string]*big.Int
	sent       []sentCall
	calls      int
	failCalls  int
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	pending, err := pendingABI("pendingBOO")
	require.NoError(t, err)

	f := &fakeChain{
		methods:    make(map[string]abi.Method),
		handlers:   make(map[string]handler),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[string]*big.Int),
	}
	for _, contract := range []abi.ABI{routerABI, pairABI, factoryABI, erc20ABI, masterChefABI, hedgerABI, providerABI, vaultABI, pending} {
		for _, m := range contract.Methods {
			f.methods[string(m.ID)] = m
		}
	}

	f.handlers["balanceOf"] = func(to common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{f.balance(to, args[0].(common.Address))}, nil
	}
	f.handlers["allowance"] = func(to common.Address, args []interface{}) ([]interface{}, error) {
		v, ok := f.allowances[allowanceKey(to, args[1].(common.Address))]
		if !ok {
			v = big.NewInt(0)
		}
		return []interface{}{v}, nil
	}
	f.handlers["approve"] = func(to common.Address, args []interface{}) ([]interface{}, error) {
		f.allowances[allowanceKey(to, args[0].(common.Address))] = args[1].(*big.Int)
		return []interface{}{true}, nil
	}
	f.handlers["transfer"] = func(to common.Address, args []interface{}) ([]interface{}, error) {
		f.move(to, self, args[0].(common.Address), args[1].(*big.Int))
		return []interface{}{true}, nil
	}
	return f
}

func allowanceKey(token, spender common.Address) string {
	return token.Hex() + spender.Hex()
}

func (f *fakeChain) balance(token, holder common.Address) *big.Int {
	if v, ok := f.balances[token][holder]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (f *fakeChain) credit(token, holder common.Address, amount *big.Int) {
	if f.balances[token] == nil {
		f.balances[token] = make(map[common.Address]*big.Int)
	}
	f.balances[token][holder] = new(big.Int).Add(f.balance(token, holder), amount)
}

func (f *fakeChain) move(token, from, to common.Address, amount *big.Int) {
	f.credit(token, from, new(big.Int).Neg(amount))
	f.credit(token, to, amount)
}

func (f *fakeChain) dispatch(to common.Address, data []byte) (abi.Method, []interface{}, []byte, error) {
	m, ok := f.methods[string(data[:4])]
	if !ok {
		return abi.Method{}, nil, nil, fmt.Errorf("unknown selector %x", data[:4])
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return m, nil, nil, err
	}
	h, ok := f.handlers[m.Name]
	if !ok {
		return m, args, nil, fmt.Errorf("no handler for %s", m.Name)
	}
	values, err := h(to, args)
	if err != nil {
		return m, args, nil, err
	}
	out, err := m.Outputs.Pack(values...)
	return m, args, out, err
}

func (f *fakeChain) Address() common.Address { return self }

func (f *fakeChain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.calls++
	if f.failCalls > 0 {
		f.failCalls--
		return nil, errors.New("connection reset")
	}
	_, _, out, err := f.dispatch(to, data)
	return out, err
}

func (f *fakeChain) SendTx(_ context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error) {
	m, args, _, err := f.dispatch(to, data)
	if err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentCall{to: to, method: m.Name, args: args})
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: common.BigToHash(big.NewInt(int64(len(f.sent))))}, nil
}

func (f *fakeChain) sentMethods() []string {
	names := make([]string, len(f.sent))
	for i, s := range f.sent {
		names[i] = s.method
	}
	return names
}

func instance() types.Instance {
	return types.Instance{
		ID:         "live",
		Variant:    "spookyswap",
		LegA:       types.Leg{Token: tokenA, Symbol: "WFTM", Decimals: 18, Provider: common.HexToAddress("0xa1")},
		LegB:       types.Leg{Token: tokenB, Symbol: "USDC", Decimals: 6, Provider: common.HexToAddress("0xb1")},
		Pair:       pair,
		Router:     router,
		MasterChef: masterChef,
		PoolID:     4,
		Reward:     rewardTok,
		BaseAsset:  baseAsset,
		Hedger:     hedger,
		Self:       self,
		FeeBps:     30,
	}
}

func newAdapter(t *testing.T, f *fakeChain) *Adapter {
	t.Helper()
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	a, err := NewAdapter(instance(), f, Options{Clock: clock})
	require.NoError(t, err)
	return a
}

func TestBind(t *testing.T) {
	f := newFakeChain(t)

	venue, err := Bind(instance(), f, Options{})
	require.NoError(t, err)
	require.NoError(t, venue.Validate())
	assert.Nil(t, venue.Tx)

	other := instance()
	other.Self = common.HexToAddress("0x21")
	_, err = Bind(other, f, Options{})
	assert.ErrorIs(t, err, ErrAccountMismatch)

	other = instance()
	other.Variant = "pancakeswap"
	_, err = Bind(other, f, Options{})
	assert.ErrorIs(t, err, adapters.ErrUnknownVariant)
}

func TestReserves_OrderedByLeg(t *testing.T) {
	f := newFakeChain(t)
	f.handlers["token0"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{tokenB}, nil
	}
	f.handlers["getReserves"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(500), big.NewInt(100), uint32(0)}, nil
	}
	a := newAdapter(t, f)

	reserveA, reserveB, err := a.Reserves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", reserveA.String())
	assert.Equal(t, "500", reserveB.String())

	f.handlers["getHedgeProfit"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(3), big.NewInt(9)}, nil
	}
	profitA, profitB, err := a.UnrealizedProfit(context.Background(), sdkmath.NewInt(1), sdkmath.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "9", profitA.String())
	assert.Equal(t, "3", profitB.String())
}

func TestPoolReserves_ResolvesThroughFactory(t *testing.T) {
	factory := common.HexToAddress("0x30")
	basePair := common.HexToAddress("0x31")
	f := newFakeChain(t)
	f.handlers["factory"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{factory}, nil
	}
	var lookups int
	f.handlers["getPair"] = func(to common.Address, args []interface{}) ([]interface{}, error) {
		lookups++
		require.Equal(t, factory, to)
		if args[0].(common.Address) == rewardTok || args[1].(common.Address) == rewardTok {
			return []interface{}{common.Address{}}, nil
		}
		return []interface{}{basePair}, nil
	}
	f.handlers["token0"] = func(to common.Address, _ []interface{}) ([]interface{}, error) {
		if to == basePair {
			return []interface{}{baseAsset}, nil
		}
		return []interface{}{tokenA}, nil
	}
	f.handlers["getReserves"] = func(to common.Address, _ []interface{}) ([]interface{}, error) {
		if to == basePair {
			return []interface{}{big.NewInt(70), big.NewInt(30), uint32(0)}, nil
		}
		return []interface{}{big.NewInt(100), big.NewInt(500), uint32(0)}, nil
	}
	a := newAdapter(t, f)
	ctx := context.Background()

	rA, rBase, err := a.PoolReserves(ctx, tokenA, baseAsset)
	require.NoError(t, err)
	assert.Equal(t, "30", rA.String())
	assert.Equal(t, "70", rBase.String())

	// The joint's own pair needs no lookup.
	rB, rA, err := a.PoolReserves(ctx, tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, "500", rB.String())
	assert.Equal(t, "100", rA.String())
	assert.Equal(t, 1, lookups)

	_, _, err = a.PoolReserves(ctx, rewardTok, baseAsset)
	assert.ErrorIs(t, err, ErrNoRoute)

	path, err := a.SwapPath(tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tokenA, baseAsset, tokenB}, path)
}

func TestSwap_RoutesThroughBase(t *testing.T) {
	f := newFakeChain(t)
	f.credit(tokenA, self, big.NewInt(1000))
	var quotedPath []common.Address
	f.handlers["getAmountsOut"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		quotedPath = args[1].([]common.Address)
		return []interface{}{[]*big.Int{in, new(big.Int).Mul(in, big.NewInt(3)), new(big.Int).Mul(in, big.NewInt(2))}}, nil
	}
	f.handlers["swapExactTokensForTokens"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		path := args[2].([]common.Address)
		out := new(big.Int).Sub(new(big.Int).Mul(in, big.NewInt(2)), big.NewInt(1))
		f.move(path[0], self, router, in)
		f.move(path[len(path)-1], router, self, out)
		return []interface{}{[]*big.Int{in, out}}, nil
	}
	a := newAdapter(t, f)
	ctx := context.Background()

	out, err := a.Swap(ctx, tokenA, tokenB, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "199", out.String())
	assert.Equal(t, []common.Address{tokenA, baseAsset, tokenB}, quotedPath)

	assert.Equal(t, []string{"approve", "swapExactTokensForTokens"}, f.sentMethods())
	swap := f.sent[1]
	assert.Equal(t, "198", swap.args[1].(*big.Int).String())
	assert.Equal(t, self, swap.args[3].(common.Address))
	assert.Equal(t, int64(1_700_000_000+20*60), swap.args[4].(*big.Int).Int64())

	_, err = a.Swap(ctx, tokenA, tokenB, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, []string{"approve", "swapExactTokensForTokens", "swapExactTokensForTokens"}, f.sentMethods())

	_, err = a.QuoteSwap(ctx, baseAsset, tokenB, sdkmath.NewInt(10))
	assert.Error(t, err, "direct route yields two amounts")
	_, err = a.Swap(ctx, tokenA, tokenA, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = a.QuoteSwap(ctx, tokenA, tokenB, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, adapters.ErrZeroAmount)
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	f := newFakeChain(t)
	f.credit(tokenA, self, big.NewInt(100))
	f.credit(tokenB, self, big.NewInt(300))
	f.handlers["token0"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{tokenA}, nil
	}
	f.handlers["getReserves"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(1000), big.NewInt(2000), uint32(0)}, nil
	}
	f.handlers["totalSupply"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(500)}, nil
	}
	f.handlers["addLiquidity"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		f.move(tokenA, self, pair, big.NewInt(100))
		f.move(tokenB, self, pair, big.NewInt(200))
		f.credit(pair, self, big.NewInt(50))
		return []interface{}{big.NewInt(100), big.NewInt(200), big.NewInt(50)}, nil
	}
	f.handlers["removeLiquidity"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		shares := args[2].(*big.Int)
		f.credit(pair, self, new(big.Int).Neg(shares))
		f.move(tokenA, pair, self, big.NewInt(100))
		f.move(tokenB, pair, self, big.NewInt(200))
		return []interface{}{big.NewInt(100), big.NewInt(200)}, nil
	}
	a := newAdapter(t, f)
	ctx := context.Background()

	usedA, usedB, shares, err := a.AddLiquidity(ctx, sdkmath.NewInt(100), sdkmath.NewInt(300))
	require.NoError(t, err)
	assert.Equal(t, "100", usedA.String())
	assert.Equal(t, "200", usedB.String())
	assert.Equal(t, "50", shares.String())

	add := f.sent[len(f.sent)-1]
	require.Equal(t, "addLiquidity", add.method)
	assert.Equal(t, "99", add.args[4].(*big.Int).String())
	assert.Equal(t, "198", add.args[5].(*big.Int).String())

	balance, err := a.PairBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "50", balance.String())

	outA, outB, err := a.RemoveLiquidity(ctx, sdkmath.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, "100", outA.String())
	assert.Equal(t, "200", outB.String())

	remove := f.sent[len(f.sent)-1]
	require.Equal(t, "removeLiquidity", remove.method)
	assert.Equal(t, "99", remove.args[3].(*big.Int).String())
	assert.Equal(t, "198", remove.args[4].(*big.Int).String())
}

func TestStaking(t *testing.T) {
	f := newFakeChain(t)
	staked := big.NewInt(0)
	f.handlers["deposit"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		staked.Add(staked, args[1].(*big.Int))
		return nil, nil
	}
	f.handlers["withdraw"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		staked.Sub(staked, args[1].(*big.Int))
		return nil, nil
	}
	f.handlers["userInfo"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		if args[0].(*big.Int).Uint64() != 4 || args[1].(common.Address) != self {
			return nil, errors.New("unexpected userInfo arguments")
		}
		return []interface{}{new(big.Int).Set(staked), big.NewInt(0)}, nil
	}
	f.handlers["pendingBOO"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(42)}, nil
	}
	a := newAdapter(t, f)
	ctx := context.Background()

	require.NoError(t, a.Stake(ctx, sdkmath.NewInt(70)))
	require.NoError(t, a.Unstake(ctx, sdkmath.NewInt(20)))
	require.NoError(t, a.Claim(ctx))

	balance, err := a.StakedBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "50", balance.String())

	pending, err := a.PendingReward(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", pending.String())

	assert.Equal(t, []string{"approve", "deposit", "withdraw", "deposit"}, f.sentMethods())
	assert.Equal(t, masterChef, f.sent[0].args[0].(common.Address))
	assert.Equal(t, "0", f.sent[3].args[1].(*big.Int).String())
}

func TestHedge_OpenUsesPreviewIDs(t *testing.T) {
	f := newFakeChain(t)
	f.handlers["hedgeLPToken"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(7), big.NewInt(8)}, nil
	}
	f.handlers["closeHedge"] = func(_ common.Address, args []interface{}) ([]interface{}, error) {
		f.credit(tokenA, self, big.NewInt(11))
		return []interface{}{big.NewInt(11), big.NewInt(0)}, nil
	}
	a := newAdapter(t, f)
	ctx := context.Background()

	callID, putID, err := a.Open(ctx, sdkmath.NewInt(1000), 1000, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "7", callID.String())
	assert.Equal(t, "8", putID.String())

	open := f.sent[len(f.sent)-1]
	require.Equal(t, "hedgeLPToken", open.method)
	assert.Equal(t, pair, open.args[0].(common.Address))
	assert.Equal(t, "1000", open.args[2].(*big.Int).String())
	assert.Equal(t, "86400", open.args[3].(*big.Int).String())

	payoutA, payoutB, err := a.Close(ctx, callID, putID)
	require.NoError(t, err)
	assert.Equal(t, "11", payoutA.String())
	assert.True(t, payoutB.IsZero())

	noHedger := instance()
	noHedger.Hedger = common.Address{}
	b, err := NewAdapter(noHedger, f, Options{})
	require.NoError(t, err)
	_, _, err = b.Open(ctx, sdkmath.NewInt(1000), 1000, time.Hour)
	assert.ErrorIs(t, err, ErrNoHedger)
}

func TestProviderAndTokens(t *testing.T) {
	f := newFakeChain(t)
	vault := common.HexToAddress("0xb0")
	f.handlers["vault"] = func(common.Address, []interface{}) ([]interface{}, error) { return []interface{}{vault}, nil }
	f.handlers["governance"] = func(to common.Address, _ []interface{}) ([]interface{}, error) {
		if to != vault {
			return nil, errors.New("governance read from the wrong contract")
		}
		return []interface{}{common.HexToAddress("0xa2")}, nil
	}
	f.handlers["strategist"] = func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{common.HexToAddress("0xa3")}, nil
	}
	f.handlers["want"] = func(common.Address, []interface{}) ([]interface{}, error) { return []interface{}{tokenA}, nil }
	f.handlers["decimals"] = func(common.Address, []interface{}) ([]interface{}, error) { return []interface{}{uint8(6)}, nil }
	f.handlers["symbol"] = func(common.Address, []interface{}) ([]interface{}, error) { return []interface{}{"USDC"}, nil }
	a := newAdapter(t, f)
	ctx := context.Background()
	provider := common.HexToAddress("0xa1")

	gov, err := a.Governance(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa2"), gov)
	strategist, err := a.Strategist(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa3"), strategist)
	want, err := a.Want(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, tokenA, want)

	decimals, err := a.Decimals(ctx, tokenB)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)
	symbol, err := a.Symbol(ctx, tokenB)
	require.NoError(t, err)
	assert.Equal(t, "USDC", symbol)

	f.credit(tokenB, self, big.NewInt(40))
	require.NoError(t, a.Transfer(ctx, tokenB, provider, sdkmath.NewInt(40)))
	assert.Equal(t, "40", f.balance(tokenB, provider).String())
	assert.ErrorIs(t, a.Transfer(ctx, tokenB, provider, sdkmath.ZeroInt()), adapters.ErrZeroAmount)
}

func TestView_RetriesTransientFailures(t *testing.T) {
	f := newFakeChain(t)
	f.credit(tokenA, self, big.NewInt(5))
	a := newAdapter(t, f)
	ctx := context.Background()

	f.failCalls = 2
	balance, err := a.BalanceOf(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, "5", balance.String())
	assert.Equal(t, 3, f.calls)

	f.failCalls = 10
	_, err = a.BalanceOf(ctx, tokenA)
	assert.ErrorIs(t, err, ErrCallFailed)
}
