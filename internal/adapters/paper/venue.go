/*

Package paper is an in-memory venue: constant-product pools, a masterchef-style
staking contract, an option book and ERC20-like balances. It backs paper trading
mode and the tests, and supports snapshots so a failed operation can be rolled
back exactly.

Option premiums and reward emission schedules are not modelled; tests set
hedge payouts and pending rewards directly.

*/

package paper

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/valuation"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownPool         = errors.New("pool does not exist")
	ErrNoRoute             = errors.New("no swap route")
	ErrUnknownOption       = errors.New("option does not exist or is closed")
	ErrUnknownProvider     = errors.New("provider is not registered")
	ErrInsufficientMinted  = errors.New("insufficient liquidity minted")
)

var paperLogger = logger.GetForComponent("paper_venue")

// Operation names accepted by FailNext.
const (
	FailAddLiquidity    = "add_liquidity"
	FailRemoveLiquidity = "remove_liquidity"
	FailSwap            = "swap"
	FailStake           = "stake"
	FailUnstake         = "unstake"
	FailClaim           = "claim"
	FailOpenHedge       = "open_hedge"
	FailCloseHedge      = "close_hedge"
	FailTransfer        = "transfer"
)

type pool struct {
	address  common.Address
	token0   common.Address
	token1   common.Address
	reserve0 sdkmath.Int
	reserve1 sdkmath.Int
	supply   sdkmath.Int
}

func (p *pool) reserveOf(token common.Address) sdkmath.Int {
	if token == p.token0 {
		return p.reserve0
	}
	return p.reserve1
}

func (p *pool) setReserve(token common.Address, amount sdkmath.Int) {
	if token == p.token0 {
		p.reserve0 = amount
		return
	}
	p.reserve1 = amount
}

func (p *pool) has(token common.Address) bool {
	return token == p.token0 || token == p.token1
}

type option struct {
	callID  sdkmath.Int
	putID   sdkmath.Int
	holder  common.Address
	shares  sdkmath.Int
	tokenA  common.Address
	tokenB  common.Address
	profitA sdkmath.Int
	profitB sdkmath.Int
}

type providerInfo struct {
	governance common.Address
	strategist common.Address
	want       common.Address
}

type state struct {
	balances map[common.Address]map[common.Address]sdkmath.Int
	pools    map[common.Address]*pool
	// stakingPools maps a pool id to the share token it accepts.
	stakingPools map[uint64]common.Address
	staked       map[uint64]map[common.Address]sdkmath.Int
	pending      map[uint64]map[common.Address]sdkmath.Int
	options      map[string]*option
	nextOptionID int64
	failures     map[string]error
}

func (s *state) clone() *state {
	c := &state{
		balances:     make(map[common.Address]map[common.Address]sdkmath.Int, len(s.balances)),
		pools:        make(map[common.Address]*pool, len(s.pools)),
		stakingPools: make(map[uint64]common.Address, len(s.stakingPools)),
		staked:       make(map[uint64]map[common.Address]sdkmath.Int, len(s.staked)),
		pending:      make(map[uint64]map[common.Address]sdkmath.Int, len(s.pending)),
		options:      make(map[string]*option, len(s.options)),
		nextOptionID: s.nextOptionID,
		failures:     make(map[string]error, len(s.failures)),
	}
	for token, holders := range s.balances {
		c.balances[token] = copyAmounts(holders)
	}
	for addr, p := range s.pools {
		cp := *p
		c.pools[addr] = &cp
	}
	for pid, token := range s.stakingPools {
		c.stakingPools[pid] = token
	}
	for pid, holders := range s.staked {
		c.staked[pid] = copyAmounts(holders)
	}
	for pid, holders := range s.pending {
		c.pending[pid] = copyAmounts(holders)
	}
	for id, o := range s.options {
		co := *o
		c.options[id] = &co
	}
	for op, err := range s.failures {
		c.failures[op] = err
	}
	return c
}

func copyAmounts(m map[common.Address]sdkmath.Int) map[common.Address]sdkmath.Int {
	c := make(map[common.Address]sdkmath.Int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Venue holds the shared state of every paper pool, token and contract.
type Venue struct {
	mu        sync.Mutex
	st        *state
	quoter    valuation.ConstantProduct
	decimals  map[common.Address]uint8
	symbols   map[common.Address]string
	providers map[common.Address]providerInfo
}

// NewVenue returns an empty venue whose pools charge feeBps on swaps.
func NewVenue(feeBps uint32) *Venue {
	return &Venue{
		st: &state{
			balances:     make(map[common.Address]map[common.Address]sdkmath.Int),
			pools:        make(map[common.Address]*pool),
			stakingPools: make(map[uint64]common.Address),
			staked:       make(map[uint64]map[common.Address]sdkmath.Int),
			pending:      make(map[uint64]map[common.Address]sdkmath.Int),
			options:      make(map[string]*option),
			nextOptionID: 1,
			failures:     make(map[string]error),
		},
		quoter:    valuation.NewConstantProduct(feeBps),
		decimals:  make(map[common.Address]uint8),
		symbols:   make(map[common.Address]string),
		providers: make(map[common.Address]providerInfo),
	}
}

// RegisterToken declares a token's metadata.
func (v *Venue) RegisterToken(token common.Address, symbol string, decimals uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.symbols[token] = symbol
	v.decimals[token] = decimals
}

// RegisterProvider declares a capital provider and the addresses it reports.
func (v *Venue) RegisterProvider(provider, governance, strategist, want common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.providers[provider] = providerInfo{governance: governance, strategist: strategist, want: want}
}

// CreatePool creates a pair seeded with the given reserves. The seed shares are owned by the zero address.
func (v *Venue) CreatePool(address, tokenX, tokenY common.Address, reserveX, reserveY sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	supply := sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(reserveX.Mul(reserveY).BigInt()))
	v.st.pools[address] = &pool{
		address:  address,
		token0:   tokenX,
		token1:   tokenY,
		reserve0: reserveX,
		reserve1: reserveY,
		supply:   supply,
	}
	v.credit(address, common.Address{}, supply)
	v.symbols[address] = "LP"
	v.decimals[address] = 18
}

// AddStakingPool registers a masterchef pool id accepting the given share token.
func (v *Venue) AddStakingPool(pid uint64, shareToken common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st.stakingPools[pid] = shareToken
}

// Mint credits amount of token to holder.
func (v *Venue) Mint(token, holder common.Address, amount sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(token, holder, amount)
}

// Balance returns holder's balance of token.
func (v *Venue) Balance(token, holder common.Address) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(token, holder)
}

// PoolReserves returns the reserves of a pool for the two given tokens.
func (v *Venue) PoolReserves(address, tokenX, tokenY common.Address) (sdkmath.Int, sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.st.pools[address]
	if !ok || !p.has(tokenX) || !p.has(tokenY) {
		return sdkmath.Int{}, sdkmath.Int{}, ErrUnknownPool
	}
	return p.reserveOf(tokenX), p.reserveOf(tokenY), nil
}

// AccrueReward adds pending rewards for a staker.
func (v *Venue) AccrueReward(pid uint64, holder common.Address, amount sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st.pending[pid] = addTo(v.st.pending[pid], holder, amount)
}

// SetHedgeProfit sets what closing the given hedge would pay out in each leg.
func (v *Venue) SetHedgeProfit(callID, putID sdkmath.Int, profitA, profitB sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.st.options[optionKey(callID, putID)]
	if !ok {
		return ErrUnknownOption
	}
	o.profitA = profitA
	o.profitB = profitB
	return nil
}

// OpenHedges returns how many hedges are currently open.
func (v *Venue) OpenHedges() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.st.options)
}

// FailNext makes the next call of operation op fail with err before touching any state.
func (v *Venue) FailNext(op string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st.failures[op] = err
}

// Snapshot captures the full venue state.
func (v *Venue) Snapshot() func() {
	v.mu.Lock()
	saved := v.st.clone()
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		// Pending fault injections are consumed, not restored.
		saved.failures = v.st.failures
		v.st = saved
		paperLogger.Debug().Msg("Venue state restored from snapshot")
	}
}

// Account binds the venue to one instance, implementing every adapter interface for it.
func (v *Venue) Account(inst types.Instance) *Account {
	return &Account{venue: v, inst: inst}
}

// Bind returns the adapter bundle for an instance.
func (v *Venue) Bind(inst types.Instance) adapters.Venue {
	acc := v.Account(inst)
	return adapters.Venue{
		AMM:      acc,
		Staking:  acc,
		Hedge:    acc,
		Tokens:   acc,
		Provider: acc,
		Tx:       v,
	}
}

// --- internal helpers, callers hold v.mu ---

func (v *Venue) takeFailure(op string) error {
	if err, ok := v.st.failures[op]; ok {
		delete(v.st.failures, op)
		return fmt.Errorf("paper %s: %w", op, err)
	}
	return nil
}

func (v *Venue) balance(token, holder common.Address) sdkmath.Int {
	if b, ok := v.st.balances[token][holder]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (v *Venue) credit(token, holder common.Address, amount sdkmath.Int) {
	v.st.balances[token] = addTo(v.st.balances[token], holder, amount)
}

func (v *Venue) debit(token, holder common.Address, amount sdkmath.Int) error {
	b := v.balance(token, holder)
	if b.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, holder.Hex(), b, token.Hex(), amount)
	}
	v.st.balances[token][holder] = b.Sub(amount)
	return nil
}

func (v *Venue) move(token, from, to common.Address, amount sdkmath.Int) error {
	if err := v.debit(token, from, amount); err != nil {
		return err
	}
	v.credit(token, to, amount)
	return nil
}

func addTo(m map[common.Address]sdkmath.Int, holder common.Address, amount sdkmath.Int) map[common.Address]sdkmath.Int {
	if m == nil {
		m = make(map[common.Address]sdkmath.Int)
	}
	if cur, ok := m[holder]; ok {
		m[holder] = cur.Add(amount)
	} else {
		m[holder] = amount
	}
	return m
}

func optionKey(callID, putID sdkmath.Int) string {
	return callID.String() + "/" + putID.String()
}
