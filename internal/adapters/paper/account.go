package paper

import (
	"context"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Account is the view of the venue from one joint instance.
type Account struct {
	venue *Venue
	inst  types.Instance
}

// --- AMM ---

func (a *Account) pair() (*pool, error) {
	p, ok := a.venue.st.pools[a.inst.Pair]
	if !ok || !p.has(a.inst.LegA.Token) || !p.has(a.inst.LegB.Token) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, a.inst.Pair.Hex())
	}
	return p, nil
}

// AddLiquidity deposits at the current pool price, refunding whichever side is in excess.
func (a *Account) AddLiquidity(_ context.Context, amountA, amountB sdkmath.Int) (sdkmath.Int, sdkmath.Int, sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if err := v.takeFailure(FailAddLiquidity); err != nil {
		return zero, zero, zero, err
	}
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return zero, zero, zero, adapters.ErrZeroAmount
	}
	p, err := a.pair()
	if err != nil {
		return zero, zero, zero, err
	}

	tokenA, tokenB := a.inst.LegA.Token, a.inst.LegB.Token
	reserveA, reserveB := p.reserveOf(tokenA), p.reserveOf(tokenB)

	usedA, usedB := amountA, amountB
	var shares sdkmath.Int
	if p.supply.IsZero() {
		shares = sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(amountA.Mul(amountB).BigInt()))
	} else {
		optimalB := amountA.Mul(reserveB).Quo(reserveA)
		if optimalB.LTE(amountB) {
			usedB = optimalB
		} else {
			usedA = amountB.Mul(reserveA).Quo(reserveB)
		}
		shares = sdkmath.MinInt(usedA.Mul(p.supply).Quo(reserveA), usedB.Mul(p.supply).Quo(reserveB))
	}
	if !shares.IsPositive() {
		return zero, zero, zero, ErrInsufficientMinted
	}

	if err := v.debit(tokenA, a.inst.Self, usedA); err != nil {
		return zero, zero, zero, err
	}
	if err := v.debit(tokenB, a.inst.Self, usedB); err != nil {
		v.credit(tokenA, a.inst.Self, usedA)
		return zero, zero, zero, err
	}
	p.setReserve(tokenA, reserveA.Add(usedA))
	p.setReserve(tokenB, reserveB.Add(usedB))
	p.supply = p.supply.Add(shares)
	v.credit(p.address, a.inst.Self, shares)

	return usedA, usedB, shares, nil
}

// RemoveLiquidity burns shares for a pro-rata part of both reserves.
func (a *Account) RemoveLiquidity(_ context.Context, shares sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if err := v.takeFailure(FailRemoveLiquidity); err != nil {
		return zero, zero, err
	}
	if !shares.IsPositive() {
		return zero, zero, adapters.ErrZeroAmount
	}
	p, err := a.pair()
	if err != nil {
		return zero, zero, err
	}
	if err := v.debit(p.address, a.inst.Self, shares); err != nil {
		return zero, zero, err
	}

	tokenA, tokenB := a.inst.LegA.Token, a.inst.LegB.Token
	reserveA, reserveB := p.reserveOf(tokenA), p.reserveOf(tokenB)
	outA := shares.Mul(reserveA).Quo(p.supply)
	outB := shares.Mul(reserveB).Quo(p.supply)

	p.setReserve(tokenA, reserveA.Sub(outA))
	p.setReserve(tokenB, reserveB.Sub(outB))
	p.supply = p.supply.Sub(shares)
	v.credit(tokenA, a.inst.Self, outA)
	v.credit(tokenB, a.inst.Self, outB)

	return outA, outB, nil
}

// route mirrors the router path: direct when either side is the base asset, otherwise via it.
func (a *Account) route(tokenIn, tokenOut common.Address) []common.Address {
	if tokenIn == a.inst.BaseAsset || tokenOut == a.inst.BaseAsset {
		return []common.Address{tokenIn, tokenOut}
	}
	return []common.Address{tokenIn, a.inst.BaseAsset, tokenOut}
}

func (a *Account) findPool(x, y common.Address) (*pool, error) {
	for _, p := range a.venue.st.pools {
		if p.has(x) && p.has(y) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, x.Hex(), y.Hex())
}

// quotePath returns the output of every hop; callers hold the lock.
func (a *Account) quotePath(path []common.Address, amountIn sdkmath.Int) ([]sdkmath.Int, []*pool, error) {
	amounts := []sdkmath.Int{amountIn}
	pools := make([]*pool, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		p, err := a.findPool(path[i], path[i+1])
		if err != nil {
			return nil, nil, err
		}
		out, err := a.venue.quoter.QuoteOut(amounts[i], p.reserveOf(path[i]), p.reserveOf(path[i+1]))
		if err != nil {
			return nil, nil, err
		}
		amounts = append(amounts, out)
		pools = append(pools, p)
	}
	return amounts, pools, nil
}

// Swap sells amountIn of tokenIn along the routed path.
func (a *Account) Swap(_ context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.takeFailure(FailSwap); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), adapters.ErrZeroAmount
	}
	path := a.route(tokenIn, tokenOut)
	amounts, pools, err := a.quotePath(path, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.debit(tokenIn, a.inst.Self, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	for i, p := range pools {
		in, out := path[i], path[i+1]
		p.setReserve(in, p.reserveOf(in).Add(amounts[i]))
		p.setReserve(out, p.reserveOf(out).Sub(amounts[i+1]))
	}
	received := amounts[len(amounts)-1]
	v.credit(tokenOut, a.inst.Self, received)
	return received, nil
}

// QuoteSwap prices a swap along the routed path without executing it.
func (a *Account) QuoteSwap(_ context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	amounts, _, err := a.quotePath(a.route(tokenIn, tokenOut), amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amounts[len(amounts)-1], nil
}

func (a *Account) SwapPath(tokenIn, tokenOut common.Address) ([]common.Address, error) {
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("%w: %s to itself", ErrNoRoute, tokenIn.Hex())
	}
	return a.route(tokenIn, tokenOut), nil
}

func (a *Account) PoolReserves(_ context.Context, x, y common.Address) (sdkmath.Int, sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	p, err := a.findPool(x, y)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return p.reserveOf(x), p.reserveOf(y), nil
}

func (a *Account) Reserves(_ context.Context) (sdkmath.Int, sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	p, err := a.pair()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return p.reserveOf(a.inst.LegA.Token), p.reserveOf(a.inst.LegB.Token), nil
}

func (a *Account) PairSupply(_ context.Context) (sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	p, err := a.pair()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return p.supply, nil
}

func (a *Account) PairBalance(_ context.Context) (sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	return a.venue.balance(a.inst.Pair, a.inst.Self), nil
}

// --- Staking ---

func (a *Account) stakingToken() (common.Address, error) {
	token, ok := a.venue.st.stakingPools[a.inst.PoolID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: staking pool %d", ErrUnknownPool, a.inst.PoolID)
	}
	return token, nil
}

// harvestPending pays out accrued rewards the way masterchef does on every deposit and withdraw.
func (a *Account) harvestPending() {
	pid := a.inst.PoolID
	pending, ok := a.venue.st.pending[pid][a.inst.Self]
	if !ok || pending.IsZero() {
		return
	}
	a.venue.st.pending[pid][a.inst.Self] = sdkmath.ZeroInt()
	a.venue.credit(a.inst.Reward, a.inst.Self, pending)
}

func (a *Account) Stake(_ context.Context, shares sdkmath.Int) error {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.takeFailure(FailStake); err != nil {
		return err
	}
	if !shares.IsPositive() {
		return adapters.ErrZeroAmount
	}
	token, err := a.stakingToken()
	if err != nil {
		return err
	}
	if err := v.debit(token, a.inst.Self, shares); err != nil {
		return err
	}
	a.harvestPending()
	v.st.staked[a.inst.PoolID] = addTo(v.st.staked[a.inst.PoolID], a.inst.Self, shares)
	return nil
}

func (a *Account) Unstake(_ context.Context, shares sdkmath.Int) error {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.takeFailure(FailUnstake); err != nil {
		return err
	}
	if !shares.IsPositive() {
		return adapters.ErrZeroAmount
	}
	token, err := a.stakingToken()
	if err != nil {
		return err
	}
	staked := v.st.staked[a.inst.PoolID][a.inst.Self]
	if staked.IsNil() || staked.LT(shares) {
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientBalance, staked, shares)
	}
	a.harvestPending()
	v.st.staked[a.inst.PoolID][a.inst.Self] = staked.Sub(shares)
	v.credit(token, a.inst.Self, shares)
	return nil
}

func (a *Account) StakedBalance(_ context.Context) (sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	if s, ok := a.venue.st.staked[a.inst.PoolID][a.inst.Self]; ok {
		return s, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (a *Account) PendingReward(_ context.Context) (sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	if p, ok := a.venue.st.pending[a.inst.PoolID][a.inst.Self]; ok {
		return p, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (a *Account) Claim(_ context.Context) error {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	if err := a.venue.takeFailure(FailClaim); err != nil {
		return err
	}
	a.harvestPending()
	return nil
}

// --- Hedge ---

func (a *Account) Open(_ context.Context, shares sdkmath.Int, _ uint32, period time.Duration) (sdkmath.Int, sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if err := v.takeFailure(FailOpenHedge); err != nil {
		return zero, zero, err
	}
	if !shares.IsPositive() {
		return zero, zero, adapters.ErrZeroAmount
	}
	if period <= 0 {
		return zero, zero, fmt.Errorf("hedge period must be positive, got %s", period)
	}
	callID := sdkmath.NewInt(v.st.nextOptionID)
	putID := sdkmath.NewInt(v.st.nextOptionID + 1)
	v.st.nextOptionID += 2
	v.st.options[optionKey(callID, putID)] = &option{
		callID:  callID,
		putID:   putID,
		holder:  a.inst.Self,
		shares:  shares,
		tokenA:  a.inst.LegA.Token,
		tokenB:  a.inst.LegB.Token,
		profitA: zero,
		profitB: zero,
	}
	return callID, putID, nil
}

func (a *Account) Close(_ context.Context, callID, putID sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if err := v.takeFailure(FailCloseHedge); err != nil {
		return zero, zero, err
	}
	key := optionKey(callID, putID)
	o, ok := v.st.options[key]
	if !ok || o.holder != a.inst.Self {
		return zero, zero, ErrUnknownOption
	}
	delete(v.st.options, key)
	if o.profitA.IsPositive() {
		v.credit(o.tokenA, o.holder, o.profitA)
	}
	if o.profitB.IsPositive() {
		v.credit(o.tokenB, o.holder, o.profitB)
	}
	return o.profitA, o.profitB, nil
}

func (a *Account) UnrealizedProfit(_ context.Context, callID, putID sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	o, ok := a.venue.st.options[optionKey(callID, putID)]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrUnknownOption
	}
	return o.profitA, o.profitB, nil
}

// --- Tokens ---

func (a *Account) BalanceOf(_ context.Context, token common.Address) (sdkmath.Int, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	return a.venue.balance(token, a.inst.Self), nil
}

func (a *Account) Transfer(_ context.Context, token, to common.Address, amount sdkmath.Int) error {
	v := a.venue
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(FailTransfer); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return adapters.ErrZeroAmount
	}
	return v.move(token, a.inst.Self, to, amount)
}

func (a *Account) Decimals(_ context.Context, token common.Address) (uint8, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	d, ok := a.venue.decimals[token]
	if !ok {
		return 0, fmt.Errorf("token %s is not registered", token.Hex())
	}
	return d, nil
}

func (a *Account) Symbol(_ context.Context, token common.Address) (string, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	s, ok := a.venue.symbols[token]
	if !ok {
		return "", fmt.Errorf("token %s is not registered", token.Hex())
	}
	return s, nil
}

// --- Provider ---

func (a *Account) provider(addr common.Address) (providerInfo, error) {
	a.venue.mu.Lock()
	defer a.venue.mu.Unlock()
	info, ok := a.venue.providers[addr]
	if !ok {
		return providerInfo{}, fmt.Errorf("%w: %s", ErrUnknownProvider, addr.Hex())
	}
	return info, nil
}

func (a *Account) Governance(_ context.Context, provider common.Address) (common.Address, error) {
	info, err := a.provider(provider)
	return info.governance, err
}

func (a *Account) Strategist(_ context.Context, provider common.Address) (common.Address, error) {
	info, err := a.provider(provider)
	return info.strategist, err
}

func (a *Account) Want(_ context.Context, provider common.Address) (common.Address, error) {
	info, err := a.provider(provider)
	return info.want, err
}

var (
	_ adapters.AMM           = (*Account)(nil)
	_ adapters.Staking       = (*Account)(nil)
	_ adapters.Hedge         = (*Account)(nil)
	_ adapters.Tokens        = (*Account)(nil)
	_ adapters.Provider      = (*Account)(nil)
	_ adapters.Transactional = (*Venue)(nil)
)
