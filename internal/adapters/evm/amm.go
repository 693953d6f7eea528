package evm

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/valuation"
	"github.com/ethereum/go-ethereum/common"
)

func (a *Adapter) AddLiquidity(ctx context.Context, amountA, amountB sdkmath.Int) (sdkmath.Int, sdkmath.Int, sdkmath.Int, error) {
	if err := checkPositive(amountA); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := checkPositive(amountB); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	tokenA, tokenB := a.inst.LegA.Token, a.inst.LegB.Token
	if err := a.ensureAllowance(ctx, tokenA, a.inst.Router, amountA); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := a.ensureAllowance(ctx, tokenB, a.inst.Router, amountB); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}

	expectedA, expectedB, err := a.optimalAmounts(ctx, amountA, amountB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	before, err := a.balances(ctx, tokenA, tokenB, a.inst.Pair)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}

	err = a.send(ctx, routerABI, a.inst.Router, "addLiquidity",
		tokenA, tokenB, amountA.BigInt(), amountB.BigInt(),
		a.minOut(expectedA).BigInt(), a.minOut(expectedB).BigInt(),
		a.inst.Self, a.deadline())
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}

	after, err := a.balances(ctx, tokenA, tokenB, a.inst.Pair)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	usedA := received(after[0], before[0])
	usedB := received(after[1], before[1])
	shares := received(before[2], after[2])

	evmLogger.Info().
		Str("instance", a.inst.ID).
		Str("usedA", usedA.String()).
		Str("usedB", usedB.String()).
		Str("shares", shares.String()).
		Msg("Liquidity added")
	return usedA, usedB, shares, nil
}

// optimalAmounts mirrors the router: the side in excess of the pool price is scaled down.
func (a *Adapter) optimalAmounts(ctx context.Context, amountA, amountB sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	reserveA, reserveB, err := a.Reserves(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return amountA, amountB, nil
	}
	optimalB, err := valuation.MulDiv(amountA, reserveB, reserveA)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if optimalB.LTE(amountB) {
		return amountA, optimalB, nil
	}
	optimalA, err := valuation.MulDiv(amountB, reserveA, reserveB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return optimalA, amountB, nil
}

func (a *Adapter) RemoveLiquidity(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if err := checkPositive(shares); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	tokenA, tokenB := a.inst.LegA.Token, a.inst.LegB.Token
	if err := a.ensureAllowance(ctx, a.inst.Pair, a.inst.Router, shares); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	reserveA, reserveB, err := a.Reserves(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	supply, err := a.PairSupply(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	expectedA, err := valuation.MulDiv(shares, reserveA, supply)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	expectedB, err := valuation.MulDiv(shares, reserveB, supply)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	before, err := a.balances(ctx, tokenA, tokenB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	err = a.send(ctx, routerABI, a.inst.Router, "removeLiquidity",
		tokenA, tokenB, shares.BigInt(),
		a.minOut(expectedA).BigInt(), a.minOut(expectedB).BigInt(),
		a.inst.Self, a.deadline())
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	after, err := a.balances(ctx, tokenA, tokenB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return received(before[0], after[0]), received(before[1], after[1]), nil
}

// path routes directly when either side is the base asset, otherwise through it.
func (a *Adapter) path(tokenIn, tokenOut common.Address) ([]common.Address, error) {
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("%w: %s to itself", ErrNoRoute, tokenIn.Hex())
	}
	base := a.inst.BaseAsset
	if tokenIn == base || tokenOut == base {
		return []common.Address{tokenIn, tokenOut}, nil
	}
	return []common.Address{tokenIn, base, tokenOut}, nil
}

func (a *Adapter) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	if err := checkPositive(amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	path, err := a.path(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	out, err := a.view(ctx, routerABI, a.inst.Router, "getAmountsOut", amountIn.BigInt(), path)
	if err != nil {
		return sdkmath.Int{}, err
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return sdkmath.Int{}, fmt.Errorf("%w: getAmountsOut returned %T", ErrUnexpectedABI, out[0])
	}
	return sdkmath.NewIntFromBigInt(amounts[len(amounts)-1]), nil
}

func (a *Adapter) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	path, err := a.path(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	quoted, err := a.QuoteSwap(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := a.ensureAllowance(ctx, tokenIn, a.inst.Router, amountIn); err != nil {
		return sdkmath.Int{}, err
	}

	before, err := a.BalanceOf(ctx, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	err = a.send(ctx, routerABI, a.inst.Router, "swapExactTokensForTokens",
		amountIn.BigInt(), a.minOut(quoted).BigInt(), path, a.inst.Self, a.deadline())
	if err != nil {
		return sdkmath.Int{}, err
	}
	after, err := a.BalanceOf(ctx, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	out := received(before, after)

	evmLogger.Info().
		Str("instance", a.inst.ID).
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Str("quoted", quoted.String()).
		Str("received", out.String()).
		Int("hops", len(path)-1).
		Msg("Swap executed")
	return out, nil
}

// SwapPath returns the router path Swap uses.
func (a *Adapter) SwapPath(tokenIn, tokenOut common.Address) ([]common.Address, error) {
	return a.path(tokenIn, tokenOut)
}

// PoolReserves returns the reserves of the pair trading x against y, ordered as x, y.
// Pairs other than the joint's own are resolved through the router's factory.
func (a *Adapter) PoolReserves(ctx context.Context, x, y common.Address) (sdkmath.Int, sdkmath.Int, error) {
	pool := a.inst.Pair
	legA, legB := a.inst.LegA.Token, a.inst.LegB.Token
	if !(x == legA && y == legB) && !(x == legB && y == legA) {
		var err error
		if pool, err = a.lookupPair(ctx, x, y); err != nil {
			return sdkmath.Int{}, sdkmath.Int{}, err
		}
	}

	out, err := a.view(ctx, pairABI, pool, "getReserves")
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserve0, err := uintAt(out, 0)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserve1, err := uintAt(out, 1)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	out, err = a.view(ctx, pairABI, pool, "token0")
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	token0, err := addressAt(out, 0)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	switch token0 {
	case x:
		return reserve0, reserve1, nil
	case y:
		return reserve1, reserve0, nil
	default:
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: pair %s token0 %s is neither %s nor %s",
			ErrUnexpectedABI, pool.Hex(), token0.Hex(), x.Hex(), y.Hex())
	}
}

func (a *Adapter) lookupPair(ctx context.Context, x, y common.Address) (common.Address, error) {
	out, err := a.view(ctx, routerABI, a.inst.Router, "factory")
	if err != nil {
		return common.Address{}, err
	}
	factory, err := addressAt(out, 0)
	if err != nil {
		return common.Address{}, err
	}
	out, err = a.view(ctx, factoryABI, factory, "getPair", x, y)
	if err != nil {
		return common.Address{}, err
	}
	pool, err := addressAt(out, 0)
	if err != nil {
		return common.Address{}, err
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no pair for %s and %s", ErrNoRoute, x.Hex(), y.Hex())
	}
	return pool, nil
}

// Reserves returns the pair reserves ordered as leg A, leg B.
func (a *Adapter) Reserves(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	out, err := a.view(ctx, pairABI, a.inst.Pair, "getReserves")
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserve0, err := uintAt(out, 0)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserve1, err := uintAt(out, 1)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	aIsToken0, err := a.legAIsToken0(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if aIsToken0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

func (a *Adapter) legAIsToken0(ctx context.Context) (bool, error) {
	out, err := a.view(ctx, pairABI, a.inst.Pair, "token0")
	if err != nil {
		return false, err
	}
	token0, err := addressAt(out, 0)
	if err != nil {
		return false, err
	}
	switch token0 {
	case a.inst.LegA.Token:
		return true, nil
	case a.inst.LegB.Token:
		return false, nil
	default:
		return false, fmt.Errorf("%w: pair %s token0 %s is not a leg", ErrUnexpectedABI, a.inst.Pair.Hex(), token0.Hex())
	}
}

func (a *Adapter) PairSupply(ctx context.Context) (sdkmath.Int, error) {
	out, err := a.view(ctx, pairABI, a.inst.Pair, "totalSupply")
	if err != nil {
		return sdkmath.Int{}, err
	}
	return uintAt(out, 0)
}

func (a *Adapter) PairBalance(ctx context.Context) (sdkmath.Int, error) {
	return a.BalanceOf(ctx, a.inst.Pair)
}
