package simulations

import (
	"bytes"
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/valuation"
	"github.com/ethereum/go-ethereum/common"
)

type poolKey [2]common.Address

func keyOf(x, y common.Address) poolKey {
	if bytes.Compare(x.Bytes(), y.Bytes()) > 0 {
		x, y = y, x
	}
	return poolKey{x, y}
}

// reserveBook is a local copy of every pool a projected harvest trades through.
// Simulated swaps move the copies so later hops see the state earlier ones left.
type reserveBook struct {
	amm      adapters.AMM
	quoter   valuation.Quoter
	reserves map[poolKey]map[common.Address]sdkmath.Int
}

func newReserveBook(amm adapters.AMM, quoter valuation.Quoter) *reserveBook {
	return &reserveBook{
		amm:      amm,
		quoter:   quoter,
		reserves: make(map[poolKey]map[common.Address]sdkmath.Int),
	}
}

// set overrides the reserves of the pool trading x against y.
func (b *reserveBook) set(x, y common.Address, reserveX, reserveY sdkmath.Int) {
	b.reserves[keyOf(x, y)] = map[common.Address]sdkmath.Int{x: reserveX, y: reserveY}
}

func (b *reserveBook) get(ctx context.Context, x, y common.Address) (sdkmath.Int, sdkmath.Int, error) {
	pool, ok := b.reserves[keyOf(x, y)]
	if !ok {
		reserveX, reserveY, err := b.amm.PoolReserves(ctx, x, y)
		if err != nil {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("failed to read reserves of %s/%s: %w", x.Hex(), y.Hex(), err)
		}
		b.set(x, y, reserveX, reserveY)
		return reserveX, reserveY, nil
	}
	return pool[x], pool[y], nil
}

// swap prices amountIn along the route Swap would take and applies every hop to the book.
func (b *reserveBook) swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	path, err := b.amm.SwapPath(tokenIn, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	amount := amountIn
	for i := 0; i < len(path)-1; i++ {
		in, out := path[i], path[i+1]
		reserveIn, reserveOut, err := b.get(ctx, in, out)
		if err != nil {
			return sdkmath.Int{}, err
		}
		received, err := b.quoter.QuoteOut(amount, reserveIn, reserveOut)
		if err != nil {
			return sdkmath.Int{}, err
		}
		b.set(in, out, reserveIn.Add(amount), reserveOut.Sub(received))
		amount = received
	}
	return amount, nil
}
