package evm

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

func (a *Adapter) BalanceOf(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	return a.balanceOf(ctx, token, a.inst.Self)
}

func (a *Adapter) balanceOf(ctx context.Context, token, holder common.Address) (sdkmath.Int, error) {
	out, err := a.view(ctx, erc20ABI, token, "balanceOf", holder)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return uintAt(out, 0)
}

func (a *Adapter) Transfer(ctx context.Context, token, to common.Address, amount sdkmath.Int) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	return a.send(ctx, erc20ABI, token, "transfer", to, amount.BigInt())
}

func (a *Adapter) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := a.view(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals is %T", ErrUnexpectedABI, out[0])
	}
	return d, nil
}

func (a *Adapter) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := a.view(ctx, erc20ABI, token, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: symbol is %T", ErrUnexpectedABI, out[0])
	}
	return s, nil
}

// ensureAllowance approves spender for the maximum amount when the current allowance
// does not cover amount.
func (a *Adapter) ensureAllowance(ctx context.Context, token, spender common.Address, amount sdkmath.Int) error {
	out, err := a.view(ctx, erc20ABI, token, "allowance", a.inst.Self, spender)
	if err != nil {
		return err
	}
	current, err := uintAt(out, 0)
	if err != nil {
		return err
	}
	if current.GTE(amount) {
		return nil
	}
	evmLogger.Info().
		Str("instance", a.inst.ID).
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Msg("Approving spender")
	return a.send(ctx, erc20ABI, token, "approve", spender, new(big.Int).Set(math.MaxBig256))
}

// balances reads the Self balance of each token in order.
func (a *Adapter) balances(ctx context.Context, tokens ...common.Address) ([]sdkmath.Int, error) {
	out := make([]sdkmath.Int, len(tokens))
	for i, token := range tokens {
		b, err := a.BalanceOf(ctx, token)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// received returns after-before, floored at zero.
func received(before, after sdkmath.Int) sdkmath.Int {
	if after.LT(before) {
		return sdkmath.ZeroInt()
	}
	return after.Sub(before)
}
