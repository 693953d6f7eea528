package valuation

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
)

// DefaultFeeBps is the 0.3% swap fee of UniswapV2-style pools.
const DefaultFeeBps = 30

const feeScale = 10000

// Quoter returns the output of a swap against a constant-product pool with the given reserves.
type Quoter interface {
	QuoteOut(amountIn, reserveIn, reserveOut sdkmath.Int) (sdkmath.Int, error)
}

// ConstantProduct is the x*y=k output formula with an input-side fee.
type ConstantProduct struct {
	FeeBps uint32
}

// NewConstantProduct returns a quoter for a pool charging feeBps on the input.
func NewConstantProduct(feeBps uint32) ConstantProduct {
	return ConstantProduct{FeeBps: feeBps}
}

// QuoteOut computes amountIn*(1-fee)*reserveOut / (reserveIn + amountIn*(1-fee)),
// rounding down, using 256-bit words with explicit overflow detection.
func (c ConstantProduct) QuoteOut(amountIn, reserveIn, reserveOut sdkmath.Int) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.Int{}, ErrInsufficientInput
	}
	if reserveIn.IsNil() || reserveOut.IsNil() || !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	if c.FeeBps >= feeScale {
		return sdkmath.Int{}, errors.New("fee must be below 10000 bps")
	}

	in, err := toWord(amountIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	rIn, err := toWord(reserveIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	rOut, err := toWord(reserveOut)
	if err != nil {
		return sdkmath.Int{}, err
	}

	inWithFee, overflow := new(uint256.Int).MulOverflow(in, uint256.NewInt(uint64(feeScale-c.FeeBps)))
	if overflow {
		return sdkmath.Int{}, ErrArithmeticOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inWithFee, rOut)
	if overflow {
		return sdkmath.Int{}, ErrArithmeticOverflow
	}
	scaledReserve, overflow := new(uint256.Int).MulOverflow(rIn, uint256.NewInt(feeScale))
	if overflow {
		return sdkmath.Int{}, ErrArithmeticOverflow
	}
	denominator, overflow := new(uint256.Int).AddOverflow(scaledReserve, inWithFee)
	if overflow {
		return sdkmath.Int{}, ErrArithmeticOverflow
	}

	out := new(uint256.Int).Div(numerator, denominator)
	return sdkmath.NewIntFromBigInt(out.ToBig()), nil
}

func toWord(v sdkmath.Int) (*uint256.Int, error) {
	w, overflow := uint256.FromBig(v.BigInt())
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return w, nil
}
