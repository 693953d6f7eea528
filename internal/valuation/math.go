/*

Checked integer arithmetic for the valuation engine. Amounts are bounded to
256 bits; anything larger is reported as an overflow instead of wrapping.

*/

package valuation

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrDivideByZero          = errors.New("division by zero")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrNegativeAmount        = errors.New("amount is negative")
	ErrInsufficientInput     = errors.New("insufficient input amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

func mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.Int{}, errors.Join(ErrArithmeticOverflow, err)
	}
	return r, nil
}

func add(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, errors.Join(ErrArithmeticOverflow, err)
	}
	return r, nil
}

// sub rejects results below zero.
func sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.LT(b) {
		return sdkmath.Int{}, errors.Join(ErrArithmeticOverflow, errors.New("subtraction underflow"))
	}
	return a.Sub(b), nil
}

// quo is floor division for non-negative operands.
func quo(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.Int{}, ErrDivideByZero
	}
	return a.Quo(b), nil
}

// mulDiv computes a*b/c with the intermediate product checked.
func mulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	p, err := mul(a, b)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return quo(p, c)
}

func checkNonNegative(values ...sdkmath.Int) error {
	for _, v := range values {
		if v.IsNil() || v.IsNegative() {
			return ErrNegativeAmount
		}
	}
	return nil
}

// Add is the checked addition used by callers that accumulate amounts.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	return add(a, b)
}

// Sub is the checked subtraction used by callers that spend amounts.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	return sub(a, b)
}

// MulDiv is the checked a*b/c used for pro-rata share valuation.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	return mulDiv(a, b, c)
}
