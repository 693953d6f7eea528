package valuation

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/types"
)

var ratioPrecision = sdkmath.NewInt(types.RatioPrecision)

// Inputs is everything the sell-amount solver needs about the position and the pool.
type Inputs struct {
	CurrentA  sdkmath.Int
	CurrentB  sdkmath.Int
	StartingA sdkmath.Int
	StartingB sdkmath.Int
	ReserveA  sdkmath.Int
	ReserveB  sdkmath.Int
	// PrecisionA and PrecisionB are 10^decimals of each leg token.
	PrecisionA sdkmath.Int
	PrecisionB sdkmath.Int
}

// Ratios returns current/starting for each leg scaled by RatioPrecision, rounding down.
func Ratios(currentA, currentB, startingA, startingB sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if err := checkNonNegative(currentA, currentB, startingA, startingB); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	ratioA, err := mulDiv(currentA, ratioPrecision, startingA)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	ratioB, err := mulDiv(currentB, ratioPrecision, startingB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return ratioA, ratioB, nil
}

// SellAmountToBalance decides which leg to sell, and how much of it, so that after the
// swap both legs have grown by the same factor relative to what was contributed.
//
// It returns SideNone when nothing was contributed or the legs already performed equally.
// The amount is solved in two passes: the first uses the marginal price of one whole
// token, the second re-prices with the output of the first estimate to account for
// price impact.
func SellAmountToBalance(in Inputs, q Quoter) (types.Side, sdkmath.Int, error) {
	if err := checkNonNegative(in.CurrentA, in.CurrentB, in.StartingA, in.StartingB, in.ReserveA, in.ReserveB); err != nil {
		return types.SideNone, sdkmath.ZeroInt(), err
	}
	if in.StartingA.IsZero() || in.StartingB.IsZero() {
		return types.SideNone, sdkmath.ZeroInt(), nil
	}

	ratioA, ratioB, err := Ratios(in.CurrentA, in.CurrentB, in.StartingA, in.StartingB)
	if err != nil {
		return types.SideNone, sdkmath.ZeroInt(), err
	}
	if ratioA.Equal(ratioB) {
		return types.SideNone, sdkmath.ZeroInt(), nil
	}

	a := position{current: in.CurrentA, starting: in.StartingA, reserve: in.ReserveA, precision: in.PrecisionA}
	b := position{current: in.CurrentB, starting: in.StartingB, reserve: in.ReserveB, precision: in.PrecisionB}

	if ratioA.GT(ratioB) {
		amount, err := solve(a, b, q)
		if err != nil {
			return types.SideNone, sdkmath.ZeroInt(), err
		}
		return types.SideA, amount, nil
	}
	amount, err := solve(b, a, q)
	if err != nil {
		return types.SideNone, sdkmath.ZeroInt(), err
	}
	return types.SideB, amount, nil
}

type position struct {
	current   sdkmath.Int
	starting  sdkmath.Int
	reserve   sdkmath.Int
	precision sdkmath.Int
}

// solve finds x such that (current0 - x)/starting0 == (current1 + out(x))/starting1.
func solve(sell, buy position, q Quoter) (sdkmath.Int, error) {
	if sell.precision.IsNil() || !sell.precision.IsPositive() {
		return sdkmath.Int{}, ErrDivideByZero
	}

	matched, err := mulDiv(sell.starting, buy.current, buy.starting)
	if err != nil {
		return sdkmath.Int{}, err
	}
	excess, err := sub(sell.current, matched)
	if err != nil {
		return sdkmath.Int{}, err
	}
	numerator, err := mul(excess, sell.precision)
	if err != nil {
		return sdkmath.Int{}, err
	}

	rate, err := q.QuoteOut(sell.precision, sell.reserve, buy.reserve)
	if err != nil {
		return sdkmath.Int{}, err
	}
	amount, err := divideAtRate(numerator, rate, sell, buy)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amount.IsZero() {
		return amount, nil
	}

	out, err := q.QuoteOut(amount, sell.reserve, buy.reserve)
	if err != nil {
		return sdkmath.Int{}, err
	}
	rate, err = mulDiv(out, sell.precision, amount)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return divideAtRate(numerator, rate, sell, buy)
}

// divideAtRate returns numerator / (precision + startingSell*rate/startingBuy).
func divideAtRate(numerator, rate sdkmath.Int, sell, buy position) (sdkmath.Int, error) {
	scaled, err := mulDiv(sell.starting, rate, buy.starting)
	if err != nil {
		return sdkmath.Int{}, err
	}
	denominator, err := add(sell.precision, scaled)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return quo(numerator, denominator)
}
