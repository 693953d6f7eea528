/*
This file contains common utility functions for converting between on-chain integer amounts
and human-readable decimal units.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/types"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
)

// maxPrecision bounds token decimals accepted for display conversions.
const maxPrecision = 36

func checkPrecision(precision int) error {
	if precision < 0 || precision > maxPrecision {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	return nil
}

// ToDecimal converts an integer amount in smallest units to token units.
func ToDecimal(amount sdkmath.Int, precision int) (decimal.Decimal, error) {
	if err := checkPrecision(precision); err != nil {
		return decimal.Zero, err
	}
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	return decimal.NewFromBigInt(amount.BigInt(), -int32(precision)), nil
}

// FromDecimal converts token units to smallest units, truncating anything below one unit.
func FromDecimal(amount decimal.Decimal, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return sdkmath.NewIntFromBigInt(amount.Shift(int32(precision)).Truncate(0).BigInt()), nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	d, err := ToDecimal(amount, precision)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, ErrAmountNegative
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// Float64ToSDKInt converts a float64 to SDK Int with proper precision handling
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return FromDecimal(decimal.NewFromFloat(amount), precision)
}

// FormatAmount renders amount in token units rounded to places decimals.
func FormatAmount(amount sdkmath.Int, precision int, places int32) string {
	d, err := ToDecimal(amount, precision)
	if err != nil {
		return amount.String()
	}
	return d.StringFixed(places)
}

// RatioToPercent turns a performance ratio scaled by RatioPrecision into a percentage change,
// e.g. 10551 -> 5.51.
func RatioToPercent(ratio sdkmath.Int) decimal.Decimal {
	if ratio.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(ratio.BigInt(), 0).
		Sub(decimal.NewFromInt(types.RatioPrecision)).
		Div(decimal.NewFromInt(types.RatioPrecision / 100))
}
