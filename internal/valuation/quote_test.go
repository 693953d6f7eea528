package valuation

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantProduct_QuoteOut(t *testing.T) {
	tests := []struct {
		name       string
		feeBps     uint32
		amountIn   int64
		reserveIn  int64
		reserveOut int64
		want       int64
	}{
		{name: "default fee", feeBps: DefaultFeeBps, amountIn: 1000, reserveIn: 10000, reserveOut: 10000, want: 906},
		{name: "no fee", feeBps: 0, amountIn: 1000, reserveIn: 10000, reserveOut: 10000, want: 909},
		{name: "tiny input rounds to zero", feeBps: DefaultFeeBps, amountIn: 1, reserveIn: 10000, reserveOut: 10000, want: 0},
		{name: "skewed pool", feeBps: DefaultFeeBps, amountIn: 500, reserveIn: 2000, reserveOut: 8000, want: 1596},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewConstantProduct(tt.feeBps).QuoteOut(
				sdkmath.NewInt(tt.amountIn), sdkmath.NewInt(tt.reserveIn), sdkmath.NewInt(tt.reserveOut))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Int64())
		})
	}
}

func TestConstantProduct_Errors(t *testing.T) {
	q := NewConstantProduct(DefaultFeeBps)

	_, err := q.QuoteOut(sdkmath.ZeroInt(), sdkmath.NewInt(10), sdkmath.NewInt(10))
	assert.ErrorIs(t, err, ErrInsufficientInput)

	_, err = q.QuoteOut(sdkmath.NewInt(10), sdkmath.ZeroInt(), sdkmath.NewInt(10))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 250))
	_, err = q.QuoteOut(huge, huge, huge)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}
