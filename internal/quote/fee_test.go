package quote

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testFeeCalc() *FeeCalculator {
	return NewFeeCalculator(FeeConfig{
		BaseRate:      decimal.NewFromFloat(0.001),
		ImmediateRate: decimal.NewFromFloat(0.0005),
		DelayedRate:   decimal.NewFromFloat(0.0002),
	})
}

func TestFeeIsZeroAtZeroAmount(t *testing.T) {
	f := testFeeCalc()
	require.True(t, f.IncreaseByFee(decimal.Zero, true).IsZero())
	require.True(t, f.IncreaseByFee(decimal.Zero, false).IsZero())
	require.True(t, f.DecreaseByFee(decimal.Zero, true).IsZero())
	require.True(t, f.DecreaseByFee(decimal.Zero, false).IsZero())
}

func TestIncreaseByFeeExceedsInput(t *testing.T) {
	f := testFeeCalc()
	amount := decimal.NewFromInt(10_000)
	require.True(t, f.IncreaseByFee(amount, true).GreaterThan(amount))
	require.True(t, f.IncreaseByFee(amount, true).GreaterThan(f.IncreaseByFee(amount, false)), "immediate rate is higher than delayed")
}

func TestDecreaseByFeeUndercutsInput(t *testing.T) {
	f := testFeeCalc()
	amount := decimal.NewFromInt(10_000)
	require.True(t, f.DecreaseByFee(amount, true).LessThan(amount))
	require.True(t, f.DecreaseByFee(amount, true).LessThan(f.DecreaseByFee(amount, false)), "immediate rate cuts deeper than delayed")
}
