package quote

import "github.com/shopspring/decimal"

// FeeConfig holds the fee rates the dealer charges, expressed as fractions
// (0.001 = 10 basis points). BaseRate applies to every quote; ImmediateRate
// is added on top for quotes that execute right away, DelayedRate for
// quotes that sit for a future settlement window.
type FeeConfig struct {
	BaseRate      decimal.Decimal
	ImmediateRate decimal.Decimal
	DelayedRate   decimal.Decimal
}

// FeeCalculator applies the configured rate to a conversion amount,
// rounding directionally so the house is never short: buy-side outputs
// round up, sell-side outputs round down.
type FeeCalculator struct {
	cfg FeeConfig
}

// NewFeeCalculator constructs a FeeCalculator from cfg.
func NewFeeCalculator(cfg FeeConfig) *FeeCalculator {
	return &FeeCalculator{cfg: cfg}
}

// rate returns the base rate plus the immediate or delayed component.
func (f *FeeCalculator) rate(immediate bool) decimal.Decimal {
	if immediate {
		return f.cfg.BaseRate.Add(f.cfg.ImmediateRate)
	}
	return f.cfg.BaseRate.Add(f.cfg.DelayedRate)
}

// IncreaseByFee scales amount up by (1 + rate). Used whenever the quoted
// amount is the side the client receives on a buy: the house must collect
// at least the fee, so the caller rounds the result up (Int64Ceil).
func (f *FeeCalculator) IncreaseByFee(amount decimal.Decimal, immediate bool) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(f.rate(immediate)))
}

// DecreaseByFee scales amount down by (1 - rate). Used whenever the quoted
// amount is the side the client receives on a sell: the caller rounds the
// result down (Int64Floor).
func (f *FeeCalculator) DecreaseByFee(amount decimal.Decimal, immediate bool) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(f.rate(immediate)))
}
