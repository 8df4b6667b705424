// Package money defines the two fixed-point currency units the dealer
// moves between: satoshis and US cents. Both are backed internally by
// decimal.Decimal so intermediate fee and price math never loses
// precision to floating point, but every public boundary truncates to a
// plain integer.
package money

import "github.com/shopspring/decimal"

// Sats is an integer-valued quantity of Bitcoin satoshis, kept as a
// decimal internally to preserve intermediate rounding.
type Sats struct {
	amount decimal.Decimal
}

// UsdCents is an integer-valued quantity of US cents, kept as a decimal
// internally to preserve intermediate rounding.
type UsdCents struct {
	amount decimal.Decimal
}

// SatsFromInt64 builds a Sats from a whole number of satoshis.
func SatsFromInt64(v int64) Sats {
	return Sats{amount: decimal.NewFromInt(v)}
}

// SatsFromDecimal wraps an already-computed decimal amount of satoshis.
// Used internally by pricing code that carries fractional sats through
// intermediate steps (e.g. partial order-book level consumption).
func SatsFromDecimal(d decimal.Decimal) Sats {
	return Sats{amount: d}
}

// SatsFromString parses a decimal string into a Sats, for round-tripping
// through storage layers that persist amounts as text.
func SatsFromString(s string) (Sats, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Sats{}, err
	}
	return Sats{amount: d}, nil
}

// Decimal returns the underlying high-precision amount.
func (s Sats) Decimal() decimal.Decimal { return s.amount }

// Int64 truncates to the nearest whole satoshi towards zero. Callers that
// need directional rounding should round the decimal before calling this.
func (s Sats) Int64() int64 { return s.amount.Truncate(0).IntPart() }

// Int64Ceil rounds up to the nearest whole satoshi. Used for buy-side fee
// application, the same asymmetry UsdCents.Int64Ceil applies.
func (s Sats) Int64Ceil() int64 { return s.amount.Ceil().IntPart() }

// Int64Floor rounds down to the nearest whole satoshi. Used for sell-side
// fee application.
func (s Sats) Int64Floor() int64 { return s.amount.Floor().IntPart() }

// IsZero reports whether the amount is exactly zero.
func (s Sats) IsZero() bool { return s.amount.IsZero() }

// IsNegative reports whether the amount is strictly less than zero.
func (s Sats) IsNegative() bool { return s.amount.IsNegative() }

// Add returns s + o.
func (s Sats) Add(o Sats) Sats { return Sats{amount: s.amount.Add(o.amount)} }

// Sub returns s - o.
func (s Sats) Sub(o Sats) Sats { return Sats{amount: s.amount.Sub(o.amount)} }

// Cmp compares s to o: -1, 0, or 1.
func (s Sats) Cmp(o Sats) int { return s.amount.Cmp(o.amount) }

// UsdCentsFromInt64 builds a UsdCents from a whole number of cents.
func UsdCentsFromInt64(v int64) UsdCents {
	return UsdCents{amount: decimal.NewFromInt(v)}
}

// UsdCentsFromDecimal wraps an already-computed decimal amount of cents.
func UsdCentsFromDecimal(d decimal.Decimal) UsdCents {
	return UsdCents{amount: d}
}

// UsdCentsFromString parses a decimal string into a UsdCents, for
// round-tripping through storage layers that persist amounts as text.
func UsdCentsFromString(s string) (UsdCents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return UsdCents{}, err
	}
	return UsdCents{amount: d}, nil
}

// Decimal returns the underlying high-precision amount.
func (c UsdCents) Decimal() decimal.Decimal { return c.amount }

// Int64Ceil rounds up to the nearest whole cent and returns it. Used for
// buy-side fee application, which must never round in the house's favor
// against the user paying more sats than quoted.
func (c UsdCents) Int64Ceil() int64 { return c.amount.Ceil().IntPart() }

// Int64Floor rounds down to the nearest whole cent. Used for sell-side
// fee application.
func (c UsdCents) Int64Floor() int64 { return c.amount.Floor().IntPart() }

// Int64 truncates towards zero without directional rounding, for
// contexts (ledger balances, mid-price quotes) where no fee asymmetry
// applies.
func (c UsdCents) Int64() int64 { return c.amount.Truncate(0).IntPart() }

// IsZero reports whether the amount is exactly zero.
func (c UsdCents) IsZero() bool { return c.amount.IsZero() }

// IsNegative reports whether the amount is strictly less than zero.
func (c UsdCents) IsNegative() bool { return c.amount.IsNegative() }

// Add returns c + o.
func (c UsdCents) Add(o UsdCents) UsdCents { return UsdCents{amount: c.amount.Add(o.amount)} }

// Sub returns c - o.
func (c UsdCents) Sub(o UsdCents) UsdCents { return UsdCents{amount: c.amount.Sub(o.amount)} }

// Cmp compares c to o: -1, 0, or 1.
func (c UsdCents) Cmp(o UsdCents) int { return c.amount.Cmp(o.amount) }

// SatsPerBtc is the number of satoshis in one bitcoin.
const SatsPerBtc int64 = 100_000_000

// CentsPerUsd is the number of cents in one US dollar.
const CentsPerUsd int64 = 100
