package pricemixer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id    string
	value decimal.Decimal
	err   error
}

func (p *fakeProvider) ExchangeID() string { return p.id }

func TestAddProviderRejectsNonPositiveWeight(t *testing.T) {
	m := New()
	err := m.AddProvider("okex", &fakeProvider{id: "okex"}, 0)
	assert.ErrorIs(t, err, ErrInvalidWeight)

	err = m.AddProvider("okex", &fakeProvider{id: "okex"}, -1)
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestApplyWeightedMean(t *testing.T) {
	m := New()
	a := &fakeProvider{id: "a", value: decimal.NewFromInt(100)}
	b := &fakeProvider{id: "b", value: decimal.NewFromInt(200)}
	require.NoError(t, m.AddProvider("a", a, 1.0))
	require.NoError(t, m.AddProvider("b", b, 3.0))

	result, err := m.Apply(func(p ExchangeProvider) (decimal.Decimal, error) {
		return p.(*fakeProvider).value, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 175.0, mustFloat(result), 1e-9)
}

func TestApplyTeleratesPartialFailure(t *testing.T) {
	m := New()
	ok := &fakeProvider{id: "ok", value: decimal.NewFromInt(100)}
	down := &fakeProvider{id: "down", err: errors.New("stale")}
	require.NoError(t, m.AddProvider("ok", ok, 1.0))
	require.NoError(t, m.AddProvider("down", down, 1.0))

	result, err := m.Apply(func(p ExchangeProvider) (decimal.Decimal, error) {
		fp := p.(*fakeProvider)
		if fp.err != nil {
			return decimal.Zero, fp.err
		}
		return fp.value, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, mustFloat(result), 1e-9)
}

func TestApplyReturnsFirstErrorWhenAllFail(t *testing.T) {
	m := New()
	first := &fakeProvider{id: "first", err: errors.New("first failure")}
	second := &fakeProvider{id: "second", err: errors.New("second failure")}
	require.NoError(t, m.AddProvider("first", first, 1.0))
	require.NoError(t, m.AddProvider("second", second, 1.0))

	_, err := m.Apply(func(p ExchangeProvider) (decimal.Decimal, error) {
		return decimal.Zero, p.(*fakeProvider).err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failure")
	assert.NotContains(t, err.Error(), "second failure")
}

func TestApplyNoProviders(t *testing.T) {
	m := New()
	_, err := m.Apply(func(p ExchangeProvider) (decimal.Decimal, error) {
		return decimal.Zero, nil
	})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
