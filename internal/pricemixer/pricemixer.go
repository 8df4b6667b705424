// Package pricemixer fuses a conversion across multiple exchange
// providers, tolerating partial unavailability but never silently hiding
// a total one.
package pricemixer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// ErrNoProviders is returned by Apply when the mixer has no registered
// providers at all.
var ErrNoProviders = errors.New("pricemixer: no providers registered")

// ErrInvalidWeight is returned by AddProvider when weight is not strictly
// positive.
var ErrInvalidWeight = errors.New("pricemixer: weight must be > 0")

// ExchangeProvider is the capability set a mixer entry exposes. Concrete
// implementations wrap either a tick cache or an order-book cache.
type ExchangeProvider interface {
	ExchangeID() string
}

type registration struct {
	id       string
	provider ExchangeProvider
	weight   float64
}

// Mixer holds a set of weighted providers and fuses conversions across
// them via a caller-supplied closure.
type Mixer struct {
	entries []registration
}

// New constructs an empty Mixer.
func New() *Mixer {
	return &Mixer{}
}

// AddProvider registers a provider under id with the given weight. Weight
// must be strictly positive. Registration order is preserved and is the
// tie-break order used when every provider fails.
func (m *Mixer) AddProvider(id string, provider ExchangeProvider, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("%w: %s got %v", ErrInvalidWeight, id, weight)
	}
	m.entries = append(m.entries, registration{id: id, provider: provider, weight: weight})
	return nil
}

// Apply calls f on every registered provider, discards providers whose
// call fails, and returns the weight-normalized mean of the surviving
// results. If every provider fails, Apply returns the first error
// encountered in registration order (not an aggregate error), so total
// outage is never silently treated as a clean zero result.
func (m *Mixer) Apply(f func(ExchangeProvider) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if len(m.entries) == 0 {
		return decimal.Zero, ErrNoProviders
	}

	var values []float64
	var weights []float64
	var firstErr error

	for _, e := range m.entries {
		v, err := f(e.provider)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("provider %s: %w", e.id, err)
			}
			continue
		}
		f64, _ := v.Float64()
		values = append(values, f64)
		weights = append(weights, e.weight)
	}

	if len(values) == 0 {
		return decimal.Zero, firstErr
	}

	mean := stat.Mean(values, weights)
	return decimal.NewFromFloat(mean), nil
}
