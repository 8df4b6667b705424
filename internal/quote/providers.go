package quote

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stablesats/dealer/internal/pricecache"
)

var satsPerBtc = decimal.NewFromInt(money.SatsPerBtc)

// Provider is the capability set a pricing venue must expose beyond the
// bare pricemixer.ExchangeProvider.ExchangeID: the four directional
// conversions plus a per-sat mid price. The quote service prices through
// the four conversions only: a quote's spread is the fee-adjusted amount
// minus the unadjusted side-based amount, and the mid price plays no part
// in it (the hedging loop reads the mid price). The closures passed to
// pricemixer.Mixer.Apply type-assert a registered provider to this
// interface (providerOf in service.go), since the mixer's own interface
// is intentionally minimal.
type Provider interface {
	ExchangeID() string
	CentsFromSatsForBuy(n money.Sats, now time.Time) (money.UsdCents, error)
	CentsFromSatsForSell(n money.Sats, now time.Time) (money.UsdCents, error)
	SatsFromCentsForBuy(c money.UsdCents, now time.Time) (money.Sats, error)
	SatsFromCentsForSell(c money.UsdCents, now time.Time) (money.Sats, error)
	MidPriceOfOneSat(now time.Time) (decimal.Decimal, error)
}

// BookProvider adapts a pricecache.OrderBookCache (full order-book depth,
// e.g. OKEX) to Provider. Every conversion delegates straight through to
// the cache's own volume-weighted walk.
type BookProvider struct {
	id    string
	cache *pricecache.OrderBookCache
}

// NewBookProvider constructs a BookProvider for the venue identified by id.
func NewBookProvider(id string, cache *pricecache.OrderBookCache) *BookProvider {
	return &BookProvider{id: id, cache: cache}
}

func (p *BookProvider) ExchangeID() string { return p.id }

func (p *BookProvider) CentsFromSatsForBuy(n money.Sats, now time.Time) (money.UsdCents, error) {
	return p.cache.CentsFromSatsForBuy(n, now)
}

func (p *BookProvider) CentsFromSatsForSell(n money.Sats, now time.Time) (money.UsdCents, error) {
	return p.cache.CentsFromSatsForSell(n, now)
}

func (p *BookProvider) SatsFromCentsForBuy(c money.UsdCents, now time.Time) (money.Sats, error) {
	return p.cache.SatsFromCentsForBuy(c, now)
}

func (p *BookProvider) SatsFromCentsForSell(c money.UsdCents, now time.Time) (money.Sats, error) {
	return p.cache.SatsFromCentsForSell(c, now)
}

func (p *BookProvider) MidPriceOfOneSat(now time.Time) (decimal.Decimal, error) {
	mid, err := p.cache.MidPrice(now)
	if err != nil {
		return decimal.Zero, err
	}
	return mid.Div(satsPerBtc), nil
}

// TickProvider adapts a pricecache.TickCache (flat bid/ask, no book depth,
// e.g. Bitfinex) to Provider. Every conversion is a flat multiplication
// against the latest tick, with no volume-weighting across levels.
type TickProvider struct {
	id    string
	cache *pricecache.TickCache
}

// NewTickProvider constructs a TickProvider for the venue identified by
// id.
func NewTickProvider(id string, cache *pricecache.TickCache) *TickProvider {
	return &TickProvider{id: id, cache: cache}
}

func (p *TickProvider) ExchangeID() string { return p.id }

func (p *TickProvider) CentsFromSatsForBuy(n money.Sats, now time.Time) (money.UsdCents, error) {
	tick, err := p.cache.Latest(now)
	if err != nil {
		return money.UsdCents{}, err
	}
	btc := n.Decimal().Div(satsPerBtc)
	return money.UsdCentsFromDecimal(btc.Mul(tick.Ask).Mul(centsPerUsd)), nil
}

func (p *TickProvider) CentsFromSatsForSell(n money.Sats, now time.Time) (money.UsdCents, error) {
	tick, err := p.cache.Latest(now)
	if err != nil {
		return money.UsdCents{}, err
	}
	btc := n.Decimal().Div(satsPerBtc)
	return money.UsdCentsFromDecimal(btc.Mul(tick.Bid).Mul(centsPerUsd)), nil
}

func (p *TickProvider) SatsFromCentsForBuy(c money.UsdCents, now time.Time) (money.Sats, error) {
	tick, err := p.cache.Latest(now)
	if err != nil {
		return money.Sats{}, err
	}
	usd := c.Decimal().Div(centsPerUsd)
	return money.SatsFromDecimal(usd.Div(tick.Ask).Mul(satsPerBtc)), nil
}

func (p *TickProvider) SatsFromCentsForSell(c money.UsdCents, now time.Time) (money.Sats, error) {
	tick, err := p.cache.Latest(now)
	if err != nil {
		return money.Sats{}, err
	}
	usd := c.Decimal().Div(centsPerUsd)
	return money.SatsFromDecimal(usd.Div(tick.Bid).Mul(satsPerBtc)), nil
}

func (p *TickProvider) MidPriceOfOneSat(now time.Time) (decimal.Decimal, error) {
	tick, err := p.cache.Latest(now)
	if err != nil {
		return decimal.Zero, err
	}
	return tick.Mid().Div(satsPerBtc), nil
}

var centsPerUsd = decimal.NewFromInt(money.CentsPerUsd)
