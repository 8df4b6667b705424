// Package pricecache holds the freshness-aware tick and order-book caches
// that sit between PriceFeeds and PriceMixer. Each cache guards a single
// pointer swap behind a mutex, matching the teacher's database connection
// wrapper's "one conversion chokepoint" shape: readers see either the
// previous snapshot or the new one, never a partial write.
package pricecache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/money"
)

// ErrNoSnapshotAvailable is returned when a cache is queried before any
// update has ever been applied.
var ErrNoSnapshotAvailable = errors.New("pricecache: no snapshot available")

// ErrInsufficientDepth is returned when an order-book walk exhausts every
// level without covering the requested notional.
var ErrInsufficientDepth = errors.New("pricecache: insufficient depth")

// StaleSnapshotError reports a tick cache hit older than its staleness
// threshold.
type StaleSnapshotError struct{ Age time.Duration }

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("pricecache: stale snapshot (age %s)", e.Age)
}

// OutdatedSnapshotError reports an order-book cache hit older than its
// staleness threshold.
type OutdatedSnapshotError struct{ Age time.Duration }

func (e *OutdatedSnapshotError) Error() string {
	return fmt.Sprintf("pricecache: outdated snapshot (age %s)", e.Age)
}

// DefaultStaleAfter is the default staleness threshold for both caches.
const DefaultStaleAfter = 30 * time.Second

// Tick is a single venue's most recent bid/ask/timestamp observation.
type Tick struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// Mid returns the midpoint between bid and ask.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// TickCache holds the most recent Tick for one exchange. Updates that do
// not strictly advance the timestamp are discarded (freshness
// monotonicity).
type TickCache struct {
	mu         sync.RWMutex
	latest     *Tick
	staleAfter time.Duration
}

// NewTickCache constructs a TickCache with the given staleness threshold.
// A zero staleAfter uses DefaultStaleAfter.
func NewTickCache(staleAfter time.Duration) *TickCache {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &TickCache{staleAfter: staleAfter}
}

// ApplyUpdate overwrites the cached tick if its timestamp strictly advances
// the previous one. Returns true if the update was applied.
func (c *TickCache) ApplyUpdate(tick Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest != nil && !tick.Timestamp.After(c.latest.Timestamp) {
		return false
	}
	t := tick
	c.latest = &t
	return true
}

// Latest returns the cached tick, failing if none has ever been applied or
// if the cached tick is older than the staleness threshold as of now.
func (c *TickCache) Latest(now time.Time) (Tick, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Tick{}, ErrNoSnapshotAvailable
	}
	age := now.Sub(c.latest.Timestamp)
	if age > c.staleAfter {
		return Tick{}, &StaleSnapshotError{Age: age}
	}
	return *c.latest, nil
}

// Age reports how long ago the cached tick was observed, ignoring the
// staleness threshold. Used by metrics reporting rather than by pricing
// code, which goes through Latest instead.
func (c *TickCache) Age(now time.Time) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return 0, ErrNoSnapshotAvailable
	}
	return now.Sub(c.latest.Timestamp), nil
}

// OrderBookLevel is one price/volume rung of an order-book ladder. Price is
// quoted in USD per whole bitcoin; Volume is in whole bitcoin (both
// arbitrary precision, matching the decimal representation the book
// arrives over the wire in before any sats/cents conversion happens).
type OrderBookLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBookSnapshot is a full two-sided order book at one instant. Bids
// are ordered descending by price, asks ascending.
type OrderBookSnapshot struct {
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}

// OrderBookCache holds the most recent full OrderBookSnapshot for one
// exchange and answers notional-parameterized buy/sell conversions by
// walking the relevant side.
type OrderBookCache struct {
	mu         sync.RWMutex
	latest     *OrderBookSnapshot
	staleAfter time.Duration
}

// NewOrderBookCache constructs an OrderBookCache with the given staleness
// threshold. A zero staleAfter uses DefaultStaleAfter.
func NewOrderBookCache(staleAfter time.Duration) *OrderBookCache {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &OrderBookCache{staleAfter: staleAfter}
}

// ApplyUpdate replaces the cached snapshot atomically if its timestamp
// strictly advances the previous one.
func (c *OrderBookCache) ApplyUpdate(snap OrderBookSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest != nil && !snap.Timestamp.After(c.latest.Timestamp) {
		return false
	}
	s := snap
	c.latest = &s
	return true
}

// latestSnapshot returns the cached snapshot, enforcing freshness.
func (c *OrderBookCache) latestSnapshot(now time.Time) (*OrderBookSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nil, ErrNoSnapshotAvailable
	}
	age := now.Sub(c.latest.Timestamp)
	if age > c.staleAfter {
		return nil, &OutdatedSnapshotError{Age: age}
	}
	return c.latest, nil
}

// Age reports how long ago the cached snapshot was observed, ignoring the
// staleness threshold. Used by metrics reporting rather than by pricing
// code, which goes through the internal conversions instead.
func (c *OrderBookCache) Age(now time.Time) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return 0, ErrNoSnapshotAvailable
	}
	return now.Sub(c.latest.Timestamp), nil
}

var satsPerBtc = decimal.NewFromInt(money.SatsPerBtc)
var centsPerUsd = decimal.NewFromInt(money.CentsPerUsd)

// walk consumes levels in order until targetBtc bitcoin has been accounted
// for, returning the total USD notional paid/received across the consumed
// levels. Partial levels are consumed proportionally.
func walk(levels []OrderBookLevel, targetBtc decimal.Decimal) (decimal.Decimal, error) {
	remaining := targetBtc
	totalUsd := decimal.Zero

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if lvl.Volume.GreaterThanOrEqual(remaining) {
			totalUsd = totalUsd.Add(lvl.Price.Mul(remaining))
			remaining = decimal.Zero
			break
		}
		totalUsd = totalUsd.Add(lvl.Price.Mul(lvl.Volume))
		remaining = remaining.Sub(lvl.Volume)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return decimal.Zero, ErrInsufficientDepth
	}
	return totalUsd, nil
}

// CentsFromSatsForBuy walks the ask side to price selling n sats for USD
// cents, volume-weighted across the levels consumed.
func (c *OrderBookCache) CentsFromSatsForBuy(n money.Sats, now time.Time) (money.UsdCents, error) {
	if n.IsZero() {
		return money.UsdCentsFromInt64(0), nil
	}
	snap, err := c.latestSnapshot(now)
	if err != nil {
		return money.UsdCents{}, err
	}
	targetBtc := n.Decimal().Div(satsPerBtc)
	usd, err := walk(snap.Asks, targetBtc)
	if err != nil {
		return money.UsdCents{}, err
	}
	return money.UsdCentsFromDecimal(usd.Mul(centsPerUsd)), nil
}

// SatsFromCentsForSell walks the bid side to price selling c USD cents for
// sats, volume-weighted across the levels consumed.
func (c *OrderBookCache) SatsFromCentsForSell(cents money.UsdCents, now time.Time) (money.Sats, error) {
	if cents.IsZero() {
		return money.SatsFromInt64(0), nil
	}
	snap, err := c.latestSnapshot(now)
	if err != nil {
		return money.Sats{}, err
	}
	targetUsd := cents.Decimal().Div(centsPerUsd)
	btc, err := walkInverse(snap.Bids, targetUsd)
	if err != nil {
		return money.Sats{}, err
	}
	return money.SatsFromDecimal(btc.Mul(satsPerBtc)), nil
}

// CentsFromSatsForSell walks the bid side to price buying USD cents with n
// sats (the counterparty leg of SatsFromCentsForSell's direction).
func (c *OrderBookCache) CentsFromSatsForSell(n money.Sats, now time.Time) (money.UsdCents, error) {
	if n.IsZero() {
		return money.UsdCentsFromInt64(0), nil
	}
	snap, err := c.latestSnapshot(now)
	if err != nil {
		return money.UsdCents{}, err
	}
	targetBtc := n.Decimal().Div(satsPerBtc)
	usd, err := walk(snap.Bids, targetBtc)
	if err != nil {
		return money.UsdCents{}, err
	}
	return money.UsdCentsFromDecimal(usd.Mul(centsPerUsd)), nil
}

// SatsFromCentsForBuy walks the ask side to price buying sats with c USD
// cents (the counterparty leg of CentsFromSatsForBuy's direction).
func (c *OrderBookCache) SatsFromCentsForBuy(cents money.UsdCents, now time.Time) (money.Sats, error) {
	if cents.IsZero() {
		return money.SatsFromInt64(0), nil
	}
	snap, err := c.latestSnapshot(now)
	if err != nil {
		return money.Sats{}, err
	}
	targetUsd := cents.Decimal().Div(centsPerUsd)
	btc, err := walkInverse(snap.Asks, targetUsd)
	if err != nil {
		return money.Sats{}, err
	}
	return money.SatsFromDecimal(btc.Mul(satsPerBtc)), nil
}

// walkInverse consumes levels in order until targetUsd USD notional has
// been accounted for, returning the total bitcoin volume consumed.
func walkInverse(levels []OrderBookLevel, targetUsd decimal.Decimal) (decimal.Decimal, error) {
	remaining := targetUsd
	totalBtc := decimal.Zero

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		levelUsd := lvl.Price.Mul(lvl.Volume)
		if levelUsd.GreaterThanOrEqual(remaining) {
			totalBtc = totalBtc.Add(remaining.Div(lvl.Price))
			remaining = decimal.Zero
			break
		}
		totalBtc = totalBtc.Add(lvl.Volume)
		remaining = remaining.Sub(levelUsd)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return decimal.Zero, ErrInsufficientDepth
	}
	return totalBtc, nil
}

// MidPrice returns the midpoint of the best bid and best ask, in USD per
// whole bitcoin.
func (c *OrderBookCache) MidPrice(now time.Time) (decimal.Decimal, error) {
	snap, err := c.latestSnapshot(now)
	if err != nil {
		return decimal.Zero, err
	}
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return decimal.Zero, ErrInsufficientDepth
	}
	return snap.Bids[0].Price.Add(snap.Asks[0].Price).Div(decimal.NewFromInt(2)), nil
}
