package pricecache

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickCacheNoSnapshotBeforeFirstUpdate(t *testing.T) {
	c := NewTickCache(30 * time.Second)
	_, err := c.Latest(time.Now())
	assert.ErrorIs(t, err, ErrNoSnapshotAvailable)
}

func TestTickCacheDiscardsNonAdvancingUpdate(t *testing.T) {
	c := NewTickCache(30 * time.Second)
	now := time.Now()

	applied := c.ApplyUpdate(Tick{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101), Timestamp: now})
	require.True(t, applied)

	applied = c.ApplyUpdate(Tick{Bid: decimal.NewFromInt(200), Ask: decimal.NewFromInt(201), Timestamp: now})
	assert.False(t, applied, "update with a non-advancing timestamp must be discarded")

	tick, err := c.Latest(now)
	require.NoError(t, err)
	assert.True(t, tick.Bid.Equal(decimal.NewFromInt(100)))
}

func TestTickCacheStaleness(t *testing.T) {
	c := NewTickCache(30 * time.Second)
	now := time.Now()
	c.ApplyUpdate(Tick{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101), Timestamp: now})

	_, err := c.Latest(now.Add(60 * time.Second))
	var staleErr *StaleSnapshotError
	require.True(t, errors.As(err, &staleErr))
	assert.Equal(t, 60*time.Second, staleErr.Age)
}

func TestTickMid(t *testing.T) {
	tick := Tick{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(200)}
	assert.True(t, tick.Mid().Equal(decimal.NewFromInt(150)))
}

func buyBook(now time.Time) OrderBookSnapshot {
	return OrderBookSnapshot{
		Asks: []OrderBookLevel{
			{Price: decimal.NewFromInt(60000), Volume: decimal.NewFromInt(1)},
			{Price: decimal.NewFromInt(70000), Volume: decimal.NewFromInt(1)},
		},
		Bids: []OrderBookLevel{
			{Price: decimal.NewFromInt(50000), Volume: decimal.NewFromInt(1)},
			{Price: decimal.NewFromInt(40000), Volume: decimal.NewFromInt(1)},
		},
		Timestamp: now,
	}
}

func TestOrderBookCacheNoSnapshot(t *testing.T) {
	c := NewOrderBookCache(30 * time.Second)
	_, err := c.CentsFromSatsForBuy(money.SatsFromInt64(1), time.Now())
	assert.ErrorIs(t, err, ErrNoSnapshotAvailable)
}

func TestCentsFromSatsForBuyExactLevel(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	cents, err := c.CentsFromSatsForBuy(money.SatsFromInt64(money.SatsPerBtc), now)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000_000), cents.Int64())
}

func TestCentsFromSatsForBuyPartialLevel(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	oneAndHalfBtc := money.SatsFromInt64(money.SatsPerBtc + money.SatsPerBtc/2)
	cents, err := c.CentsFromSatsForBuy(oneAndHalfBtc, now)
	require.NoError(t, err)
	assert.Equal(t, int64(9_500_000), cents.Int64())
}

func TestCentsFromSatsForBuyInsufficientDepth(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	tooMany := money.SatsFromInt64(3 * money.SatsPerBtc)
	_, err := c.CentsFromSatsForBuy(tooMany, now)
	assert.ErrorIs(t, err, ErrInsufficientDepth)
}

func TestCentsFromSatsForBuyZeroIsZero(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	cents, err := c.CentsFromSatsForBuy(money.SatsFromInt64(0), now)
	require.NoError(t, err)
	assert.True(t, cents.IsZero())
}

func TestSatsFromCentsForSellExactLevel(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	sats, err := c.SatsFromCentsForSell(money.UsdCentsFromInt64(5_000_000), now)
	require.NoError(t, err)
	assert.Equal(t, money.SatsPerBtc, sats.Int64())
}

func TestSatsFromCentsForSellPartialLevel(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	sats, err := c.SatsFromCentsForSell(money.UsdCentsFromInt64(7_000_000), now)
	require.NoError(t, err)
	assert.Equal(t, money.SatsPerBtc+money.SatsPerBtc/2, sats.Int64())
}

func TestOrderBookCacheOutdated(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	_, err := c.CentsFromSatsForBuy(money.SatsFromInt64(1), now.Add(time.Minute))
	var outdatedErr *OutdatedSnapshotError
	require.True(t, errors.As(err, &outdatedErr))
}

func TestOrderBookCacheDiscardsNonAdvancingUpdate(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))
	assert.False(t, c.ApplyUpdate(buyBook(now)))
}

func TestMidPrice(t *testing.T) {
	now := time.Now()
	c := NewOrderBookCache(30 * time.Second)
	require.True(t, c.ApplyUpdate(buyBook(now)))

	mid, err := c.MidPrice(now)
	require.NoError(t, err)
	assert.True(t, mid.Equal(decimal.NewFromInt(55000)))
}
