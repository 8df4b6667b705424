package quote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/database"
	"github.com/stablesats/dealer/internal/ledger"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stablesats/dealer/internal/pricemixer"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a flat-rate conversion used in place of a real
// OrderBookCache/TickCache so service tests don't depend on pricecache
// freshness windows.
type fakeProvider struct {
	id          string
	centsPerSat decimal.Decimal
}

func (p *fakeProvider) ExchangeID() string { return p.id }

func (p *fakeProvider) CentsFromSatsForBuy(n money.Sats, now time.Time) (money.UsdCents, error) {
	return money.UsdCentsFromDecimal(n.Decimal().Mul(p.centsPerSat)), nil
}

func (p *fakeProvider) CentsFromSatsForSell(n money.Sats, now time.Time) (money.UsdCents, error) {
	return money.UsdCentsFromDecimal(n.Decimal().Mul(p.centsPerSat)), nil
}

func (p *fakeProvider) SatsFromCentsForBuy(c money.UsdCents, now time.Time) (money.Sats, error) {
	return money.SatsFromDecimal(c.Decimal().Div(p.centsPerSat)), nil
}

func (p *fakeProvider) SatsFromCentsForSell(c money.UsdCents, now time.Time) (money.Sats, error) {
	return money.SatsFromDecimal(c.Decimal().Div(p.centsPerSat)), nil
}

func (p *fakeProvider) MidPriceOfOneSat(now time.Time) (decimal.Decimal, error) {
	return p.centsPerSat, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()

	quoteDB, err := database.New(database.Config{Path: filepath.Join(dir, "quotes.db"), Profile: database.ProfileStandard, Name: "quotes"})
	require.NoError(t, err)
	t.Cleanup(func() { quoteDB.Close() })

	ledgerDB, err := database.New(database.Config{Path: filepath.Join(dir, "ledger.db"), Profile: database.ProfileLedger, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { ledgerDB.Close() })

	l := ledger.New(ledgerDB, zerolog.Nop())
	require.NoError(t, l.Init(context.Background()))

	provider := &fakeProvider{id: "test-exchange", centsPerSat: decimal.NewFromFloat(0.01)}
	buyMixer := pricemixer.New()
	require.NoError(t, buyMixer.AddProvider(provider.id, provider, 1))
	sellMixer := pricemixer.New()
	require.NoError(t, sellMixer.AddProvider(provider.id, provider, 1))

	svc := New(Config{
		DB:        quoteDB,
		Ledger:    l,
		BuyMixer:  buyMixer,
		SellMixer: sellMixer,
		Fee: NewFeeCalculator(FeeConfig{
			BaseRate:      decimal.NewFromFloat(0.001),
			ImmediateRate: decimal.NewFromFloat(0.0005),
			DelayedRate:   decimal.NewFromFloat(0.0002),
		}),
	}, zerolog.Nop())
	require.NoError(t, svc.Init())
	return svc
}

func TestQuoteCentsFromSatsForBuyRoundsFeeUp(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(100_000), true)
	require.NoError(t, err)
	require.True(t, q.IsAccepted())
	// raw = 100_000 * 0.01 = 1000 cents; immediate rate 0.0015 -> 1001.5, ceiled to 1002.
	require.Equal(t, int64(1002), q.CentAmount.Int64())
}

func TestQuoteCentsFromSatsForBuyZeroSatsIsZeroCents(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(0), true)
	require.NoError(t, err)
	require.Equal(t, int64(0), q.CentAmount.Int64())
}

func TestQuoteMonotonicityInSatAmount(t *testing.T) {
	svc := newTestService(t)
	small, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(10_000), false)
	require.NoError(t, err)
	large, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(20_000), false)
	require.NoError(t, err)
	require.True(t, large.CentAmount.Cmp(small.CentAmount) > 0)
}

func TestImmediateExecutionAcceptsInlineAndPostsLedger(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(100_000), true)
	require.NoError(t, err)
	require.True(t, q.IsAccepted())

	balance, err := svc.ledger.UsdLiabilityBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, q.CentAmount.Int64(), balance.Int64())
}

func TestAcceptQuoteIsAtMostOnce(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.QuoteCentsFromSatsForBuy(context.Background(), money.SatsFromInt64(100_000), false)
	require.NoError(t, err)
	require.False(t, q.IsAccepted())

	require.NoError(t, svc.AcceptQuote(context.Background(), q.ID))
	err = svc.AcceptQuote(context.Background(), q.ID)
	require.ErrorIs(t, err, ErrAlreadyAccepted, "a second accept must fail, not silently succeed")

	balance, err := svc.ledger.UsdLiabilityBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, q.CentAmount.Int64(), balance.Int64(), "the second accept must not double-post")
}

func TestFindByIDReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
