package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/database"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dir, "ledger.db"), Profile: database.ProfileLedger, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := New(db, zerolog.Nop())
	require.NoError(t, l.Init(context.Background()))
	return l
}

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dir, "ledger.db"), Profile: database.ProfileLedger, Name: "ledger"})
	require.NoError(t, err)
	defer db.Close()

	l := New(db, zerolog.Nop())
	require.NoError(t, l.Init(context.Background()))
	require.NoError(t, l.Init(context.Background()), "re-running Init on restart must not error")
}

func TestBuyUsdQuoteAcceptedIncreasesLiability(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := database.WithTransaction(l.db.Conn(), func(tx *sql.Tx) error {
		return l.BuyUsdQuoteAccepted(ctx, tx, uuid.New(), BuyUsdQuoteAcceptedParams{
			UsdCentsAmount: money.UsdCentsFromInt64(1000),
			SatoshiAmount:  money.SatsFromInt64(100_000),
			Meta:           Meta{},
		})
	})
	require.NoError(t, err)

	balance, err := l.UsdLiabilityBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance.Int64())
}

func TestSellUsdQuoteAcceptedDecreasesLiability(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, database.WithTransaction(l.db.Conn(), func(tx *sql.Tx) error {
		return l.BuyUsdQuoteAccepted(ctx, tx, uuid.New(), BuyUsdQuoteAcceptedParams{
			UsdCentsAmount: money.UsdCentsFromInt64(1000),
			SatoshiAmount:  money.SatsFromInt64(100_000),
		})
	}))
	require.NoError(t, database.WithTransaction(l.db.Conn(), func(tx *sql.Tx) error {
		return l.SellUsdQuoteAccepted(ctx, tx, uuid.New(), SellUsdQuoteAcceptedParams{
			UsdCentsAmount: money.UsdCentsFromInt64(400),
			SatoshiAmount:  money.SatsFromInt64(40_000),
		})
	}))

	balance, err := l.UsdLiabilityBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(600), balance.Int64())
}

// TestEveryEntrySetBalancesPerCurrency is property 1 from the testable
// properties section: for every template, summing debits and credits per
// currency within a layer nets to zero.
func TestEveryEntrySetBalancesPerCurrency(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	apps := []func(tx *sql.Tx) error{
		func(tx *sql.Tx) error {
			return l.BuyUsdQuoteAccepted(ctx, tx, uuid.New(), BuyUsdQuoteAcceptedParams{UsdCentsAmount: money.UsdCentsFromInt64(500), SatoshiAmount: money.SatsFromInt64(50_000)})
		},
		func(tx *sql.Tx) error {
			return l.SellUsdQuoteAccepted(ctx, tx, uuid.New(), SellUsdQuoteAcceptedParams{UsdCentsAmount: money.UsdCentsFromInt64(200), SatoshiAmount: money.SatsFromInt64(20_000)})
		},
		func(tx *sql.Tx) error {
			return l.IncreaseExchangeAllocation(ctx, tx, uuid.New(), IncreaseExchangeAllocationParams{UsdCentsAmount: money.UsdCentsFromInt64(300)})
		},
		func(tx *sql.Tx) error {
			return l.DecreaseExchangeAllocation(ctx, tx, uuid.New(), DecreaseExchangeAllocationParams{UsdCentsAmount: money.UsdCentsFromInt64(100)})
		},
	}
	for _, app := range apps {
		require.NoError(t, database.WithTransaction(l.db.Conn(), app))
	}

	rows, err := l.db.Conn().QueryContext(ctx, `
		SELECT currency, layer, direction, units FROM ledger_entries
	`)
	require.NoError(t, err)
	defer rows.Close()

	type key struct{ currency, layer string }
	totals := map[key]decimal.Decimal{}
	for rows.Next() {
		var currency, layer, direction, units string
		require.NoError(t, rows.Scan(&currency, &layer, &direction, &units))
		amt, err := decimal.NewFromString(units)
		require.NoError(t, err)
		if direction == directionDebit {
			amt = amt.Neg()
		}
		k := key{currency, layer}
		totals[k] = totals[k].Add(amt)
	}
	for k, v := range totals {
		require.Truef(t, v.IsZero(), "currency %s layer %s did not balance: %s", k.currency, k.layer, v)
	}
}
