package quote

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestRecordUserTradeUpdatesBalancesAndCursor mirrors the original
// user_trade_balances scenario: persisting one trade that buys synth
// cents by selling satoshis must move both units' running balances by
// the traded amount and advance the external-ref cursor.
func TestRecordUserTradeUpdatesBalancesAndCursor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	original, err := svc.Balances(ctx)
	require.NoError(t, err)
	require.Empty(t, original)

	satAmount := decimal.NewFromInt(1000)
	centAmount := decimal.NewFromInt(10)

	tradeID, err := svc.RecordUserTrade(ctx, NewUserTrade{
		BuyUnit:    UnitSynthCent,
		BuyAmount:  centAmount,
		SellUnit:   UnitSatoshi,
		SellAmount: satAmount,
		IsLatest:   true,
		ExternalRef: &ExternalRef{
			Cursor:  "cursor",
			BtcTxID: "btc_tx_id",
			UsdTxID: "usd_tx_id",
		},
	})
	require.NoError(t, err)

	ref, err := svc.LatestExternalRef(ctx)
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, "cursor", ref.Cursor)

	balances, err := svc.Balances(ctx)
	require.NoError(t, err)

	satBalance, ok := balances[UnitSatoshi]
	require.True(t, ok)
	require.True(t, satBalance.CurrentBalance.Equal(satAmount.Neg()))
	require.Equal(t, tradeID, satBalance.LastTradeID)

	centBalance, ok := balances[UnitSynthCent]
	require.True(t, ok)
	require.True(t, centBalance.CurrentBalance.Equal(centAmount))
	require.Equal(t, tradeID, centBalance.LastTradeID)
}

func TestRecordUserTradeAccumulatesAcrossCalls(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordUserTrade(ctx, NewUserTrade{
		BuyUnit: UnitSynthCent, BuyAmount: decimal.NewFromInt(10),
		SellUnit: UnitSatoshi, SellAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	_, err = svc.RecordUserTrade(ctx, NewUserTrade{
		BuyUnit: UnitSynthCent, BuyAmount: decimal.NewFromInt(5),
		SellUnit: UnitSatoshi, SellAmount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	balances, err := svc.Balances(ctx)
	require.NoError(t, err)
	require.True(t, balances[UnitSynthCent].CurrentBalance.Equal(decimal.NewFromInt(15)))
	require.True(t, balances[UnitSatoshi].CurrentBalance.Equal(decimal.NewFromInt(-1500)))
}
