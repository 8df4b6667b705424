package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/money"
)

// Meta is the metadata stamped onto every template application, mirroring
// the timestamp-only metadata shape the original templates serialize
// alongside each transaction.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// BuyUsdQuoteAcceptedParams carries the amounts posted when a client's
// buy-cents quote is accepted: they hand over sats and receive cents.
type BuyUsdQuoteAcceptedParams struct {
	UsdCentsAmount money.UsdCents
	SatoshiAmount  money.Sats
	Meta           Meta
}

// BuyUsdQuoteAccepted posts the BUY_USD_QUOTE_ACCEPTED template: BTC moves
// from the Stablesats BTC wallet into the external omnibus (the client's
// sats leave custody), and USD liability increases by the quoted cents.
func (l *Ledger) BuyUsdQuoteAccepted(ctx context.Context, tx *sql.Tx, id uuid.UUID, params BuyUsdQuoteAcceptedParams) error {
	btc := params.SatoshiAmount.Decimal().Div(decimal.NewFromInt(SatsPerBtc))
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: StablesatsBtcWalletID, entryType: "BUY_USD_QUOTE_ACCEPTED_BTC_DR", currency: currencyBTC, direction: directionDebit, layer: layerSettled, units: btc},
		{accountID: ExternalOmnibusID, entryType: "BUY_USD_QUOTE_ACCEPTED_BTC_CR", currency: currencyBTC, direction: directionCredit, layer: layerSettled, units: btc},
		{accountID: StablesatsLiabilityID, entryType: "BUY_USD_QUOTE_ACCEPTED_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: StablesatsOmnibusID, entryType: "BUY_USD_QUOTE_ACCEPTED_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
	}
	return l.postTransaction(ctx, tx, id, BuyUsdQuoteAcceptedID, buyUsdQuoteAcceptedCode, params.Meta, entries)
}

// SellUsdQuoteAcceptedParams carries the amounts posted when a client's
// sell-cents quote is accepted: they hand over cents and receive sats.
type SellUsdQuoteAcceptedParams struct {
	UsdCentsAmount money.UsdCents
	SatoshiAmount  money.Sats
	Meta           Meta
}

// SellUsdQuoteAccepted posts the SELL_USD_QUOTE_ACCEPTED template: USD
// liability decreases by the quoted cents, and BTC moves from the
// external omnibus back into the Stablesats BTC wallet.
func (l *Ledger) SellUsdQuoteAccepted(ctx context.Context, tx *sql.Tx, id uuid.UUID, params SellUsdQuoteAcceptedParams) error {
	btc := params.SatoshiAmount.Decimal().Div(decimal.NewFromInt(SatsPerBtc))
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: StablesatsLiabilityID, entryType: "SELL_USD_QUOTE_ACCEPTED_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
		{accountID: StablesatsOmnibusID, entryType: "SELL_USD_QUOTE_ACCEPTED_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: ExternalOmnibusID, entryType: "SELL_USD_QUOTE_ACCEPTED_BTC_DR", currency: currencyBTC, direction: directionDebit, layer: layerSettled, units: btc},
		{accountID: StablesatsBtcWalletID, entryType: "SELL_USD_QUOTE_ACCEPTED_BTC_CR", currency: currencyBTC, direction: directionCredit, layer: layerSettled, units: btc},
	}
	return l.postTransaction(ctx, tx, id, SellUsdQuoteAcceptedID, sellUsdQuoteAcceptedCode, params.Meta, entries)
}

// UserBuysUsdParams carries the amounts posted for a raw user-trades buy
// leg, independent of the quote lifecycle (e.g. a reconciliation import).
type UserBuysUsdParams struct {
	UsdCentsAmount money.UsdCents
	SatoshiAmount  money.Sats
	Meta           Meta
}

// UserBuysUsd posts the USER_BUYS_USD template, the same shape as
// BuyUsdQuoteAccepted but under its own template id so the two call sites
// stay distinguishable in the transaction history.
func (l *Ledger) UserBuysUsd(ctx context.Context, tx *sql.Tx, id uuid.UUID, params UserBuysUsdParams) error {
	btc := params.SatoshiAmount.Decimal().Div(decimal.NewFromInt(SatsPerBtc))
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: StablesatsBtcWalletID, entryType: "USER_BUYS_USD_BTC_DR", currency: currencyBTC, direction: directionDebit, layer: layerSettled, units: btc},
		{accountID: ExternalOmnibusID, entryType: "USER_BUYS_USD_BTC_CR", currency: currencyBTC, direction: directionCredit, layer: layerSettled, units: btc},
		{accountID: StablesatsLiabilityID, entryType: "USER_BUYS_USD_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: StablesatsOmnibusID, entryType: "USER_BUYS_USD_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
	}
	return l.postTransaction(ctx, tx, id, UserBuysUsdID, userBuysUsdCode, params.Meta, entries)
}

// UserSellsUsdParams carries the amounts posted for a raw user-trades sell
// leg.
type UserSellsUsdParams struct {
	UsdCentsAmount money.UsdCents
	SatoshiAmount  money.Sats
	Meta           Meta
}

// UserSellsUsd posts the USER_SELLS_USD template.
func (l *Ledger) UserSellsUsd(ctx context.Context, tx *sql.Tx, id uuid.UUID, params UserSellsUsdParams) error {
	btc := params.SatoshiAmount.Decimal().Div(decimal.NewFromInt(SatsPerBtc))
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: StablesatsLiabilityID, entryType: "USER_SELLS_USD_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
		{accountID: StablesatsOmnibusID, entryType: "USER_SELLS_USD_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: ExternalOmnibusID, entryType: "USER_SELLS_USD_BTC_DR", currency: currencyBTC, direction: directionDebit, layer: layerSettled, units: btc},
		{accountID: StablesatsBtcWalletID, entryType: "USER_SELLS_USD_BTC_CR", currency: currencyBTC, direction: directionCredit, layer: layerSettled, units: btc},
	}
	return l.postTransaction(ctx, tx, id, UserSellsUsdID, userSellsUsdCode, params.Meta, entries)
}

// IncreaseExchangeAllocationParams carries the USD notional moved onto the
// exchange allocation account when the hedging loop grows its hedge.
type IncreaseExchangeAllocationParams struct {
	UsdCentsAmount money.UsdCents
	Meta           Meta
}

// IncreaseExchangeAllocation posts the INCREASE_EXCHANGE_ALLOCATION
// template: the liability account is debited and the exchange allocation
// account is credited by the same USD amount, mirroring
// original_source/ledger/src/templates/increase_exchange_allocation.rs.
func (l *Ledger) IncreaseExchangeAllocation(ctx context.Context, tx *sql.Tx, id uuid.UUID, params IncreaseExchangeAllocationParams) error {
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: DerivativeAllocationsOkexID, entryType: "INCREASE_EXCHANGE_ALLOCATION_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: StablesatsLiabilityID, entryType: "INCREASE_EXCHANGE_ALLOCATION_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
	}
	return l.postTransaction(ctx, tx, id, IncreaseExchangeAllocID, increaseExchangeAllocCode, params.Meta, entries)
}

// DecreaseExchangeAllocationParams carries the USD notional moved off the
// exchange allocation account when the hedging loop shrinks its hedge.
type DecreaseExchangeAllocationParams struct {
	UsdCentsAmount money.UsdCents
	Meta           Meta
}

// DecreaseExchangeAllocation posts the DECREASE_EXCHANGE_ALLOCATION
// template, the inverse of IncreaseExchangeAllocation.
func (l *Ledger) DecreaseExchangeAllocation(ctx context.Context, tx *sql.Tx, id uuid.UUID, params DecreaseExchangeAllocationParams) error {
	usd := params.UsdCentsAmount.Decimal().Div(decimal.NewFromInt(CentsPerUsd))

	entries := []entry{
		{accountID: StablesatsLiabilityID, entryType: "DECREASE_EXCHANGE_ALLOCATION_USD_CR", currency: currencyUSD, direction: directionCredit, layer: layerSettled, units: usd},
		{accountID: DerivativeAllocationsOkexID, entryType: "DECREASE_EXCHANGE_ALLOCATION_USD_DR", currency: currencyUSD, direction: directionDebit, layer: layerSettled, units: usd},
	}
	return l.postTransaction(ctx, tx, id, DecreaseExchangeAllocID, decreaseExchangeAllocCode, params.Meta, entries)
}
