package ledger

import "github.com/google/uuid"

// Deterministic identifiers for the journal, accounts and templates this
// package registers at startup. Keeping them as compile-time constants
// (rather than database-generated ids) is what makes registration
// idempotent across restarts and across nodes: every process derives the
// same id for "the liability account" without a discovery round trip.
var (
	StablesatsJournalID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	ExternalOmnibusID           = uuid.MustParse("10000000-1000-0000-0000-000000000000")
	StablesatsBtcWalletID       = uuid.MustParse("20000000-2000-0000-0000-000000000000")
	StablesatsOmnibusID         = uuid.MustParse("20000000-1000-0000-0000-000000000000")
	StablesatsLiabilityID       = uuid.MustParse("20000000-2100-0000-0000-000000000000")
	DerivativeAllocationsOkexID = uuid.MustParse("20000000-2000-0100-0010-000000000000")

	UserBuysUsdID              = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	UserSellsUsdID             = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	IncreaseExchangeAllocID    = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	DecreaseExchangeAllocID    = uuid.MustParse("00000000-0000-0000-0000-000000000004")
	BuyUsdQuoteAcceptedID      = uuid.MustParse("00000000-0000-0000-0000-000000000005")
	SellUsdQuoteAcceptedID     = uuid.MustParse("00000000-0000-0000-0000-000000000006")
)

const (
	stablesatsJournalName = "Stablesats"

	externalOmnibusCode           = "EXTERNAL_OMNIBUS"
	stablesatsBtcWalletCode       = "STABLESATS_BTC_WALLET"
	stablesatsOmnibusCode         = "STABLESATS_OMNIBUS"
	stablesatsLiabilityCode       = "STABLESATS_LIABILITY"
	derivativeAllocationsOkexCode = "DERIVATIVE_ALLOCATIONS_OKEX"

	userBuysUsdCode           = "USER_BUYS_USD"
	userSellsUsdCode          = "USER_SELLS_USD"
	increaseExchangeAllocCode = "INCREASE_EXCHANGE_ALLOCATION"
	decreaseExchangeAllocCode = "DECREASE_EXCHANGE_ALLOCATION"
	buyUsdQuoteAcceptedCode   = "BUY_USD_QUOTE_ACCEPTED"
	sellUsdQuoteAcceptedCode  = "SELL_USD_QUOTE_ACCEPTED"
)

// SatsPerBtc and CentsPerUsd mirror the wire constants used throughout the
// rest of the module.
const (
	SatsPerBtc = 100_000_000
	CentsPerUsd = 100
)

const (
	currencyBTC = "BTC"
	currencyUSD = "USD"

	layerPending = "PENDING"
	layerSettled = "SETTLED"

	directionDebit  = "DEBIT"
	directionCredit = "CREDIT"
)
