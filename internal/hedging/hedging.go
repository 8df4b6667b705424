// Package hedging implements the periodic and event-driven reconciler
// that compares the ledger's outstanding USD liability with the
// exchange's live derivative position and issues funding transfers,
// order placements, and on-chain BTC withdrawals to keep them matched.
package hedging

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/exchange"
	"github.com/stablesats/dealer/internal/ledger"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stablesats/dealer/internal/pricemixer"
)

// DefaultSchedule is the cron expression the hedging loop registers with
// the scheduler when Config.Schedule is empty.
const DefaultSchedule = "@every 5s"

// midPricer is the narrow capability the loop needs out of a registered
// price provider: the same type-assert-to-capability shape
// pricemixer.Mixer.Apply's callers use in internal/quote/service.go,
// kept local here so this package does not need to import internal/quote.
type midPricer interface {
	MidPriceOfOneSat(now time.Time) (decimal.Decimal, error)
}

// Config wires a Loop to its dependencies and tunables.
type Config struct {
	Ledger   *ledger.Ledger
	Exchange *exchange.Client
	Mixer    *pricemixer.Mixer

	InstID          string          // e.g. "BTC-USD-SWAP"
	ContractSizeUSD decimal.Decimal // USD notional of one contract, typically 100

	// DeadBandUSD suppresses order issuance when the sizing delta's USD
	// notional is smaller than this, to avoid churn around integer
	// contract rounding.
	DeadBandUSD decimal.Decimal

	// Collateral policy thresholds, all in whole BTC.
	TradingBalanceLowBTC  decimal.Decimal
	TradingBalanceHighBTC decimal.Decimal
	FundingWithdrawalBTC  decimal.Decimal
	WithdrawalTargetBTC   decimal.Decimal // funding balance to leave behind after a withdrawal
	WithdrawalAddress     string
	WithdrawalFeeBTC      decimal.Decimal

	Schedule string
}

// Loop is a scheduler.Job: each Run is one reconciliation tick. It also
// accepts out-of-band signals from the quote pipeline via Notify, so a
// ledger posting that moves the liability can trigger an early
// reconciliation instead of waiting for the next scheduled tick.
type Loop struct {
	cfg Config
	log zerolog.Logger

	notifyCh chan struct{}
	clientID int64
}

// New constructs a Loop from cfg. Zero-valued threshold fields are left
// as zero, which in practice disables the corresponding policy branch
// (e.g. a zero DeadBandUSD means any delta that rounds to at least one
// contract is acted on).
func New(cfg Config, log zerolog.Logger) *Loop {
	if cfg.ContractSizeUSD.IsZero() {
		cfg.ContractSizeUSD = decimal.NewFromInt(100)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Loop{
		cfg:      cfg,
		log:      log.With().Str("component", "hedging-loop").Logger(),
		notifyCh: make(chan struct{}, 1),
	}
}

// Name satisfies scheduler.Job.
func (l *Loop) Name() string { return "hedging-loop" }

// Notify signals that a ledger posting may have changed the USD
// liability. It never blocks: if a signal is already pending, this is a
// no-op, matching the spec's "event-driven" trigger without letting the
// quote pipeline back up behind the hedging loop.
func (l *Loop) Notify() {
	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// RunEventDriven blocks, running one reconciliation per Notify signal,
// until ctx is cancelled. It is meant to run alongside the scheduler's
// periodic registration of Run, composing a timer-driven and an
// event-driven trigger over the same reconcile logic.
func (l *Loop) RunEventDriven(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.notifyCh:
			if err := l.Run(); err != nil {
				l.log.Error().Err(err).Msg("event-driven hedge reconciliation failed")
			}
		}
	}
}

// nextClientID returns a monotonically increasing identifier for
// transfer/withdrawal idempotency keys. It is process-local: a restart
// resets the counter, which is acceptable because the venue only needs
// uniqueness within a short retry window, not across the process
// lifetime.
func (l *Loop) nextClientID(prefix string) string {
	n := atomic.AddInt64(&l.clientID, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UTC().Unix(), n)
}

// Run executes one reconciliation iteration: read current state, compute
// and (if outside the dead band) issue a hedge sizing order, then apply
// the collateral policy. Any single upstream read or write error aborts
// the iteration without partial state mutation beyond what already
// committed on the exchange; the next tick retries from a fresh read.
func (l *Loop) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := l.readState(ctx)
	if err != nil {
		return fmt.Errorf("hedging: read state: %w", err)
	}

	l.log.Debug().
		Str("liability_usd", state.LiabilityUSD.StringFixed(2)).
		Str("position_contracts", state.PositionContracts.String()).
		Str("funding_btc", state.FundingBTC.String()).
		Str("trading_btc", state.TradingBTC.String()).
		Msg("hedging state read")

	if err := l.reconcilePosition(ctx, state); err != nil {
		return fmt.Errorf("hedging: reconcile position: %w", err)
	}
	if err := l.reconcileCollateral(ctx, state); err != nil {
		return fmt.Errorf("hedging: reconcile collateral: %w", err)
	}
	return nil
}

// state is the ephemeral snapshot spec.md §3 calls HedgingState: never
// persisted, recomputed fresh on every tick.
type state struct {
	LiabilityUSD      decimal.Decimal
	PositionContracts decimal.Decimal // signed: negative means short
	FundingBTC        decimal.Decimal
	TradingBTC        decimal.Decimal
	BtcUsdPrice       decimal.Decimal
}

func (l *Loop) readState(ctx context.Context) (state, error) {
	liabilityCents, err := l.cfg.Ledger.UsdLiabilityBalance(ctx)
	if err != nil {
		return state{}, fmt.Errorf("liability balance: %w", err)
	}

	position, err := l.cfg.Exchange.Position(ctx)
	if err != nil {
		return state{}, fmt.Errorf("position: %w", err)
	}

	funding, err := l.cfg.Exchange.FundingAccountBalance(ctx)
	if err != nil {
		return state{}, fmt.Errorf("funding balance: %w", err)
	}

	trading, err := l.cfg.Exchange.TradingAccountBalance(ctx)
	if err != nil {
		return state{}, fmt.Errorf("trading balance: %w", err)
	}

	price, err := l.btcUsdPrice()
	if err != nil {
		return state{}, fmt.Errorf("btc/usd price: %w", err)
	}

	return state{
		LiabilityUSD:      liabilityCents.Decimal().Div(decimal.NewFromInt(money.CentsPerUsd)),
		PositionContracts: position.Contracts,
		FundingBTC:        funding,
		TradingBTC:        trading,
		BtcUsdPrice:       price,
	}, nil
}

// btcUsdPrice derives a whole-BTC/USD price by fusing registered
// providers' per-sat mid price across the mixer, the same weighted-mean
// aggregation pricing uses, then scaling up by SatsPerBtc.
func (l *Loop) btcUsdPrice() (decimal.Decimal, error) {
	now := time.Now().UTC()
	midPerSat, err := l.cfg.Mixer.Apply(func(ep pricemixer.ExchangeProvider) (decimal.Decimal, error) {
		p, ok := ep.(midPricer)
		if !ok {
			return decimal.Zero, fmt.Errorf("provider %s has no mid price capability", ep.ExchangeID())
		}
		return p.MidPriceOfOneSat(now)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return midPerSat.Mul(decimal.NewFromInt(money.SatsPerBtc)), nil
}

// reconcilePosition sizes the target hedge to the liability, dead-bands
// the delta against current contract rounding, and issues at most one
// market order. It never retries within a tick: a failed or duplicate
// order is reconciled on the next tick rather than retried here, per
// spec.md §4.7/§9.
func (l *Loop) reconcilePosition(ctx context.Context, st state) error {
	if st.BtcUsdPrice.IsZero() {
		return fmt.Errorf("btc/usd price is zero, refusing to size a hedge")
	}

	targetContracts := st.LiabilityUSD.Div(l.cfg.ContractSizeUSD).Neg() // short target
	delta := targetContracts.Sub(st.PositionContracts)

	deltaUSD := delta.Mul(l.cfg.ContractSizeUSD).Abs()
	if deltaUSD.LessThan(l.cfg.DeadBandUSD) {
		return nil
	}

	size := delta.Abs().Round(0).IntPart()
	if size == 0 {
		return nil
	}

	side := "sell" // delta negative: grow the short
	if delta.GreaterThan(decimal.Zero) {
		side = "buy" // delta positive: shrink the short
	}

	orderID, err := l.cfg.Exchange.PlaceOrder(ctx, l.cfg.InstID, "cross", side, "short", "market", size)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	l.log.Info().
		Str("order_id", orderID.Value).
		Str("side", side).
		Int64("size_contracts", size).
		Str("delta_usd", deltaUSD.StringFixed(2)).
		Msg("hedge order placed")

	return l.postAllocationChange(ctx, delta)
}

// postAllocationChange records the hedge-size change against the
// exchange allocation ledger account, so the liability/allocation split
// spec.md §3 describes stays reconcilable without re-deriving it from
// exchange order history.
func (l *Loop) postAllocationChange(ctx context.Context, delta decimal.Decimal) error {
	usd := delta.Abs().Mul(l.cfg.ContractSizeUSD)
	cents := money.UsdCentsFromDecimal(usd.Mul(decimal.NewFromInt(money.CentsPerUsd)))
	meta := ledger.Meta{Timestamp: time.Now().UTC()}

	return l.cfg.Ledger.WithTransaction(func(tx *sql.Tx) error {
		if delta.LessThan(decimal.Zero) {
			return l.cfg.Ledger.IncreaseExchangeAllocation(ctx, tx, uuid.New(), ledger.IncreaseExchangeAllocationParams{
				UsdCentsAmount: cents,
				Meta:           meta,
			})
		}
		return l.cfg.Ledger.DecreaseExchangeAllocation(ctx, tx, uuid.New(), ledger.DecreaseExchangeAllocationParams{
			UsdCentsAmount: cents,
			Meta:           meta,
		})
	})
}

// reconcileCollateral implements the funding<->trading rebalancing and
// on-chain withdrawal policy of spec.md §4.7.
func (l *Loop) reconcileCollateral(ctx context.Context, st state) error {
	switch {
	case !l.cfg.TradingBalanceLowBTC.IsZero() && st.TradingBTC.LessThan(l.cfg.TradingBalanceLowBTC):
		amt := l.cfg.TradingBalanceHighBTC.Sub(st.TradingBTC)
		if amt.LessThanOrEqual(decimal.Zero) {
			return nil
		}
		if _, err := l.cfg.Exchange.TransferFundingToTrading(ctx, amt, l.nextClientID("fund2trade")); err != nil {
			return fmt.Errorf("transfer funding to trading: %w", err)
		}
		l.log.Info().Str("amount_btc", amt.String()).Msg("transferred funding to trading")
		return nil

	case !l.cfg.TradingBalanceHighBTC.IsZero() && st.TradingBTC.GreaterThan(l.cfg.TradingBalanceHighBTC):
		amt := st.TradingBTC.Sub(l.cfg.TradingBalanceHighBTC)
		if _, err := l.cfg.Exchange.TransferTradingToFunding(ctx, amt, l.nextClientID("trade2fund")); err != nil {
			return fmt.Errorf("transfer trading to funding: %w", err)
		}
		l.log.Info().Str("amount_btc", amt.String()).Msg("transferred trading to funding")

		return l.maybeWithdraw(ctx, st.FundingBTC.Add(amt))
	}

	return l.maybeWithdraw(ctx, st.FundingBTC)
}

// maybeWithdraw initiates an on-chain withdrawal when the funding balance
// exceeds the configured threshold, leaving WithdrawalTargetBTC behind
// and never withdrawing less than the venue's published minimum.
func (l *Loop) maybeWithdraw(ctx context.Context, fundingBTC decimal.Decimal) error {
	if l.cfg.FundingWithdrawalBTC.IsZero() || fundingBTC.LessThanOrEqual(l.cfg.FundingWithdrawalBTC) {
		return nil
	}
	amt := fundingBTC.Sub(l.cfg.WithdrawalTargetBTC)
	if amt.LessThan(exchange.MinimumWithdrawalAmountBTC) {
		return nil
	}
	fee := l.cfg.WithdrawalFeeBTC
	if fee.IsZero() {
		fee = exchange.DefaultWithdrawalFeeBTC
	}

	withdrawID, err := l.cfg.Exchange.WithdrawBtcOnchain(ctx, amt, fee, l.cfg.WithdrawalAddress, l.nextClientID("withdraw"))
	if err != nil {
		return fmt.Errorf("withdraw btc onchain: %w", err)
	}
	l.log.Info().Str("withdraw_id", withdrawID.Value).Str("amount_btc", amt.String()).Msg("initiated on-chain withdrawal")
	return nil
}
