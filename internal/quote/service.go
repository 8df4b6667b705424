package quote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/database"
	"github.com/stablesats/dealer/internal/ledger"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stablesats/dealer/internal/pricemixer"
)

// DefaultExpiryAfter is how far in the future a freshly priced quote
// expires, matching the original service's hardcoded two minutes.
const DefaultExpiryAfter = 2 * time.Minute

// HedgeNotifier is the narrow capability the hedging loop exposes back
// to the quote pipeline: a non-blocking signal that a ledger posting may
// have changed the USD liability, so the loop can reconcile before its
// next scheduled tick. *hedging.Loop satisfies this without the quote
// package importing internal/hedging.
type HedgeNotifier interface {
	Notify()
}

// Config wires a QuoteService to its dependencies.
type Config struct {
	DB            *database.DB
	Ledger        *ledger.Ledger
	BuyMixer      *pricemixer.Mixer
	SellMixer     *pricemixer.Mixer
	Fee           *FeeCalculator
	ExpiryAfter   time.Duration
	HedgeNotifier HedgeNotifier
}

// Service prices, persists and accepts quotes. Buy and sell conversions
// are fused across separate mixers because a venue can be healthy on one
// side of its book and stale on the other (order-book depth can run out
// asymmetrically).
type Service struct {
	db            *database.DB
	ledger        *ledger.Ledger
	buyMixer      *pricemixer.Mixer
	sellMixer     *pricemixer.Mixer
	fee           *FeeCalculator
	expiryAfter   time.Duration
	hedgeNotifier HedgeNotifier
	log           zerolog.Logger
}

// New constructs a Service from cfg.
func New(cfg Config, log zerolog.Logger) *Service {
	expiry := cfg.ExpiryAfter
	if expiry <= 0 {
		expiry = DefaultExpiryAfter
	}
	return &Service{
		db:            cfg.DB,
		ledger:        cfg.Ledger,
		buyMixer:      cfg.BuyMixer,
		sellMixer:     cfg.SellMixer,
		fee:           cfg.Fee,
		expiryAfter:   expiry,
		hedgeNotifier: cfg.HedgeNotifier,
		log:           log.With().Str("component", "quote-service").Logger(),
	}
}

// Init creates the quote/event/trade schema. Idempotent.
func (s *Service) Init() error {
	return s.db.Migrate(schema)
}

func providerOf(ep pricemixer.ExchangeProvider) (Provider, error) {
	p, ok := ep.(Provider)
	if !ok {
		return nil, fmt.Errorf("quote: provider %s does not implement the conversion capability", ep.ExchangeID())
	}
	return p, nil
}

// QuoteCentsFromSatsForBuy prices how many USD cents a client receives for
// n sats, applying the fee on top (buy-side output, rounded up).
func (s *Service) QuoteCentsFromSatsForBuy(ctx context.Context, n money.Sats, immediate bool) (*Quote, error) {
	now := time.Now().UTC()
	raw, err := s.buyMixer.Apply(func(ep pricemixer.ExchangeProvider) (decimal.Decimal, error) {
		p, err := providerOf(ep)
		if err != nil {
			return decimal.Zero, err
		}
		c, err := p.CentsFromSatsForBuy(n, now)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Decimal(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quote: price cents from sats for buy: %w", err)
	}

	withFee := s.fee.IncreaseByFee(raw, immediate)
	centAmount := money.UsdCentsFromInt64(money.UsdCentsFromDecimal(withFee).Int64Ceil())
	baseAmount := money.UsdCentsFromInt64(money.UsdCentsFromDecimal(raw).Int64())
	centSpread := centAmount.Sub(baseAmount)

	return s.create(ctx, NewQuoteParams{
		Direction:          BuyCents,
		ImmediateExecution: immediate,
		SatAmount:          n,
		CentAmount:         centAmount,
		CentSpread:         centSpread,
		SatSpread:          money.SatsFromInt64(0),
		ExpiresAt:          now.Add(s.expiryAfter),
	})
}

// QuoteCentsFromSatsForSell prices how many USD cents a client pays to
// redeem n sats, with the fee taken off the top (sell-side output,
// rounded down).
func (s *Service) QuoteCentsFromSatsForSell(ctx context.Context, n money.Sats, immediate bool) (*Quote, error) {
	now := time.Now().UTC()
	raw, err := s.sellMixer.Apply(func(ep pricemixer.ExchangeProvider) (decimal.Decimal, error) {
		p, err := providerOf(ep)
		if err != nil {
			return decimal.Zero, err
		}
		c, err := p.CentsFromSatsForSell(n, now)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Decimal(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quote: price cents from sats for sell: %w", err)
	}

	withFee := s.fee.DecreaseByFee(raw, immediate)
	centAmount := money.UsdCentsFromInt64(money.UsdCentsFromDecimal(withFee).Int64Floor())
	baseAmount := money.UsdCentsFromInt64(money.UsdCentsFromDecimal(raw).Int64())
	centSpread := baseAmount.Sub(centAmount)

	return s.create(ctx, NewQuoteParams{
		Direction:          SellCents,
		ImmediateExecution: immediate,
		SatAmount:          n,
		CentAmount:         centAmount,
		CentSpread:         centSpread,
		SatSpread:          money.SatsFromInt64(0),
		ExpiresAt:          now.Add(s.expiryAfter),
	})
}

// QuoteSatsFromCentsForSell prices how many sats a client receives for
// redeeming c USD cents, fee taken off the top (sell-side output, rounded
// down).
func (s *Service) QuoteSatsFromCentsForSell(ctx context.Context, c money.UsdCents, immediate bool) (*Quote, error) {
	now := time.Now().UTC()
	raw, err := s.sellMixer.Apply(func(ep pricemixer.ExchangeProvider) (decimal.Decimal, error) {
		p, err := providerOf(ep)
		if err != nil {
			return decimal.Zero, err
		}
		sats, err := p.SatsFromCentsForSell(c, now)
		if err != nil {
			return decimal.Zero, err
		}
		return sats.Decimal(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quote: price sats from cents for sell: %w", err)
	}

	withFee := s.fee.DecreaseByFee(raw, immediate)
	satAmount := money.SatsFromInt64(money.SatsFromDecimal(withFee).Int64Floor())
	baseAmount := money.SatsFromInt64(money.SatsFromDecimal(raw).Int64())
	satSpread := baseAmount.Sub(satAmount)

	return s.create(ctx, NewQuoteParams{
		Direction:          SellCents,
		ImmediateExecution: immediate,
		SatAmount:          satAmount,
		CentAmount:         c,
		CentSpread:         money.UsdCentsFromInt64(0),
		SatSpread:          satSpread,
		ExpiresAt:          now.Add(s.expiryAfter),
	})
}

// QuoteSatsFromCentsForBuy prices how many sats a client must pay to
// receive c USD cents, fee added on top (buy-side output, rounded up).
func (s *Service) QuoteSatsFromCentsForBuy(ctx context.Context, c money.UsdCents, immediate bool) (*Quote, error) {
	now := time.Now().UTC()
	raw, err := s.buyMixer.Apply(func(ep pricemixer.ExchangeProvider) (decimal.Decimal, error) {
		p, err := providerOf(ep)
		if err != nil {
			return decimal.Zero, err
		}
		sats, err := p.SatsFromCentsForBuy(c, now)
		if err != nil {
			return decimal.Zero, err
		}
		return sats.Decimal(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quote: price sats from cents for buy: %w", err)
	}

	withFee := s.fee.IncreaseByFee(raw, immediate)
	satAmount := money.SatsFromInt64(money.SatsFromDecimal(withFee).Int64Ceil())
	baseAmount := money.SatsFromInt64(money.SatsFromDecimal(raw).Int64())
	satSpread := satAmount.Sub(baseAmount)

	q, err := s.create(ctx, NewQuoteParams{
		Direction:          BuyCents,
		ImmediateExecution: immediate,
		SatAmount:          satAmount,
		CentAmount:         c,
		CentSpread:         money.UsdCentsFromInt64(0),
		SatSpread:          satSpread,
		ExpiresAt:          now.Add(s.expiryAfter),
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// create persists a freshly priced quote and, for immediate-execution
// quotes, accepts it inline before returning.
func (s *Service) create(ctx context.Context, params NewQuoteParams) (*Quote, error) {
	id := uuid.New()
	q := NewQuote(id, params)

	if err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		return s.insertQuote(ctx, tx, q)
	}); err != nil {
		return nil, fmt.Errorf("quote: persist: %w", err)
	}

	if params.ImmediateExecution {
		if err := s.AcceptQuote(ctx, id); err != nil {
			return nil, err
		}
		_ = q.Accept(time.Now().UTC())
	}

	return q, nil
}

func (s *Service) insertQuote(ctx context.Context, tx *sql.Tx, q *Quote) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT INTO quotes (id, created_at) VALUES (?, ?)`, q.ID.String(), now); err != nil {
		return err
	}
	rows, err := q.pendingEventsJSON()
	if err != nil {
		return err
	}
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quote_events (quote_id, sequence, event_json, recorded_at) VALUES (?, ?, ?, ?)`,
			q.ID.String(), i, string(row), now); err != nil {
			return err
		}
	}
	return nil
}

// FindByID loads and folds a quote's full event log.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	rows, err := s.loadEventRows(ctx, s.db.Conn(), id)
	if err != nil {
		return nil, err
	}
	return quoteFromEvents(id, rows)
}

func (s *Service) loadEventRows(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, id uuid.UUID) ([][]byte, error) {
	rows, err := q.QueryContext(ctx, `SELECT event_json FROM quote_events WHERE quote_id = ? ORDER BY sequence ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("quote: query events: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("quote: scan event: %w", err)
		}
		out = append(out, []byte(raw))
	}
	return out, rows.Err()
}

// AcceptQuote loads the quote, transitions it to accepted and posts the
// matching ledger template, all inside one database transaction so
// concurrent acceptance attempts serialize against SQLite's single
// writer. A quote accepted more than once returns ErrAlreadyAccepted on
// every attempt after the first (property 5: at-most-once acceptance).
func (s *Service) AcceptQuote(ctx context.Context, id uuid.UUID) error {
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		// Touching the quote row first takes SQLite's write lock before the
		// event log is read, so a concurrent acceptance waits for this one
		// to commit and then sees the Accepted event.
		if _, err := tx.ExecContext(ctx, `UPDATE quotes SET id = id WHERE id = ?`, id.String()); err != nil {
			return err
		}
		rows, err := s.loadEventRows(ctx, tx, id)
		if err != nil {
			return err
		}
		q, err := quoteFromEvents(id, rows)
		if err != nil {
			return err
		}

		if err := q.Accept(time.Now().UTC()); err != nil {
			return err
		}

		meta := ledger.Meta{Timestamp: time.Now().UTC()}
		userTrade := NewUserTrade{IsLatest: true}
		if q.Direction == SellCents {
			if err := s.ledger.SellUsdQuoteAccepted(ctx, tx, id, ledger.SellUsdQuoteAcceptedParams{
				UsdCentsAmount: q.CentAmount,
				SatoshiAmount:  q.SatAmount,
				Meta:           meta,
			}); err != nil {
				return err
			}
			userTrade.BuyUnit, userTrade.BuyAmount = UnitSatoshi, q.SatAmount.Decimal()
			userTrade.SellUnit, userTrade.SellAmount = UnitSynthCent, q.CentAmount.Decimal()
		} else {
			if err := s.ledger.BuyUsdQuoteAccepted(ctx, tx, id, ledger.BuyUsdQuoteAcceptedParams{
				UsdCentsAmount: q.CentAmount,
				SatoshiAmount:  q.SatAmount,
				Meta:           meta,
			}); err != nil {
				return err
			}
			userTrade.BuyUnit, userTrade.BuyAmount = UnitSynthCent, q.CentAmount.Decimal()
			userTrade.SellUnit, userTrade.SellAmount = UnitSatoshi, q.SatAmount.Decimal()
		}
		if _, err := s.recordUserTradeTx(ctx, tx, userTrade); err != nil {
			return fmt.Errorf("quote: record user trade: %w", err)
		}

		next := len(rows)
		b, err := json.Marshal(storedEvent{Type: eventAccepted, Accepted: &acceptedEvent{}})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quote_events (quote_id, sequence, event_json, recorded_at) VALUES (?, ?, ?, ?)`,
			id.String(), next, string(b), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return nil
	})
	if err == nil && s.hedgeNotifier != nil {
		s.hedgeNotifier.Notify()
	}
	return err
}
