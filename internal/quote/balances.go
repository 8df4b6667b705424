package quote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stablesats/dealer/internal/database"
)

// TradeUnit names one side of a raw user-trade leg, independent of the
// quote lifecycle: a reconciliation import records trades directly in
// these units.
type TradeUnit string

const (
	UnitSatoshi   TradeUnit = "satoshi"
	UnitSynthCent TradeUnit = "synth_cent"
)

// ExternalRef is the cursor into an upstream trade feed a NewUserTrade was
// imported from, letting a re-run of the import resume after the last
// trade it successfully persisted.
type ExternalRef struct {
	Cursor  string
	BtcTxID string
	UsdTxID string
}

// NewUserTrade is one raw trade leg to persist: buy_unit gains buy_amount,
// sell_unit loses sell_amount.
type NewUserTrade struct {
	BuyUnit     TradeUnit
	BuyAmount   decimal.Decimal
	SellUnit    TradeUnit
	SellAmount  decimal.Decimal
	IsLatest    bool
	ExternalRef *ExternalRef
}

// Balance is one unit's running total and the trade that last moved it.
type Balance struct {
	CurrentBalance decimal.Decimal
	LastTradeID    uuid.UUID
}

// RecordUserTrade persists trade and updates both units' running balances
// in a single transaction, so a crash mid-import can never leave a trade
// recorded without its balance effect or vice versa. Used by a standalone
// reconciliation import; quote acceptance instead calls recordUserTradeTx
// directly on its own already-open transaction.
func (s *Service) RecordUserTrade(ctx context.Context, trade NewUserTrade) (uuid.UUID, error) {
	var id uuid.UUID
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var err error
		id, err = s.recordUserTradeTx(ctx, tx, trade)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) recordUserTradeTx(ctx context.Context, tx *sql.Tx, trade NewUserTrade) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var cursor, btcTxID, usdTxID sql.NullString
	if trade.ExternalRef != nil {
		cursor = sql.NullString{String: trade.ExternalRef.Cursor, Valid: true}
		btcTxID = sql.NullString{String: trade.ExternalRef.BtcTxID, Valid: true}
		usdTxID = sql.NullString{String: trade.ExternalRef.UsdTxID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_trades (id, buy_unit, buy_amount, sell_unit, sell_amount, is_latest, ref_cursor, btc_tx_id, usd_tx_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), string(trade.BuyUnit), trade.BuyAmount.String(), string(trade.SellUnit), trade.SellAmount.String(),
		boolToInt(trade.IsLatest), cursor, btcTxID, usdTxID, now); err != nil {
		return uuid.Nil, fmt.Errorf("insert user trade: %w", err)
	}

	if err := s.applyBalanceDelta(ctx, tx, trade.BuyUnit, trade.BuyAmount, id); err != nil {
		return uuid.Nil, err
	}
	if err := s.applyBalanceDelta(ctx, tx, trade.SellUnit, trade.SellAmount.Neg(), id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) applyBalanceDelta(ctx context.Context, tx *sql.Tx, unit TradeUnit, delta decimal.Decimal, tradeID uuid.UUID) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT current_balance FROM user_trade_balances WHERE unit = ?`, string(unit)).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_trade_balances (unit, current_balance, last_trade_id) VALUES (?, ?, ?)`,
			string(unit), delta.String(), tradeID.String())
		return err
	case err != nil:
		return fmt.Errorf("quote: read balance for %s: %w", unit, err)
	}

	amount, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("quote: parse balance for %s: %w", unit, err)
	}
	next := amount.Add(delta)
	_, err = tx.ExecContext(ctx,
		`UPDATE user_trade_balances SET current_balance = ?, last_trade_id = ? WHERE unit = ?`,
		next.String(), tradeID.String(), string(unit))
	return err
}

// Balances returns the current running balance and last-moving trade id
// for every unit that has ever been touched.
func (s *Service) Balances(ctx context.Context) (map[TradeUnit]Balance, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT unit, current_balance, last_trade_id FROM user_trade_balances`)
	if err != nil {
		return nil, fmt.Errorf("quote: query balances: %w", err)
	}
	defer rows.Close()

	out := map[TradeUnit]Balance{}
	for rows.Next() {
		var unit, balanceStr, tradeIDStr string
		if err := rows.Scan(&unit, &balanceStr, &tradeIDStr); err != nil {
			return nil, fmt.Errorf("quote: scan balance row: %w", err)
		}
		amount, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("quote: parse balance amount: %w", err)
		}
		tradeID, err := uuid.Parse(tradeIDStr)
		if err != nil {
			return nil, fmt.Errorf("quote: parse last trade id: %w", err)
		}
		out[TradeUnit(unit)] = Balance{CurrentBalance: amount, LastTradeID: tradeID}
	}
	return out, rows.Err()
}

// LatestExternalRef returns the cursor from the most recently recorded
// trade flagged is_latest, so a reconciliation import can resume after
// the last trade it successfully persisted. Returns nil if no trade has
// ever been flagged latest.
func (s *Service) LatestExternalRef(ctx context.Context) (*ExternalRef, error) {
	var cursor, btcTxID, usdTxID sql.NullString
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT ref_cursor, btc_tx_id, usd_tx_id FROM user_trades WHERE is_latest = 1 ORDER BY created_at DESC LIMIT 1`,
	).Scan(&cursor, &btcTxID, &usdTxID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quote: query latest external ref: %w", err)
	}
	if !cursor.Valid {
		return nil, nil
	}
	return &ExternalRef{Cursor: cursor.String, BtcTxID: btcTxID.String, UsdTxID: usdTxID.String}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
