// Package ledger is a double-entry bookkeeping subsystem built directly
// on modernc.org/sqlite: a global journal, five fixed accounts, and six
// transaction templates that post balanced debit/credit entries across
// two currencies and two settlement layers inside a caller-supplied SQL
// transaction.
package ledger

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
	"github.com/stablesats/dealer/internal/money"
)

// TransactionFailedError wraps any constraint violation or imbalance
// detected while posting a template application. The caller's transaction
// is expected to roll back on receipt of this error.
type TransactionFailedError struct {
	Template string
	Err      error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("ledger: transaction failed for template %s: %v", e.Template, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// Ledger owns the schema, account registry and template set over one
// database connection.
type Ledger struct {
	db  *database.DB
	log zerolog.Logger
}

// New constructs a Ledger over an already-opened database connection.
func New(db *database.DB, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, log: log.With().Str("component", "ledger").Logger()}
}

// WithTransaction runs fn inside a fresh SQL transaction over the
// ledger's database connection, committing on success and rolling back
// on error or panic. Callers outside this package (e.g. the hedging
// loop posting allocation changes) use this instead of reaching into an
// unexported connection field.
func (l *Ledger) WithTransaction(fn func(tx *sql.Tx) error) error {
	return database.WithTransaction(l.db.Conn(), fn)
}

// Init creates the schema and registers the journal, accounts and
// templates. Every statement is idempotent (CREATE TABLE IF NOT EXISTS /
// INSERT OR IGNORE keyed by the deterministic ids in constants.go), so
// Init is safe to call on every process start.
func (l *Ledger) Init(ctx context.Context) error {
	if err := l.db.Migrate(schema); err != nil {
		return fmt.Errorf("ledger: migrate schema: %w", err)
	}

	return database.WithTransaction(l.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ledger_journals (id, name) VALUES (?, ?)`,
			StablesatsJournalID.String(), stablesatsJournalName); err != nil {
			return err
		}

		accounts := []struct {
			id   uuid.UUID
			code string
		}{
			{ExternalOmnibusID, externalOmnibusCode},
			{StablesatsBtcWalletID, stablesatsBtcWalletCode},
			{StablesatsOmnibusID, stablesatsOmnibusCode},
			{StablesatsLiabilityID, stablesatsLiabilityCode},
			{DerivativeAllocationsOkexID, derivativeAllocationsOkexCode},
		}
		for _, a := range accounts {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ledger_accounts (id, code, journal_id) VALUES (?, ?, ?)`,
				a.id.String(), a.code, StablesatsJournalID.String()); err != nil {
				return err
			}
		}

		templates := []struct {
			id   uuid.UUID
			code string
		}{
			{UserBuysUsdID, userBuysUsdCode},
			{UserSellsUsdID, userSellsUsdCode},
			{IncreaseExchangeAllocID, increaseExchangeAllocCode},
			{DecreaseExchangeAllocID, decreaseExchangeAllocCode},
			{BuyUsdQuoteAcceptedID, buyUsdQuoteAcceptedCode},
			{SellUsdQuoteAcceptedID, sellUsdQuoteAcceptedCode},
		}
		for _, t := range templates {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ledger_templates (id, code) VALUES (?, ?)`,
				t.id.String(), t.code); err != nil {
				return err
			}
		}
		return nil
	})
}

type entry struct {
	accountID uuid.UUID
	entryType string
	currency  string
	direction string
	layer     string
	units     decimal.Decimal
}

// postTransaction validates that entries balance per currency and layer,
// then inserts the transaction and its entries inside tx. It never opens
// or commits a transaction itself — that is the caller's responsibility,
// matching the teacher's database.WithTransaction boundary. txnID is the
// caller-supplied id (a fresh uuid per call, or a client-chosen id where
// the caller needs retries to be idempotent); templateID identifies which
// of the fixed templates in constants.go produced these entries.
func (l *Ledger) postTransaction(ctx context.Context, tx *sql.Tx, txnID uuid.UUID, templateID uuid.UUID, templateCode string, metadata any, entries []entry) error {
	type balanceKey struct {
		currency string
		layer    string
	}
	balances := map[balanceKey]decimal.Decimal{}
	for _, e := range entries {
		k := balanceKey{currency: e.currency, layer: e.layer}
		signed := e.units
		if e.direction == directionDebit {
			signed = signed.Neg()
		}
		balances[k] = balances[k].Add(signed)
	}
	for k, sum := range balances {
		if !sum.IsZero() {
			return &TransactionFailedError{Template: templateCode, Err: fmt.Errorf("unbalanced entries for %s/%s: net %s", k.currency, k.layer, sum)}
		}
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return &TransactionFailedError{Template: templateCode, Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_transactions (id, template_id, description, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		txnID.String(), templateID.String(), templateCode, string(metaJSON), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return &TransactionFailedError{Template: templateCode, Err: err}
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (transaction_id, account_id, entry_type, currency, direction, layer, units) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			txnID.String(), e.accountID.String(), e.entryType, e.currency, e.direction, e.layer, e.units.String()); err != nil {
			return &TransactionFailedError{Template: templateCode, Err: err}
		}
	}

	return nil
}

// UsdLiabilityBalance sums SETTLED entries posted to the liability
// account: credits increase the balance owed to users, debits decrease
// it.
func (l *Ledger) UsdLiabilityBalance(ctx context.Context) (money.UsdCents, error) {
	rows, err := l.db.Conn().QueryContext(ctx,
		`SELECT direction, units FROM ledger_entries WHERE account_id = ? AND currency = ? AND layer = ?`,
		StablesatsLiabilityID.String(), currencyUSD, layerSettled)
	if err != nil {
		return money.UsdCents{}, fmt.Errorf("ledger: query liability balance: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var direction, units string
		if err := rows.Scan(&direction, &units); err != nil {
			return money.UsdCents{}, fmt.Errorf("ledger: scan liability row: %w", err)
		}
		amount, err := decimal.NewFromString(units)
		if err != nil {
			return money.UsdCents{}, fmt.Errorf("ledger: parse liability units: %w", err)
		}
		if direction == directionDebit {
			amount = amount.Neg()
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return money.UsdCents{}, fmt.Errorf("ledger: iterate liability rows: %w", err)
	}

	return money.UsdCentsFromDecimal(total.Mul(decimal.NewFromInt(CentsPerUsd))), nil
}
