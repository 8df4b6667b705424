package quote

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quote_events (
	quote_id TEXT NOT NULL REFERENCES quotes(id),
	sequence INTEGER NOT NULL,
	event_json TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (quote_id, sequence)
);

CREATE TABLE IF NOT EXISTS user_trades (
	id TEXT PRIMARY KEY,
	buy_unit TEXT NOT NULL,
	buy_amount TEXT NOT NULL,
	sell_unit TEXT NOT NULL,
	sell_amount TEXT NOT NULL,
	is_latest INTEGER NOT NULL DEFAULT 0,
	ref_cursor TEXT,
	btc_tx_id TEXT,
	usd_tx_id TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_trade_balances (
	unit TEXT PRIMARY KEY,
	current_balance TEXT NOT NULL,
	last_trade_id TEXT NOT NULL
);
`
