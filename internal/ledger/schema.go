package ledger

const schema = `
CREATE TABLE IF NOT EXISTS ledger_journals (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_accounts (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	journal_id TEXT NOT NULL REFERENCES ledger_journals(id)
);

CREATE TABLE IF NOT EXISTS ledger_templates (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES ledger_templates(id),
	description TEXT,
	metadata TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT NOT NULL REFERENCES ledger_transactions(id),
	account_id TEXT NOT NULL REFERENCES ledger_accounts(id),
	entry_type TEXT NOT NULL,
	currency TEXT NOT NULL,
	direction TEXT NOT NULL CHECK(direction IN ('DEBIT','CREDIT')),
	layer TEXT NOT NULL CHECK(layer IN ('PENDING','SETTLED')),
	units TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, currency, layer);
`
