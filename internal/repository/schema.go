package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_number TEXT NOT NULL,
    ts TEXT NOT NULL,
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    recipient_account TEXT,
    recipient_bank TEXT,
    recipient_country TEXT,
    description TEXT,
    cash INTEGER NOT NULL DEFAULT 0,
    customer_id TEXT NOT NULL,
    account_created TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_number);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

const schemaProfileReports = `
CREATE TABLE IF NOT EXISTS profile_reports (
    customer_id TEXT PRIMARY KEY,
    report TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaValidations = `
CREATE TABLE IF NOT EXISTS validations (
    id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    suspicious INTEGER NOT NULL,
    result TEXT NOT NULL,
    ts TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_tx ON validations(tx_id);
CREATE INDEX IF NOT EXISTS idx_validations_customer ON validations(customer_id);
CREATE INDEX IF NOT EXISTS idx_validations_ts ON validations(ts);
`

// schemaAnalysisHistory holds the per-customer append-only advisory
// analysis history, keyed by timestamp.
const schemaAnalysisHistory = `
CREATE TABLE IF NOT EXISTS analysis_history (
    customer_id TEXT NOT NULL,
    ts TIMESTAMP NOT NULL,
    verdict TEXT NOT NULL,
    PRIMARY KEY (customer_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_analysis_customer ON analysis_history(customer_id);
`

const schemaScreenRules = `
CREATE TABLE IF NOT EXISTS screen_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_rules_enabled ON screen_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaProfileReports,
		schemaValidations,
		schemaAnalysisHistory,
		schemaScreenRules,
	}
}
