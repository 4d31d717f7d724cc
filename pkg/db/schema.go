package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    wallet_address TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS balances (
    wallet_address TEXT NOT NULL,
    currency TEXT NOT NULL,
    available TEXT NOT NULL DEFAULT '0',
    frozen TEXT NOT NULL DEFAULT '0',
    real_balance TEXT NOT NULL DEFAULT '0',
    real_winnings TEXT NOT NULL DEFAULT '0',
    version INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (wallet_address, currency)
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    asset TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    amount_usd TEXT NOT NULL,
    duration_secs INTEGER NOT NULL,
    profit_multiplier REAL NOT NULL,
    fee TEXT NOT NULL DEFAULT '0',
    status TEXT NOT NULL DEFAULT 'active',
    result TEXT,
    exit_price REAL,
    pnl TEXT,
    manual_outcome TEXT,
    manual_preset_by TEXT,
    manual_preset_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    expires_at DATETIME NOT NULL,
    closed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_trades_active_expiry ON trades(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet_address);

CREATE TABLE IF NOT EXISTS withdrawals (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    currency TEXT NOT NULL,
    crypto_amount TEXT NOT NULL,
    usdt_amount TEXT NOT NULL,
    fee TEXT NOT NULL DEFAULT '0',
    status TEXT NOT NULL DEFAULT 'pending',
    destination_address TEXT NOT NULL,
    tx_hash TEXT,
    admin_notes TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME,
    rejected_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status);

CREATE TABLE IF NOT EXISTS deposits (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    currency TEXT NOT NULL,
    crypto_amount TEXT NOT NULL,
    usdt_amount TEXT NOT NULL,
    conversion_rate REAL NOT NULL DEFAULT 0,
    tx_hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    admin_notes TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);

CREATE TABLE IF NOT EXISTS asset_tiers (
    duration_secs INTEGER PRIMARY KEY,
    profit_multiplier REAL NOT NULL,
    min_stake_usd TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "withdrawals", "admin_notes", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "deposits", "admin_notes", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "manual_preset_by", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "manual_preset_at", "DATETIME"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "balances", "real_winnings", "TEXT NOT NULL DEFAULT '0'"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "users", "role", "TEXT NOT NULL DEFAULT 'user'"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
