// Package db provides the SQLite storage layer for the options core.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const tradeColumns = `
	id, wallet_address, asset, side, entry_price, amount_usd, duration_secs,
	profit_multiplier, fee, status, result, exit_price, pnl, manual_outcome,
	manual_preset_by, manual_preset_at, created_at, expires_at, closed_at`

func scanTrade(row interface{ Scan(...any) error }) (*Trade, error) {
	var t Trade
	err := row.Scan(
		&t.ID, &t.WalletAddress, &t.Asset, &t.Side, &t.EntryPrice, &t.AmountUSD,
		&t.DurationSecs, &t.ProfitMultiplier, &t.Fee, &t.Status, &t.Result,
		&t.ExitPrice, &t.PnL, &t.ManualOutcome, &t.ManualPresetBy,
		&t.ManualPresetAt, &t.CreatedAt, &t.ExpiresAt, &t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTrade returns a trade by id, or nil when absent.
func (d *Database) GetTrade(ctx context.Context, id string) (*Trade, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetTradeTx reads a trade inside an open transaction.
func GetTradeTx(ctx context.Context, tx *sql.Tx, id string) (*Trade, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTradesByWallet returns a wallet's trades, newest first.
func (d *Database) ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE wallet_address = ?
		ORDER BY created_at DESC LIMIT ?`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListExpiredActiveTradeIDs returns ids of active trades whose expiry has
// passed as of now. The sweep settles each one individually.
func (d *Database) ListExpiredActiveTradeIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id FROM trades
		WHERE status = ? AND expires_at <= ?
		ORDER BY expires_at ASC LIMIT ?`, TradeStatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const withdrawalColumns = `
	id, wallet_address, currency, crypto_amount, usdt_amount, fee, status,
	destination_address, tx_hash, admin_notes, created_at, processed_at, rejected_at`

func scanWithdrawal(row interface{ Scan(...any) error }) (*Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(
		&w.ID, &w.WalletAddress, &w.Currency, &w.CryptoAmount, &w.USDTAmount,
		&w.Fee, &w.Status, &w.DestinationAddress, &w.TxHash, &w.AdminNotes,
		&w.CreatedAt, &w.ProcessedAt, &w.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWithdrawal returns a withdrawal by id, or nil when absent.
func (d *Database) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// GetWithdrawalTx reads a withdrawal inside an open transaction.
func GetWithdrawalTx(ctx context.Context, tx *sql.Tx, id string) (*Withdrawal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// ListWithdrawalsByStatus returns withdrawals in a given review state.
func (d *Database) ListWithdrawalsByStatus(ctx context.Context, status string, limit int) ([]Withdrawal, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = ? ORDER BY created_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

const depositColumns = `
	id, wallet_address, currency, crypto_amount, usdt_amount, conversion_rate,
	tx_hash, status, admin_notes, created_at, processed_at`

func scanDeposit(row interface{ Scan(...any) error }) (*Deposit, error) {
	var dep Deposit
	err := row.Scan(
		&dep.ID, &dep.WalletAddress, &dep.Currency, &dep.CryptoAmount,
		&dep.USDTAmount, &dep.ConversionRate, &dep.TxHash, &dep.Status,
		&dep.AdminNotes, &dep.CreatedAt, &dep.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// GetDeposit returns a deposit by id, or nil when absent.
func (d *Database) GetDeposit(ctx context.Context, id string) (*Deposit, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = ?`, id)
	dep, err := scanDeposit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return dep, err
}

// GetDepositTx reads a deposit inside an open transaction.
func GetDepositTx(ctx context.Context, tx *sql.Tx, id string) (*Deposit, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = ?`, id)
	dep, err := scanDeposit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return dep, err
}

// GetUserByEmail returns a user by email, or nil when absent.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, wallet_address, created_at, updated_at
		FROM users WHERE email = ?`, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.WalletAddress, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetTier returns the payout tier for a duration, or nil when none is configured.
func (d *Database) GetTier(ctx context.Context, durationSecs int64) (*AssetTier, error) {
	var t AssetTier
	err := d.DB.QueryRowContext(ctx, `
		SELECT duration_secs, profit_multiplier, min_stake_usd
		FROM asset_tiers WHERE duration_secs = ?`, durationSecs).Scan(
		&t.DurationSecs, &t.ProfitMultiplier, &t.MinStakeUSD)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTiers returns all configured payout tiers ordered by duration.
func (d *Database) ListTiers(ctx context.Context) ([]AssetTier, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT duration_secs, profit_multiplier, min_stake_usd
		FROM asset_tiers ORDER BY duration_secs ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssetTier
	for rows.Next() {
		var t AssetTier
		if err := rows.Scan(&t.DurationSecs, &t.ProfitMultiplier, &t.MinStakeUSD); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
