// Package ledger owns the per-wallet, per-currency balance records.
//
// Every mutation runs inside a caller-supplied transaction and is guarded by
// the row version, so settlement and approval flows racing on the same wallet
// can never lose an update. The ledger itself emits no events; callers publish
// after their transaction commits.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"options-core/pkg/db"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds reports a decrement that would drive a balance
// partition negative. This indicates a broken precondition upstream (a trade
// opened without its stake reserved, an approval without a freeze) and is
// fatal, never clamped.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Delta is the set of signed adjustments applied atomically to one balance row.
// Zero fields leave their partition untouched.
type Delta struct {
	Available    decimal.Decimal
	Frozen       decimal.Decimal
	RealBalance  decimal.Decimal
	RealWinnings decimal.Decimal
}

// Ledger provides balance reads and transactional adjustments.
type Ledger struct {
	database *db.Database
}

func New(database *db.Database) *Ledger {
	return &Ledger{database: database}
}

// Get returns the balance row for (wallet, currency); absent rows read as all
// zero so a wallet never needs explicit initialization.
func (l *Ledger) Get(ctx context.Context, wallet, currency string) (db.Balance, error) {
	b := db.Balance{WalletAddress: wallet, Currency: currency}
	err := l.database.DB.QueryRowContext(ctx, `
		SELECT available, frozen, real_balance, real_winnings, version, updated_at
		FROM balances WHERE wallet_address = ? AND currency = ?`,
		wallet, currency).Scan(
		&b.Available, &b.Frozen, &b.RealBalance, &b.RealWinnings, &b.Version, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("get balance %s/%s: %w", wallet, currency, err)
	}
	return b, nil
}

// Adjust applies d to the balance row inside tx and returns the new state.
// The row is created on first touch. Invariants available >= 0 and frozen >= 0
// are enforced here; a violation returns ErrInsufficientFunds and the caller
// must roll back the enclosing transaction.
func (l *Ledger) Adjust(ctx context.Context, tx *sql.Tx, wallet, currency string, d Delta) (db.Balance, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO balances (wallet_address, currency) VALUES (?, ?)`,
		wallet, currency); err != nil {
		return db.Balance{}, fmt.Errorf("ensure balance row: %w", err)
	}

	var cur db.Balance
	err := tx.QueryRowContext(ctx, `
		SELECT available, frozen, real_balance, real_winnings, version
		FROM balances WHERE wallet_address = ? AND currency = ?`,
		wallet, currency).Scan(
		&cur.Available, &cur.Frozen, &cur.RealBalance, &cur.RealWinnings, &cur.Version)
	if err != nil {
		return db.Balance{}, fmt.Errorf("read balance %s/%s: %w", wallet, currency, err)
	}

	next := db.Balance{
		WalletAddress: wallet,
		Currency:      currency,
		Available:     cur.Available.Add(d.Available),
		Frozen:        cur.Frozen.Add(d.Frozen),
		RealBalance:   cur.RealBalance.Add(d.RealBalance),
		RealWinnings:  cur.RealWinnings.Add(d.RealWinnings),
		Version:       cur.Version + 1,
	}
	if next.Available.IsNegative() || next.Frozen.IsNegative() {
		return db.Balance{}, fmt.Errorf("adjust %s/%s (available %s, frozen %s): %w",
			wallet, currency, next.Available, next.Frozen, ErrInsufficientFunds)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE balances
		SET available = ?, frozen = ?, real_balance = ?, real_winnings = ?,
		    version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet_address = ? AND currency = ? AND version = ?`,
		next.Available.String(), next.Frozen.String(), next.RealBalance.String(),
		next.RealWinnings.String(), next.Version, wallet, currency, cur.Version)
	if err != nil {
		return db.Balance{}, fmt.Errorf("write balance %s/%s: %w", wallet, currency, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Balance{}, err
	}
	if n == 0 {
		// A concurrent writer bumped the version between our read and write;
		// the enclosing transaction must be retried from scratch.
		return db.Balance{}, fmt.Errorf("adjust %s/%s: version conflict", wallet, currency)
	}
	return next, nil
}
