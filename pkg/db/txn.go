package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrAlreadyProcessed reports a state-guarded transition attempted on a record
// that is no longer in its expected source state. Benign under duplicate
// submission; callers treat it as "nothing to do".
var ErrAlreadyProcessed = errors.New("record already processed")

// ErrNotFound reports a missing trade/withdrawal/deposit id.
var ErrNotFound = errors.New("record not found")

// Set is one extra column assignment applied together with a transition.
type Set struct {
	Column string
	Value  any
}

// CompareAndTransition flips a record's status from one expected state to
// another with a conditional UPDATE (id AND status = from). Exactly one of any
// number of racing callers observes an affected row; the rest get
// ErrAlreadyProcessed and must perform no side effects. This is the only
// concurrency guard used for trades, withdrawals and deposits.
func CompareAndTransition(ctx context.Context, tx *sql.Tx, table, id, from, to string, sets ...Set) error {
	stmt := "UPDATE " + table + " SET status = ?"
	args := []any{to}
	for _, s := range sets {
		stmt += ", " + s.Column + " = ?"
		args = append(args, s.Value)
	}
	stmt += " WHERE id = ? AND status = ?"
	args = append(args, id, from)

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("transition %s %s->%s: %w", table, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling the
// whole unit back on any error so partial mutations are never observable.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
