package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx starts a transaction and runs fn. COMMIT if fn returns nil,
// ROLLBACK otherwise.
func RunInTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReadOnly runs fn in a read-only transaction.
func ReadOnly(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, db, &sql.TxOptions{ReadOnly: true}, fn)
}

// TxRunner is the transaction boundary the services depend on, so that tests
// can substitute an in-memory runner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

type Runner struct{ db *sql.DB }

func NewRunner(db *sql.DB) *Runner { return &Runner{db: db} }

func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, r.db, nil, fn)
}

// MySQL error numbers for deadlock and lock wait timeout.
const (
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
)

// IsRetryable reports whether err is a transient concurrency failure the
// caller may resubmit (deadlock victim, lock wait timeout).
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrLockDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return false
}
