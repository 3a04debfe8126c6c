package sqlutil

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// maxAttempts bounds retries of transactions that Postgres aborted for
// serialization or deadlock reasons.
const maxAttempts = 3

// Retryable reports whether err is a Postgres serialization failure or
// deadlock, after which the whole transaction may simply be run again.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}

// Run executes fn inside a transaction with statements bound by bind. A
// failing fn rolls back; otherwise the transaction commits. Retryable
// failures run fn again, so fn must not keep side effects outside tx.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	bind func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = runOnce(ctx, db, bind, fn); !Retryable(err) {
			return err
		}
	}
	return err
}

func runOnce[T any](ctx context.Context, db *sql.DB, bind func(*sql.Tx) *T, fn func(q *T) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
