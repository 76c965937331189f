package services

import (
	"context"
	"errors"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runInTx executes fn inside a transaction and retries the whole unit on
// write conflicts. fn must be safe to re-run from scratch; it re-reads
// everything it depends on, so a retry observes the winner's committed
// state and usually degrades into a no-op.
func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return retry.Do(
		func() error {
			tx, err := db.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = tx.Rollback(ctx)
			}()

			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
		retry.RetryIf(isWriteConflict),
	)
}

// isWriteConflict matches PostgreSQL serialization failures and deadlocks,
// the only errors worth re-running a transaction for.
func isWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// noRows reports whether err is the pgx "no matching row" sentinel, which
// conditional updates return when their guard no longer holds.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
