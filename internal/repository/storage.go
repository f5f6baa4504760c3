package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// wrapErr annotates err with the operation name and, when the driver
// reports a retryable failure, marks it with ErrTransient.  The driver
// error is kept in the chain for logging.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inTx runs fn inside a transaction and commits it when fn succeeds.
// Errors are returned unclassified; callers map them.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// wrapSentinel reports sentinel to callers while keeping the driver
// error in the chain.
func wrapSentinel(op string, sentinel, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
