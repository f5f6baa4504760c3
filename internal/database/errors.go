package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error numbers raised by the MySQL showtime triggers.
const (
	MySQLErrOverlap      = 45001
	MySQLErrHallNotFound = 45002
)

// Constraint names shared by both schemas.
const (
	ConstraintNoOverlap = "showtimes_no_overlap"
	ConstraintHallFK    = "showtimes_hall_id_fkey"
	ConstraintMovieFK   = "showtimes_movie_id_fkey"
)

// MySQL server error numbers used for classification.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlNoReferencedRow = 1452
)

// Postgres SQLSTATE codes used for classification.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgAdminShutdown        = "57P01"
)

// IsOverlapViolation reports whether err is the storage-level rejection
// of an overlapping showtime.
func IsOverlapViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == MySQLErrOverlap
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgExclusionViolation
	}
	return false
}

// IsHallMissing reports whether a showtime write referenced a hall that
// does not exist.
func IsHallMissing(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == MySQLErrHallNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgForeignKeyViolation && pe.ConstraintName == ConstraintHallFK
	}
	return false
}

// IsForeignKeyViolation reports whether err is any foreign key failure.
func IsForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlNoReferencedRow
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgForeignKeyViolation
	}
	return false
}

// IsUniqueViolation reports whether err is a duplicate key failure.
func IsUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	return false
}

// IsTransient reports whether retrying the same statement may succeed:
// lock timeouts, deadlocks, serialization failures, lost connections and
// expired deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlLockWaitTimeout || me.Number == mysqlDeadlock
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch {
		case pe.Code == pgSerializationFailure,
			pe.Code == pgDeadlockDetected,
			pe.Code == pgAdminShutdown,
			len(pe.Code) == 5 && pe.Code[:2] == "08":
			return true
		}
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return pgconn.SafeToRetry(err)
}
