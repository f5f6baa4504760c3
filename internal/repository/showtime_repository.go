// Package repository contains data access logic.  This file persists
// showtimes.  Every write runs in a transaction; the database itself
// (an exclusion constraint on Postgres, row-locking triggers on MySQL)
// rejects a write that would overlap a live showtime in the same hall,
// and that rejection is reported as ErrOverlap.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

const showtimeCols = `id, hall_id, movie_id, starts_at, ends_at, status, deleted_at, created_at, updated_at, created_by, updated_by`

// ShowtimeRepo manages persistence for showtimes.
type ShowtimeRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewShowtimeRepo constructs a ShowtimeRepo for the given dialect.
func NewShowtimeRepo(db *sql.DB, d database.Dialect) *ShowtimeRepo {
	return &ShowtimeRepo{db: db, dialect: d}
}

func scanShowtime(sc rowScanner) (model.Showtime, error) {
	var (
		s         model.Showtime
		status    string
		deletedAt sql.NullTime
		createdBy sql.NullInt64
		updatedBy sql.NullInt64
	)
	err := sc.Scan(&s.ID, &s.HallID, &s.MovieID, &s.StartsAt, &s.EndsAt, &status,
		&deletedAt, &s.CreatedAt, &s.UpdatedAt, &createdBy, &updatedBy)
	if err != nil {
		return s, err
	}
	s.Status = model.Status(status)
	s.StartsAt = s.StartsAt.UTC()
	s.EndsAt = s.EndsAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		s.DeletedAt = &t
	}
	if createdBy.Valid {
		v := uint64(createdBy.Int64)
		s.CreatedBy = &v
	}
	if updatedBy.Valid {
		v := uint64(updatedBy.Int64)
		s.UpdatedBy = &v
	}
	return s, nil
}

// classify maps a driver error from a showtime write onto the package
// sentinels.
func (r *ShowtimeRepo) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case database.IsOverlapViolation(err):
		return wrapSentinel(op, ErrOverlap, err)
	case database.IsHallMissing(err):
		return wrapSentinel(op, ErrHallNotFound, err)
	case database.IsForeignKeyViolation(err):
		return wrapSentinel(op, ErrMovieNotFound, err)
	}
	return wrapErr(op, err)
}

// GetShowtime returns a showtime that has not been soft-deleted.
func (r *ShowtimeRepo) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	const op = "repository.ShowtimeRepo.GetShowtime"
	q := r.dialect.Rebind(`SELECT ` + showtimeCols + ` FROM showtimes WHERE id = ? AND deleted_at IS NULL`)
	s, err := scanShowtime(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrShowtimeNotFound
		}
		return nil, wrapErr(op, err)
	}
	return &s, nil
}

// ListActiveInWindow returns the showtimes of a hall that occupy it (not
// cancelled, not soft-deleted) and intersect [start, end), skipping
// excludeID.  Pass 0 to skip nothing.
func (r *ShowtimeRepo) ListActiveInWindow(ctx context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	const op = "repository.ShowtimeRepo.ListActiveInWindow"
	q := r.dialect.Rebind(`SELECT ` + showtimeCols + ` FROM showtimes
	      WHERE hall_id = ? AND id <> ? AND status <> 'CANCELLED' AND deleted_at IS NULL
	        AND starts_at < ? AND ends_at > ?
	      ORDER BY starts_at, id`)
	return r.list(ctx, op, q, hallID, excludeID, end.UTC(), start.UTC())
}

// ListByHall returns every showtime of a hall that has not been
// soft-deleted, ordered by start.
func (r *ShowtimeRepo) ListByHall(ctx context.Context, hallID uint64) ([]model.Showtime, error) {
	const op = "repository.ShowtimeRepo.ListByHall"
	q := r.dialect.Rebind(`SELECT ` + showtimeCols + ` FROM showtimes
	      WHERE hall_id = ? AND deleted_at IS NULL
	      ORDER BY starts_at, id`)
	return r.list(ctx, op, q, hallID)
}

func (r *ShowtimeRepo) list(ctx context.Context, op, q string, args ...any) ([]model.Showtime, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]model.Showtime, 0)
	for rows.Next() {
		s, err := scanShowtime(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}

// Insert stores a new showtime and fills in its ID and timestamps.
func (r *ShowtimeRepo) Insert(ctx context.Context, s *model.Showtime) error {
	const op = "repository.ShowtimeRepo.Insert"
	const q = `INSERT INTO showtimes (hall_id, movie_id, starts_at, ends_at, status, created_by, updated_by)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []any{s.HallID, s.MovieID, s.StartsAt.UTC(), s.EndsAt.UTC(), string(s.Status), s.CreatedBy, s.UpdatedBy}

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if r.dialect.SupportsReturning() {
			return tx.QueryRowContext(ctx, r.dialect.Rebind(q+` RETURNING id, created_at, updated_at`), args...).
				Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		s.ID = uint64(id)
		return tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM showtimes WHERE id = ?`, s.ID).
			Scan(&s.CreatedAt, &s.UpdatedAt)
	})
	return r.classify(op, err)
}

// lockHallOf locks the hall rows of showtime id and of any extra halls,
// in ascending id order, before the showtime row itself is locked.  The
// MySQL triggers take the hall lock first too, so writers of one hall
// always queue in the same order.
func (r *ShowtimeRepo) lockHallOf(ctx context.Context, tx *sql.Tx, id uint64, extra ...uint64) error {
	var hallID uint64
	cur := r.dialect.Rebind(`SELECT hall_id FROM showtimes WHERE id = ? AND deleted_at IS NULL`)
	if err := tx.QueryRowContext(ctx, cur, id).Scan(&hallID); err != nil {
		if isNoRows(err) {
			return ErrShowtimeNotFound
		}
		return err
	}
	halls := append([]uint64{hallID}, extra...)
	slices.Sort(halls)
	lock := r.dialect.Rebind(`SELECT id FROM halls WHERE id = ?` + r.dialect.ForUpdate())
	for _, h := range slices.Compact(halls) {
		var got uint64
		// A missing target hall is reported by the write itself.
		if err := tx.QueryRowContext(ctx, lock, h).Scan(&got); err != nil && !isNoRows(err) {
			return err
		}
	}
	return nil
}

// Update overwrites the mutable columns of a live showtime.  The hall
// rows and then the showtime row are locked so a concurrent soft delete
// cannot slip in between.
func (r *ShowtimeRepo) Update(ctx context.Context, s *model.Showtime) error {
	const op = "repository.ShowtimeRepo.Update"

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.lockHallOf(ctx, tx, s.ID, s.HallID); err != nil {
			return err
		}
		var id uint64
		lock := r.dialect.Rebind(`SELECT id FROM showtimes WHERE id = ? AND deleted_at IS NULL` + r.dialect.ForUpdate())
		if err := tx.QueryRowContext(ctx, lock, s.ID).Scan(&id); err != nil {
			if isNoRows(err) {
				return ErrShowtimeNotFound
			}
			return err
		}
		upd := r.dialect.Rebind(`UPDATE showtimes
		        SET hall_id = ?, movie_id = ?, starts_at = ?, ends_at = ?, status = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		        WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, upd, s.HallID, s.MovieID, s.StartsAt.UTC(), s.EndsAt.UTC(),
			string(s.Status), s.UpdatedBy, s.ID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, r.dialect.Rebind(`SELECT updated_at FROM showtimes WHERE id = ?`), s.ID).
			Scan(&s.UpdatedAt)
	})
	if errors.Is(err, ErrShowtimeNotFound) {
		return err
	}
	return r.classify(op, err)
}

// SoftDelete cancels a live showtime: it stays in the table with status
// CANCELLED and deleted_at set, and stops occupying its hall.
func (r *ShowtimeRepo) SoftDelete(ctx context.Context, id uint64, by *uint64) (*model.Showtime, error) {
	const op = "repository.ShowtimeRepo.SoftDelete"

	var out model.Showtime
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.lockHallOf(ctx, tx, id); err != nil {
			return err
		}
		sel := r.dialect.Rebind(`SELECT ` + showtimeCols + ` FROM showtimes WHERE id = ? AND deleted_at IS NULL` + r.dialect.ForUpdate())
		s, err := scanShowtime(tx.QueryRowContext(ctx, sel, id))
		if err != nil {
			if isNoRows(err) {
				return ErrShowtimeNotFound
			}
			return err
		}
		now := time.Now().UTC().Truncate(time.Second)
		upd := r.dialect.Rebind(`UPDATE showtimes
		        SET status = 'CANCELLED', deleted_at = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		        WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, upd, now, by, id); err != nil {
			return err
		}
		s.Status = model.StatusCancelled
		s.DeletedAt = &now
		s.UpdatedBy = by
		out = s
		return nil
	})
	if errors.Is(err, ErrShowtimeNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, r.classify(op, err)
	}
	return &out, nil
}
