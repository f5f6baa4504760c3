package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// MovieRepo persists movies.  A movie supplies the runtime that every
// one of its showtimes is measured against.
type MovieRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewMovieRepo constructs a MovieRepo.
func NewMovieRepo(db *sql.DB, d database.Dialect) *MovieRepo {
	return &MovieRepo{db: db, dialect: d}
}

// Create inserts a movie and fills in its ID and timestamps.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	const op = "repository.MovieRepo.Create"
	const q = `INSERT INTO movies (title, duration_min) VALUES (?, ?)`

	if r.dialect.SupportsReturning() {
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q+` RETURNING id, created_at, updated_at`), m.Title, m.DurationMin).
			Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		return wrapErr(op, err)
	}
	res, err := r.db.ExecContext(ctx, q, m.Title, m.DurationMin)
	if err != nil {
		return wrapErr(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr(op, err)
	}
	m.ID = uint64(id)
	err = r.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM movies WHERE id = ?`, m.ID).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	return wrapErr(op, err)
}

// GetByID returns a movie that has not been soft-deleted.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	const op = "repository.MovieRepo.GetByID"
	q := r.dialect.Rebind(`SELECT id, title, duration_min, created_at, updated_at FROM movies WHERE id = ? AND deleted_at IS NULL`)
	var m model.Movie
	err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Title, &m.DurationMin, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrMovieNotFound
		}
		return nil, wrapErr(op, err)
	}
	return &m, nil
}

// List returns all live movies ordered by title.
func (r *MovieRepo) List(ctx context.Context) ([]model.Movie, error) {
	const op = "repository.MovieRepo.List"
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, duration_min, created_at, updated_at FROM movies WHERE deleted_at IS NULL ORDER BY title, id`)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]model.Movie, 0)
	for rows.Next() {
		var m model.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.DurationMin, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, m)
	}
	return out, wrapErr(op, rows.Err())
}
