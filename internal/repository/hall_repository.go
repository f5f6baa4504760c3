package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
	"errors"       // errors package allows sentinel error definitions
	"fmt"          // fmt wraps sentinels with the operation name

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// ErrHallNotFound is returned when a hall lookup fails.
var ErrHallNotFound = errors.New("hall not found")

const hallCols = `id, owner_id, name, description, is_active, created_at, updated_at`

// HallRepo provides methods to create and retrieve halls.  A hall is the
// unit of exclusion for showtimes: two live showtimes never overlap inside
// the same hall.
type HallRepo struct {
	db      *sql.DB          // db is the underlying database connection
	dialect database.Dialect // dialect rewrites placeholders for Postgres
}

// NewHallRepo constructs a HallRepo with the given DB handle.
func NewHallRepo(db *sql.DB, d database.Dialect) *HallRepo {
	return &HallRepo{db: db, dialect: d}
}

func scanHall(sc rowScanner) (*model.Hall, error) {
	var (
		h    model.Hall
		desc sql.NullString
	)
	if err := sc.Scan(&h.ID, &h.OwnerID, &h.Name, &desc, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		h.Description = &desc.String
	}
	return &h, nil
}

// Create inserts a new hall into the database.  The hall must have
// OwnerID and Name set.  After insert the ID and the database defaults
// (is_active, created_at, updated_at) are filled in.  A duplicate name
// for the same owner yields ErrConflict.
func (r *HallRepo) Create(ctx context.Context, h *model.Hall) error {
	const op = "repository.HallRepo.Create"
	const qInsert = `INSERT INTO halls (owner_id, name, description) VALUES (?, ?, ?)`

	var id uint64
	if r.dialect.SupportsReturning() {
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(qInsert+` RETURNING id`), h.OwnerID, h.Name, h.Description).Scan(&id)
		if err != nil {
			return r.classify(op, err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, qInsert, h.OwnerID, h.Name, h.Description)
		if err != nil {
			return r.classify(op, err)
		}
		n, err := res.LastInsertId()
		if err != nil {
			return wrapErr(op, err)
		}
		id = uint64(n)
	}

	// Read the row back so the defaults are populated.
	got, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*h = *got
	return nil
}

func (r *HallRepo) classify(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return wrapErr(op, err)
}

// GetByID retrieves a hall by its ID regardless of owner.  It returns
// ErrHallNotFound when no row is found.
func (r *HallRepo) GetByID(ctx context.Context, id uint64) (*model.Hall, error) {
	const op = "repository.HallRepo.GetByID"
	q := r.dialect.Rebind(`SELECT ` + hallCols + ` FROM halls WHERE id = ?`)
	h, err := scanHall(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrHallNotFound
		}
		return nil, wrapErr(op, err)
	}
	return h, nil
}

// GetByIDAndOwner retrieves a hall but only if it belongs to the given
// owner.  This helper is used to enforce resource ownership before the
// schedule of a hall is changed.  If no matching hall is found,
// ErrHallNotFound is returned.
func (r *HallRepo) GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.Hall, error) {
	const op = "repository.HallRepo.GetByIDAndOwner"
	q := r.dialect.Rebind(`SELECT ` + hallCols + ` FROM halls WHERE id = ? AND owner_id = ?`)
	h, err := scanHall(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrHallNotFound
		}
		return nil, wrapErr(op, err)
	}
	return h, nil
}

// List returns every active hall ordered by ID.  It backs the public
// hall listing.
func (r *HallRepo) List(ctx context.Context) ([]*model.Hall, error) {
	const op = "repository.HallRepo.List"
	q := `SELECT ` + hallCols + ` FROM halls WHERE is_active = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]*model.Hall, 0)
	for rows.Next() {
		h, err := scanHall(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}
