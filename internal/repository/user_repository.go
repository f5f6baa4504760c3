package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/utils"
)

// UserRepo persists users.
type UserRepo struct {
	DB      *sql.DB
	dialect database.Dialect
}

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{DB: db, dialect: d} }

var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

const userCols = "id,email,password_hash,role,is_active,created_at,updated_at"

// Create hashes the password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	const op = "repository.UserRepo.Create"
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	const q = "INSERT INTO users (email, password_hash, role) VALUES (?,?,?)"
	var id uint64
	if r.dialect.SupportsReturning() {
		err = r.DB.QueryRowContext(ctx, r.dialect.Rebind(q+" RETURNING id"), email, hash, role).Scan(&id)
	} else {
		var res sql.Result
		res, err = r.DB.ExecContext(ctx, q, email, hash, role)
		if err == nil {
			var n int64
			n, err = res.LastInsertId()
			id = uint64(n)
		}
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrEmailExists
		}
		return 0, wrapErr(op, err)
	}
	return id, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "repository.UserRepo.GetByEmail",
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "repository.UserRepo.GetByID",
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, op, q string, arg any) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, r.dialect.Rebind(q), arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return u, ErrUserNotFound
		}
		return u, wrapErr(op, err)
	}
	return u, nil
}
