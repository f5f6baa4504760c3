package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
)

// ErrTokenInvalid is returned for unknown, revoked or expired refresh tokens.
var ErrTokenInvalid = errors.New("refresh token invalid")

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct {
	DB      *sql.DB
	dialect database.Dialect
	now     func() time.Time
}

func NewTokenRepo(db *sql.DB, d database.Dialect) *TokenRepo {
	return &TokenRepo{DB: db, dialect: d, now: time.Now}
}

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)"),
		userID, tokenHash, exp.UTC())
	return wrapErr("repository.TokenRepo.StoreRefresh", err)
}

// ValidateRefresh returns userID if a non-revoked, non-expired token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1"),
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if isNoRows(err) {
			return 0, ErrTokenInvalid
		}
		return 0, wrapErr("repository.TokenRepo.ValidateRefresh", err)
	}
	if revokedAt.Valid || r.now().UTC().After(expiresAt) {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		r.dialect.Rebind("UPDATE refresh_tokens SET revoked_at=CURRENT_TIMESTAMP WHERE token_hash=? AND revoked_at IS NULL"),
		tokenHash)
	return wrapErr("repository.TokenRepo.RevokeByHash", err)
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		r.dialect.Rebind("UPDATE refresh_tokens SET revoked_at=CURRENT_TIMESTAMP WHERE user_id=? AND revoked_at IS NULL"),
		userID)
	return wrapErr("repository.TokenRepo.RevokeAllForUser", err)
}
