package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

var (
	t10  = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	t145 = time.Date(2030, 1, 1, 11, 45, 0, 0, time.UTC)
	tNow = time.Date(2029, 12, 31, 9, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func showtimeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "hall_id", "movie_id", "starts_at", "ends_at", "status",
		"deleted_at", "created_at", "updated_at", "created_by", "updated_by"})
}

func newShowtime() *model.Showtime {
	by := uint64(7)
	return &model.Showtime{HallID: 1, MovieID: 10, StartsAt: t10, EndsAt: t145, Status: model.StatusActive, CreatedBy: &by, UpdatedBy: &by}
}

func TestShowtimeRepo_InsertMySQL(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO showtimes (hall_id, movie_id, starts_at, ends_at, status, created_by, updated_by)")).
		WithArgs(uint64(1), uint64(10), t10, t145, "ACTIVE", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT created_at, updated_at FROM showtimes WHERE id = ?")).
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(tNow, tNow))
	mock.ExpectCommit()

	s := newShowtime()
	require.NoError(t, repo.Insert(context.Background(), s))
	assert.Equal(t, uint64(42), s.ID)
	assert.Equal(t, tNow, s.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_InsertPostgresUsesReturning(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, tNow, tNow))
	mock.ExpectCommit()

	s := newShowtime()
	require.NoError(t, repo.Insert(context.Background(), s))
	assert.Equal(t, uint64(5), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_InsertClassifiesDriverErrors(t *testing.T) {
	tests := []struct {
		name    string
		dialect database.Dialect
		err     error
		want    error
	}{
		{"mysql trigger overlap", database.MySQL, &mysql.MySQLError{Number: database.MySQLErrOverlap, Message: "showtimes_no_overlap"}, ErrOverlap},
		{"mysql trigger missing hall", database.MySQL, &mysql.MySQLError{Number: database.MySQLErrHallNotFound}, ErrHallNotFound},
		{"mysql movie fk", database.MySQL, &mysql.MySQLError{Number: 1452}, ErrMovieNotFound},
		{"mysql deadlock", database.MySQL, &mysql.MySQLError{Number: 1213}, ErrTransient},
		{"mysql lock wait", database.MySQL, &mysql.MySQLError{Number: 1205}, ErrTransient},
		{"pg exclusion", database.Postgres, &pgconn.PgError{Code: "23P01", ConstraintName: database.ConstraintNoOverlap}, ErrOverlap},
		{"pg hall fk", database.Postgres, &pgconn.PgError{Code: "23503", ConstraintName: database.ConstraintHallFK}, ErrHallNotFound},
		{"pg movie fk", database.Postgres, &pgconn.PgError{Code: "23503", ConstraintName: database.ConstraintMovieFK}, ErrMovieNotFound},
		{"pg serialization", database.Postgres, &pgconn.PgError{Code: "40001"}, ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewShowtimeRepo(db, tt.dialect)

			mock.ExpectBegin()
			if tt.dialect == database.Postgres {
				mock.ExpectQuery("INSERT INTO showtimes").WillReturnError(tt.err)
			} else {
				mock.ExpectExec("INSERT INTO showtimes").WillReturnError(tt.err)
			}
			mock.ExpectRollback()

			err := repo.Insert(context.Background(), newShowtime())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestShowtimeRepo_InsertUnknownErrorIsNotTransient(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO showtimes").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := repo.Insert(context.Background(), newShowtime())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrOverlap)
}

func TestShowtimeRepo_GetShowtime(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)

	mock.ExpectQuery(regexp.QuoteMeta("FROM showtimes WHERE id = ? AND deleted_at IS NULL")).
		WithArgs(uint64(3)).
		WillReturnRows(showtimeRows().AddRow(3, 1, 10, t10, t145, "INACTIVE", nil, tNow, tNow, 7, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM showtimes WHERE id = ? AND deleted_at IS NULL")).
		WithArgs(uint64(4)).
		WillReturnError(sql.ErrNoRows)

	s, err := repo.GetShowtime(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, s.Status)
	assert.Equal(t, t145, s.EndsAt)
	require.NotNil(t, s.CreatedBy)
	assert.Equal(t, uint64(7), *s.CreatedBy)
	assert.Nil(t, s.UpdatedBy)
	assert.Nil(t, s.DeletedAt)

	_, err = repo.GetShowtime(context.Background(), 4)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_ListActiveInWindowFiltersInSQL(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.Postgres)
	end := t145.Add(time.Hour)

	mock.ExpectQuery(`WHERE hall_id = \$1 AND id <> \$2 AND status <> 'CANCELLED' AND deleted_at IS NULL\s+AND starts_at < \$3 AND ends_at > \$4`).
		WithArgs(uint64(1), uint64(9), end, t10).
		WillReturnRows(showtimeRows().
			AddRow(1, 1, 10, t10, t145, "ACTIVE", nil, tNow, tNow, nil, nil).
			AddRow(2, 1, 10, t145, t145.Add(105*time.Minute), "ACTIVE", nil, tNow, tNow, nil, nil))

	rows, err := repo.ListActiveInWindow(context.Background(), 1, t10, end, 9)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(2), rows[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// expectHallLocks expects the current hall of showtime id to be read and
// then each hall row to be locked in the given order.
func expectHallLocks(mock sqlmock.Sqlmock, id, current uint64, halls ...uint64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT hall_id FROM showtimes WHERE id = ? AND deleted_at IS NULL")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"hall_id"}).AddRow(current))
	for _, h := range halls {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM halls WHERE id = ? FOR UPDATE")).
			WithArgs(h).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(h))
	}
}

func TestShowtimeRepo_Update(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)
	s := newShowtime()
	s.ID = 3

	mock.ExpectBegin()
	expectHallLocks(mock, 3, 1, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM showtimes WHERE id = ? AND deleted_at IS NULL FOR UPDATE")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE showtimes")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT updated_at FROM showtimes WHERE id = ?")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(tNow))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), s))
	assert.Equal(t, tNow, s.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_UpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)
	s := newShowtime()
	s.ID = 3

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT hall_id FROM showtimes").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Update(context.Background(), s)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_UpdateOverlapFromTrigger(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)
	s := newShowtime()
	s.ID = 3

	mock.ExpectBegin()
	expectHallLocks(mock, 3, 1, 1)
	mock.ExpectQuery("SELECT id FROM showtimes").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("UPDATE showtimes").WillReturnError(&mysql.MySQLError{Number: database.MySQLErrOverlap})
	mock.ExpectRollback()

	err := repo.Update(context.Background(), s)
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestShowtimeRepo_UpdateLocksHallsInIDOrderBeforeShowtime(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)
	s := newShowtime()
	s.ID = 3
	s.HallID = 2 // moving from hall 5 to hall 2

	mock.ExpectBegin()
	expectHallLocks(mock, 3, 5, 2, 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM showtimes WHERE id = ? AND deleted_at IS NULL FOR UPDATE")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE showtimes")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT updated_at FROM showtimes WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(tNow))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_SoftDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)
	by := uint64(7)

	mock.ExpectBegin()
	expectHallLocks(mock, 3, 1, 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM showtimes WHERE id = ? AND deleted_at IS NULL FOR UPDATE")).
		WithArgs(uint64(3)).
		WillReturnRows(showtimeRows().AddRow(3, 1, 10, t10, t145, "ACTIVE", nil, tNow, tNow, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'CANCELLED', deleted_at = ?")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := repo.SoftDelete(context.Background(), 3, &by)

	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, s.Status)
	assert.NotNil(t, s.DeletedAt)
	assert.False(t, s.Live())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeRepo_SoftDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowtimeRepo(db, database.MySQL)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT hall_id FROM showtimes").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.SoftDelete(context.Background(), 3, nil)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
}

func TestScheduleStore_GetMovie(t *testing.T) {
	db, mock := newMock(t)
	store := NewScheduleStore(NewShowtimeRepo(db, database.MySQL), NewMovieRepo(db, database.MySQL))

	mock.ExpectQuery(regexp.QuoteMeta("FROM movies WHERE id = ? AND deleted_at IS NULL")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "duration_min", "created_at", "updated_at"}).
			AddRow(10, "Heat", 170, tNow, tNow))
	mock.ExpectQuery("FROM movies").WithArgs(uint64(11)).WillReturnError(sql.ErrNoRows)

	m, err := store.GetMovie(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 170, m.DurationMin)

	_, err = store.GetMovie(context.Background(), 11)
	assert.ErrorIs(t, err, ErrMovieNotFound)
}
