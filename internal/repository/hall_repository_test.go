package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

func hallRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "name", "description", "is_active", "created_at", "updated_at"})
}

func TestHallRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHallRepo(db, database.MySQL)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO halls (owner_id, name, description) VALUES (?, ?, ?)")).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM halls WHERE id = ?")).
		WithArgs(uint64(9)).
		WillReturnRows(hallRows().AddRow(9, 1, "Hall A", nil, true, tNow, tNow))

	h := &model.Hall{OwnerID: 1, Name: "Hall A"}
	require.NoError(t, repo.Create(context.Background(), h))
	assert.Equal(t, uint64(9), h.ID)
	assert.True(t, h.IsActive)
	assert.Nil(t, h.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHallRepo_CreateDuplicateName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHallRepo(db, database.MySQL)

	mock.ExpectExec("INSERT INTO halls").WillReturnError(&mysql.MySQLError{Number: 1062})

	err := repo.Create(context.Background(), &model.Hall{OwnerID: 1, Name: "Hall A"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHallRepo_GetByIDAndOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHallRepo(db, database.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("FROM halls WHERE id = $1 AND owner_id = $2")).
		WithArgs(uint64(9), uint64(1)).
		WillReturnRows(hallRows().AddRow(9, 1, "Hall A", "IMAX", true, tNow, tNow))
	mock.ExpectQuery(regexp.QuoteMeta("FROM halls WHERE id = $1 AND owner_id = $2")).
		WithArgs(uint64(9), uint64(2)).
		WillReturnError(sql.ErrNoRows)

	h, err := repo.GetByIDAndOwner(context.Background(), 9, 1)
	require.NoError(t, err)
	require.NotNil(t, h.Description)
	assert.Equal(t, "IMAX", *h.Description)

	_, err = repo.GetByIDAndOwner(context.Background(), 9, 2)
	assert.ErrorIs(t, err, ErrHallNotFound)
}
