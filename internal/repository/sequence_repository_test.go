package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newSequenceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSequenceRepositoryNext(t *testing.T) {
	db, mock, cleanup := newSequenceRepoMock(t)
	defer cleanup()

	repo := NewSequenceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO code_sequences (prefix, value) VALUES ($1, 1)")).
		WithArgs("STUEN-20250101").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(4))

	value, err := repo.Next(context.Background(), "STUEN-20250101")
	require.NoError(t, err)
	require.Equal(t, 4, value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepositoryNextIndependentPrefixes(t *testing.T) {
	db, mock, cleanup := newSequenceRepoMock(t)
	defer cleanup()

	repo := NewSequenceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO code_sequences")).
		WithArgs("STUEN-20250101").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO code_sequences")).
		WithArgs("STU-25").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(1))

	v1, err := repo.Next(context.Background(), "STUEN-20250101")
	require.NoError(t, err)
	v2, err := repo.Next(context.Background(), "STU-25")
	require.NoError(t, err)
	require.Equal(t, 7, v1)
	require.Equal(t, 1, v2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepositoryNextError(t *testing.T) {
	db, mock, cleanup := newSequenceRepoMock(t)
	defer cleanup()

	repo := NewSequenceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO code_sequences")).
		WillReturnError(errors.New("db down"))

	_, err := repo.Next(context.Background(), "STUEN-20250101")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
