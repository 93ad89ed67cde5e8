package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hoasen-edu/preschool-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "enroll_code", "state", "student_name", "student_age", "student_birth_date", "student_gender",
		"guardian_name", "guardian_birth_date", "guardian_gender", "guardian_document", "guardian_phone", "guardian_email", "guardian_address",
		"relationship", "reason", "notes", "sign_received", "signed_at", "signed_by", "signed_from", "created_at", "updated_at",
	}).AddRow(
		"app-1", "STUEN-20250101-001", "WAITING_CONFIRM", "Nguyễn Minh Khang", 3, now, "male",
		"Nguyễn Văn An", now, "male", "079090001234", "0901234567", "an.nguyen@example.com", "12 Lê Lợi",
		"father", "gần nhà", "", false, nil, nil, nil, now, now,
	)
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.EnrollmentApplication{
		EnrollCode:    "STUEN-20250101-001",
		StudentName:   "Nguyễn Minh Khang",
		GuardianName:  "Nguyễn Văn An",
		GuardianEmail: "an.nguyen@example.com",
	}
	require.NoError(t, repo.Create(context.Background(), app))
	require.NotEmpty(t, app.ID)
	require.Equal(t, models.StateWaitingConfirm, app.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery("SELECT .+ FROM enrollment_applications WHERE enroll_code").
		WithArgs("STUEN-20250101-001").
		WillReturnRows(applicationRows())

	app, err := repo.FindByCode(context.Background(), "STUEN-20250101-001")
	require.NoError(t, err)
	require.Equal(t, "STUEN-20250101-001", app.EnrollCode)
	require.Equal(t, models.StateWaitingConfirm, app.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListEligible(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery("SELECT .+ FROM enrollment_applications WHERE state IN").
		WithArgs(models.StateWaitingConfirm, models.StateError).
		WillReturnRows(applicationRows())

	eligible, err := repo.ListEligible(context.Background())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryClaimWins(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_applications SET state")).
		WithArgs("STUEN-20250101-001", models.StateWaitingProcessing, sqlmock.AnyArg(), models.StateWaitingConfirm, models.StateError).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Claim(context.Background(), "STUEN-20250101-001")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryClaimLoses(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_applications SET state")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Claim(context.Background(), "STUEN-20250101-001")
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryResolveFinished(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	signedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_applications")).
		WithArgs("STUEN-20250101-001", models.StateFinished, true, sqlmock.AnyArg(), "Nguyễn Văn An", "an.nguyen@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sign := models.SignInfo{Received: true, At: signedAt, By: "Nguyễn Văn An", From: "an.nguyen@example.com"}
	require.NoError(t, repo.Resolve(context.Background(), "STUEN-20250101-001", models.StateFinished, sign))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryResolveErrorClearsSign(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_applications")).
		WithArgs("STUEN-20250101-002", models.StateError, false, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Resolve(context.Background(), "STUEN-20250101-002", models.StateError, models.SignInfo{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollment_applications WHERE state IN")).
		WithArgs(models.StateWaitingConfirm, models.StateWaitingProcessing).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	total, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
