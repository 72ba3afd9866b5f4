package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleEnrollment() *models.Enrollment {
	return &models.Enrollment{
		ID:        "enr-1",
		SessionID: "sess-1",
		StudentID: "1XX21CS001",
		CourseID:  "course-1",
		CreatedAt: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestEnrollmentRepositoryCommit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	e := sampleEnrollment()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEnrollmentQuery)).
		WithArgs(e.ID, e.SessionID, e.StudentID, e.CourseID, e.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(fillSeatQuery)).
		WithArgs(e.CourseID, e.SessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(countApplicantQuery)).
		WithArgs(e.SessionID, e.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Commit(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCommitDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	e := sampleEnrollment()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEnrollmentQuery)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_session_id_student_id_key"})
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), e)
	require.ErrorIs(t, err, enrollment.ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCommitSeatGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	e := sampleEnrollment()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEnrollmentQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(fillSeatQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), e)
	require.ErrorIs(t, err, enrollment.ErrSeatsExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCommitClosedSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	e := sampleEnrollment()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEnrollmentQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(fillSeatQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(countApplicantQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), e)
	require.ErrorIs(t, err, enrollment.ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCommitDriverError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEnrollmentQuery)).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), sampleEnrollment())
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindBySessionAndStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	query := regexp.QuoteMeta("SELECT id, session_id, student_id, course_id, created_at FROM enrollments WHERE session_id = $1 AND student_id = $2")
	mock.ExpectQuery(query).WithArgs("sess-1", "1XX21CS001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "student_id", "course_id", "created_at"}).
			AddRow("enr-1", "sess-1", "1XX21CS001", "course-1", time.Now()))
	mock.ExpectQuery(query).WithArgs("sess-1", "1XX21CS002").WillReturnError(sql.ErrNoRows)

	e, err := repo.FindBySessionAndStudent(context.Background(), "sess-1", "1XX21CS001")
	require.NoError(t, err)
	require.Equal(t, "course-1", e.CourseID)

	e, err = repo.FindBySessionAndStudent(context.Background(), "sess-1", "1XX21CS002")
	require.NoError(t, err)
	require.Nil(t, e)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE session_id = $1 ORDER BY created_at")).WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "student_id", "course_id", "created_at"}).
			AddRow("enr-1", "sess-1", "1XX21CS001", "course-1", time.Now()).
			AddRow("enr-2", "sess-1", "1XX21CS002", "course-2", time.Now()))

	rows, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "course-2", rows[1].CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListExportRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e")).WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "department_id", "course_code", "course_name", "created_at"}).
			AddRow("1XX21CS001", "CS", "23NHOP707", "Data Science", time.Now()).
			AddRow("1XX21ME001", "ME", "23NHOP711", "Robotics", time.Now()))

	rows, err := repo.ListExportRows(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "ME", rows[1].DepartmentID)
	require.NoError(t, mock.ExpectationsWereMet())
}
