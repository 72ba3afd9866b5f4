package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

const (
	insertEnrollmentQuery = `INSERT INTO enrollments (id, session_id, student_id, course_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	fillSeatQuery         = `UPDATE courses SET seats_filled = seats_filled + 1 WHERE id = $1 AND session_id = $2 AND seats_filled < seats`
	countApplicantQuery   = `UPDATE sessions SET applied_students = applied_students + 1, updated_at = $2 WHERE id = $1 AND status = 'open'`
)

// EnrollmentRepository persists granted seats.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Commit inserts the enrollment and bumps the course and session counters
// in one transaction. The unique (session_id, student_id) key, the
// seats_filled < seats guard and the open-status guard map to
// enrollment.ErrDuplicateEnrollment, ErrSeatsExhausted and ErrStatusConflict.
func (r *EnrollmentRepository) Commit(ctx context.Context, e *models.Enrollment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertEnrollmentQuery, e.ID, e.SessionID, e.StudentID, e.CourseID, e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return enrollment.ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err = expectOneRow(tx.ExecContext(ctx, fillSeatQuery, e.CourseID, e.SessionID)); err != nil {
		if errors.Is(err, errNoRowsAffected) {
			return enrollment.ErrSeatsExhausted
		}
		return fmt.Errorf("fill seat: %w", err)
	}

	if err = expectOneRow(tx.ExecContext(ctx, countApplicantQuery, e.SessionID, e.CreatedAt)); err != nil {
		if errors.Is(err, errNoRowsAffected) {
			return enrollment.ErrStatusConflict
		}
		return fmt.Errorf("count applicant: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// FindBySessionAndStudent returns the student's enrollment or nil.
func (r *EnrollmentRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.Enrollment, error) {
	const query = `SELECT id, session_id, student_id, course_id, created_at FROM enrollments WHERE session_id = $1 AND student_id = $2`
	var e models.Enrollment
	if err := r.db.GetContext(ctx, &e, query, sessionID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &e, nil
}

// ListBySession returns every enrollment of a session.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	const query = `SELECT id, session_id, student_id, course_id, created_at FROM enrollments WHERE session_id = $1 ORDER BY created_at`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sessionID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListExportRows returns enrollments joined with student and course data,
// grouped by course.
func (r *EnrollmentRepository) ListExportRows(ctx context.Context, sessionID string) ([]models.EnrollmentExportRow, error) {
	const query = `SELECT e.student_id, s.department_id, c.code AS course_code, c.name AS course_name, e.created_at
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN courses c ON c.id = e.course_id
WHERE e.session_id = $1
ORDER BY c.code, e.created_at`
	var rows []models.EnrollmentExportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list export rows: %w", err)
	}
	return rows, nil
}

var errNoRowsAffected = errors.New("no rows affected")

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoRowsAffected
	}
	return nil
}
