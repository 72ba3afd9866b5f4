package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// StudentRepository reads session rosters.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListRoster returns the students admitted to a session.
func (r *StudentRepository) ListRoster(ctx context.Context, sessionID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.department_id, s.previous_course_code, s.created_at
FROM session_students ss JOIN students s ON s.id = ss.student_id
WHERE ss.session_id = $1 ORDER BY s.id`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, sessionID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return students, nil
}

func upsertStudentsTx(ctx context.Context, tx *sqlx.Tx, sessionID string, students []models.Student, now time.Time) error {
	const upsert = `INSERT INTO students (id, department_id, previous_course_code, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET department_id = EXCLUDED.department_id, previous_course_code = EXCLUDED.previous_course_code`
	const attach = `INSERT INTO session_students (session_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, s := range students {
		if _, err := tx.ExecContext(ctx, upsert, s.ID, s.DepartmentID, s.PreviousCourseCode, now); err != nil {
			return fmt.Errorf("upsert student %s: %w", s.ID, err)
		}
		if _, err := tx.ExecContext(ctx, attach, sessionID, s.ID); err != nil {
			return fmt.Errorf("attach student %s: %w", s.ID, err)
		}
	}
	return nil
}
