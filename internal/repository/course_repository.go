package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// CourseRepository reads course rows.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListBySession returns the courses of a session ordered by code.
func (r *CourseRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Course, error) {
	const query = `SELECT id, session_id, code, name, seats, seats_filled, department_id FROM courses WHERE session_id = $1 ORDER BY code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, sessionID); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}
