package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

const sessionColumns = `id, name, type, status, total_students, applied_students, created_at, updated_at`

// SessionRepository persists sessions and the data created with them.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSessionParams groups everything written when a session is created.
type CreateSessionParams struct {
	Session  *models.Session
	Courses  []models.Course
	Students []models.Student
	Rules    eligibility.RuleSet
}

// Create writes the session, its courses, roster and rule table in one
// transaction. Students already known are updated in place.
func (r *SessionRepository) Create(ctx context.Context, params CreateSessionParams) (err error) {
	s := params.Session
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Status = models.SessionStatusUpcoming
	s.TotalStudents = len(params.Students)
	s.AppliedStudents = 0

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertSession = `INSERT INTO sessions (id, name, type, status, total_students, applied_students, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertSession, s.ID, s.Name, s.Type, s.Status, s.TotalStudents, s.AppliedStudents, s.CreatedAt, s.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create session %q: %w", s.Name, ErrDuplicate)
		}
		return fmt.Errorf("insert session: %w", err)
	}

	const insertCourse = `INSERT INTO courses (id, session_id, code, name, seats, seats_filled, department_id)
VALUES ($1, $2, $3, $4, $5, 0, $6)`
	for i := range params.Courses {
		c := &params.Courses[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.SessionID = s.ID
		c.SeatsFilled = 0
		if _, err = tx.ExecContext(ctx, insertCourse, c.ID, c.SessionID, c.Code, c.Name, c.Seats, c.DepartmentID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("course code %q repeated: %w", c.Code, ErrDuplicate)
			}
			return fmt.Errorf("insert course: %w", err)
		}
	}

	if err = upsertStudentsTx(ctx, tx, s.ID, params.Students, now); err != nil {
		return err
	}
	if err = replaceRulesTx(ctx, tx, s.ID, params.Rules); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// FindByRef returns a session by id or unique name.
func (r *SessionRepository) FindByRef(ctx context.Context, ref string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id::text = $1 OR name = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enrollment.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// List returns sessions newest first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sessions%s ORDER BY created_at DESC LIMIT %d OFFSET %d", sessionColumns, clause, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sessions"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListByStatus returns every session in status.
func (r *SessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE status = $1 ORDER BY created_at`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, status); err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	return sessions, nil
}

// UpdateStatus moves a session from one status to another. A row not in
// from yields enrollment.ErrStatusConflict.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) (*models.Session, error) {
	const query = `UPDATE sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2 RETURNING ` + sessionColumns
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id, from, to, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enrollment.ErrStatusConflict
		}
		return nil, fmt.Errorf("update session status: %w", err)
	}
	return &session, nil
}

// SyncCounts overwrites per-course seats_filled and applied_students.
func (r *SessionRepository) SyncCounts(ctx context.Context, sessionID string, seatsFilled map[string]int, applied int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync counts: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const resetCourses = `UPDATE courses SET seats_filled = 0 WHERE session_id = $1`
	if _, err = tx.ExecContext(ctx, resetCourses, sessionID); err != nil {
		return fmt.Errorf("reset seat counts: %w", err)
	}
	const setCourse = `UPDATE courses SET seats_filled = $3 WHERE session_id = $1 AND id = $2`
	for courseID, n := range seatsFilled {
		if n == 0 {
			continue
		}
		if _, err = tx.ExecContext(ctx, setCourse, sessionID, courseID, n); err != nil {
			return fmt.Errorf("set seat count: %w", err)
		}
	}
	const setApplied = `UPDATE sessions SET applied_students = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, setApplied, sessionID, applied, time.Now().UTC()); err != nil {
		return fmt.Errorf("set applied students: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sync counts: %w", err)
	}
	return nil
}
