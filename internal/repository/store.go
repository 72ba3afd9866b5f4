package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// EnrollmentStore adapts the SQL repositories to enrollment.Store.
type EnrollmentStore struct {
	sessions    *SessionRepository
	courses     *CourseRepository
	students    *StudentRepository
	rules       *RuleRepository
	enrollments *EnrollmentRepository
}

var _ enrollment.Store = (*EnrollmentStore)(nil)

// NewEnrollmentStore builds the store over db.
func NewEnrollmentStore(db *sqlx.DB) *EnrollmentStore {
	return &EnrollmentStore{
		sessions:    NewSessionRepository(db),
		courses:     NewCourseRepository(db),
		students:    NewStudentRepository(db),
		rules:       NewRuleRepository(db),
		enrollments: NewEnrollmentRepository(db),
	}
}

func (s *EnrollmentStore) GetSession(ctx context.Context, ref string) (*models.Session, error) {
	return s.sessions.FindByRef(ctx, ref)
}

func (s *EnrollmentStore) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	return s.sessions.ListByStatus(ctx, status)
}

func (s *EnrollmentStore) UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus) (*models.Session, error) {
	return s.sessions.UpdateStatus(ctx, id, from, to)
}

// LoadSessionState reads everything a coordinator is seeded from.
func (s *EnrollmentStore) LoadSessionState(ctx context.Context, sessionID string) (*enrollment.SessionState, error) {
	courses, err := s.courses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	roster, err := s.students.ListRoster(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &enrollment.SessionState{Courses: courses, Roster: roster, Enrollments: enrollments, Rules: rules}, nil
}

func (s *EnrollmentStore) ListCourses(ctx context.Context, sessionID string) ([]models.Course, error) {
	return s.courses.ListBySession(ctx, sessionID)
}

func (s *EnrollmentStore) CommitEnrollment(ctx context.Context, e *models.Enrollment) error {
	return s.enrollments.Commit(ctx, e)
}

func (s *EnrollmentStore) FindEnrollment(ctx context.Context, sessionID, studentID string) (*models.Enrollment, error) {
	return s.enrollments.FindBySessionAndStudent(ctx, sessionID, studentID)
}

func (s *EnrollmentStore) ListEnrollments(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	return s.enrollments.ListBySession(ctx, sessionID)
}

func (s *EnrollmentStore) SyncSeatCounts(ctx context.Context, sessionID string, seatsFilled map[string]int, applied int) error {
	return s.sessions.SyncCounts(ctx, sessionID, seatsFilled, applied)
}
