package enrollment

import (
	"context"
	"errors"

	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session matches an id or name.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition rejects lifecycle moves other than upcoming->open->closed.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrUnknownCourse is returned for a course id outside the session.
	ErrUnknownCourse = errors.New("course not part of session")
	// ErrPersistence wraps transient store failures. The seat has been
	// released and the request may be retried.
	ErrPersistence = errors.New("enrollment could not be persisted")
	// ErrDuplicateEnrollment is reported by a Store when the student already
	// holds an enrollment row in the session.
	ErrDuplicateEnrollment = errors.New("duplicate enrollment")
	// ErrSeatsExhausted is reported by a Store when the durable seat guard
	// rejects the grant.
	ErrSeatsExhausted = errors.New("course seats exhausted")
	// ErrStatusConflict is reported by a Store when a conditional status
	// update finds the session in another state.
	ErrStatusConflict = errors.New("session status changed concurrently")
)

// SessionState is everything a coordinator is seeded from.
type SessionState struct {
	Courses     []models.Course
	Roster      []models.Student
	Enrollments []models.Enrollment
	Rules       eligibility.RuleSet
}

// Store is the durable side of the enrollment core.
type Store interface {
	// GetSession resolves a session by id or unique name.
	GetSession(ctx context.Context, ref string) (*models.Session, error)
	ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	// UpdateSessionStatus moves id from one status to another, failing with
	// ErrStatusConflict when the row is not in from.
	UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus) (*models.Session, error)
	LoadSessionState(ctx context.Context, sessionID string) (*SessionState, error)
	ListCourses(ctx context.Context, sessionID string) ([]models.Course, error)
	// CommitEnrollment inserts the row and bumps seats_filled and
	// applied_students in one transaction.
	CommitEnrollment(ctx context.Context, e *models.Enrollment) error
	FindEnrollment(ctx context.Context, sessionID, studentID string) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	// SyncSeatCounts overwrites seats_filled per course and applied_students
	// with values recounted from enrollment rows.
	SyncSeatCounts(ctx context.Context, sessionID string, seatsFilled map[string]int, applied int) error
}
