package enrollment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// memStore is an in-memory Store with the same guards as the SQL adapter.
type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	courses     map[string][]models.Course
	roster      map[string][]models.Student
	rules       map[string]eligibility.RuleSet
	enrollments map[string][]models.Enrollment

	loads      atomic.Int32
	syncs      atomic.Int32
	commitHook func(e *models.Enrollment) error
	commitWait time.Duration

	// courseReadFailures makes that many ListCourses calls fail.
	courseReadFailures atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    map[string]*models.Session{},
		courses:     map[string][]models.Course{},
		roster:      map[string][]models.Student{},
		rules:       map[string]eligibility.RuleSet{},
		enrollments: map[string][]models.Enrollment{},
	}
}

func (m *memStore) addSession(id, name string, status models.SessionStatus, courses []models.Course, roster []models.Student, rules eligibility.RuleSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range courses {
		courses[i].SessionID = id
	}
	m.sessions[id] = &models.Session{ID: id, Name: name, Type: models.SessionTypeOpen, Status: status, TotalStudents: len(roster)}
	m.courses[id] = courses
	m.roster[id] = roster
	m.rules[id] = rules
}

func (m *memStore) GetSession(_ context.Context, ref string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[ref]; ok {
		cp := *s
		return &cp, nil
	}
	for _, s := range m.sessions {
		if s.Name == ref {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memStore) ListSessionsByStatus(_ context.Context, status models.SessionStatus) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.sessions {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSessionStatus(_ context.Context, id string, from, to models.SessionStatus) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status != from {
		return nil, ErrStatusConflict
	}
	s.Status = to
	cp := *s
	return &cp, nil
}

func (m *memStore) LoadSessionState(_ context.Context, sessionID string) (*SessionState, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return &SessionState{
		Courses:     append([]models.Course(nil), m.courses[sessionID]...),
		Roster:      append([]models.Student(nil), m.roster[sessionID]...),
		Enrollments: append([]models.Enrollment(nil), m.enrollments[sessionID]...),
		Rules:       m.rules[sessionID],
	}, nil
}

func (m *memStore) ListCourses(_ context.Context, sessionID string) ([]models.Course, error) {
	if m.courseReadFailures.Add(-1) >= 0 {
		return nil, errors.New("courses unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Course(nil), m.courses[sessionID]...), nil
}

func (m *memStore) CommitEnrollment(ctx context.Context, e *models.Enrollment) error {
	if m.commitWait > 0 {
		select {
		case <-time.After(m.commitWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.commitHook != nil {
		if err := m.commitHook(e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[e.SessionID]
	if s.Status != models.SessionStatusOpen {
		return ErrStatusConflict
	}
	for _, existing := range m.enrollments[e.SessionID] {
		if existing.StudentID == e.StudentID {
			return ErrDuplicateEnrollment
		}
	}
	courses := m.courses[e.SessionID]
	for i := range courses {
		if courses[i].ID == e.CourseID {
			if courses[i].SeatsFilled >= courses[i].Seats {
				return ErrSeatsExhausted
			}
			courses[i].SeatsFilled++
		}
	}
	m.enrollments[e.SessionID] = append(m.enrollments[e.SessionID], *e)
	s.AppliedStudents++
	return nil
}

func (m *memStore) FindEnrollment(_ context.Context, sessionID, studentID string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments[sessionID] {
		if e.StudentID == studentID {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListEnrollments(_ context.Context, sessionID string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Enrollment(nil), m.enrollments[sessionID]...), nil
}

func (m *memStore) SyncSeatCounts(_ context.Context, sessionID string, filled map[string]int, applied int) error {
	m.syncs.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	courses := m.courses[sessionID]
	for i := range courses {
		courses[i].SeatsFilled = filled[courses[i].ID]
	}
	m.sessions[sessionID].AppliedStudents = applied
	return nil
}

func (m *memStore) enrollmentCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments[sessionID])
}

func (m *memStore) filled(sessionID, courseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses[sessionID] {
		if c.ID == courseID {
			return c.SeatsFilled
		}
	}
	return -1
}
