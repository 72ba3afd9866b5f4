package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	"github.com/noah-isme/seat-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/jobs"
)

type memoryCache struct {
	mu          sync.Mutex
	items       map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

type sessionRepoStub struct {
	sessions  map[string]*models.Session
	createErr error
	created   *repository.CreateSessionParams
	listCalls int
	findCalls int
}

func newSessionRepoStub(sessions ...*models.Session) *sessionRepoStub {
	s := &sessionRepoStub{sessions: make(map[string]*models.Session)}
	for _, session := range sessions {
		s.sessions[session.ID] = session
		s.sessions[session.Name] = session
	}
	return s
}

func (s *sessionRepoStub) Create(ctx context.Context, params repository.CreateSessionParams) error {
	if s.createErr != nil {
		return s.createErr
	}
	params.Session.ID = "sess-new"
	params.Session.Status = models.SessionStatusUpcoming
	params.Session.TotalStudents = len(params.Students)
	for i := range params.Courses {
		params.Courses[i].ID = "course-" + params.Courses[i].Code
		params.Courses[i].SessionID = params.Session.ID
	}
	s.created = &params
	return nil
}

func (s *sessionRepoStub) FindByRef(ctx context.Context, ref string) (*models.Session, error) {
	s.findCalls++
	session, ok := s.sessions[ref]
	if !ok {
		return nil, enrollment.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *sessionRepoStub) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	s.listCalls++
	var out []models.Session
	seen := map[string]bool{}
	for _, session := range s.sessions {
		if seen[session.ID] {
			continue
		}
		seen[session.ID] = true
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		out = append(out, *session)
	}
	return out, len(out), nil
}

type courseReaderStub struct {
	courses map[string][]models.Course
}

func (c *courseReaderStub) ListBySession(ctx context.Context, sessionID string) ([]models.Course, error) {
	return append([]models.Course(nil), c.courses[sessionID]...), nil
}

type lifecycleStub struct {
	startResp *models.Session
	startErr  error
	stopResp  *models.Session
	stopErr   error
	snapshot  broadcast.Update
	snapErr   error
}

func (l *lifecycleStub) Start(ctx context.Context, ref string) (*models.Session, error) {
	return l.startResp, l.startErr
}

func (l *lifecycleStub) Stop(ctx context.Context, ref string) (*models.Session, error) {
	return l.stopResp, l.stopErr
}

func (l *lifecycleStub) Snapshot(ctx context.Context, ref string) (broadcast.Update, error) {
	return l.snapshot, l.snapErr
}

type routerStub struct {
	result     enrollment.Result
	err        error
	lookupID   string
	lookupOK   bool
	lookupErr  error
	lastCourse string
}

func (r *routerStub) Submit(ctx context.Context, ref, studentID, courseID string) (enrollment.Result, error) {
	r.lastCourse = courseID
	return r.result, r.err
}

func (r *routerStub) Lookup(ctx context.Context, ref, studentID string) (string, bool, error) {
	return r.lookupID, r.lookupOK, r.lookupErr
}

type exportJobStoreStub struct {
	mu       sync.Mutex
	jobs     map[string]*models.ExportJob
	updates  []repository.UpdateExportJobParams
	expired  []models.ExportJob
	sequence int
}

func newExportJobStoreStub() *exportJobStoreStub {
	return &exportJobStoreStub{jobs: make(map[string]*models.ExportJob)}
}

func (s *exportJobStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	job.ID = fmt.Sprintf("job-%d", s.sequence)
	job.CreatedAt = time.Now().UTC()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *exportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrExportJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *exportJobStoreStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, params)
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrExportJobNotFound
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *exportJobStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ExportJob, error) {
	return s.expired, nil
}

type exportRowsStub struct {
	rows []models.EnrollmentExportRow
	err  error
}

func (s exportRowsStub) ListExportRows(ctx context.Context, sessionID string) ([]models.EnrollmentExportRow, error) {
	return s.rows, s.err
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(ctx context.Context, job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}
