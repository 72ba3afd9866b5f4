package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	"github.com/noah-isme/seat-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, params repository.CreateSessionParams) error
	FindByRef(ctx context.Context, ref string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
}

type courseReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Course, error)
}

type sessionLifecycle interface {
	Start(ctx context.Context, ref string) (*models.Session, error)
	Stop(ctx context.Context, ref string) (*models.Session, error)
	Snapshot(ctx context.Context, ref string) (broadcast.Update, error)
}

// SessionService manages session creation, listing and lifecycle.
type SessionService struct {
	sessions     sessionRepository
	courses      courseReader
	lifecycle    sessionLifecycle
	cache        *CacheService
	defaultRules eligibility.RuleSet
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewSessionService constructs the service. defaultRules is applied to
// sessions created without an explicit rule table.
func NewSessionService(sessions sessionRepository, courses courseReader, lifecycle sessionLifecycle, cache *CacheService, defaultRules eligibility.RuleSet, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:     sessions,
		courses:      courses,
		lifecycle:    lifecycle,
		cache:        cache,
		defaultRules: defaultRules,
		validator:    validate,
		logger:       logger,
	}
}

// Create validates and stores a new upcoming session with its courses,
// roster and rule table.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}

	courses := make([]models.Course, 0, len(req.Courses))
	codes := make(map[string]struct{}, len(req.Courses))
	for _, in := range req.Courses {
		code := strings.TrimSpace(in.Code)
		if _, dup := codes[code]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course code %s listed twice", code))
		}
		codes[code] = struct{}{}
		courses = append(courses, models.Course{
			Code:         code,
			Name:         strings.TrimSpace(in.Name),
			Seats:        in.Seats,
			DepartmentID: strings.TrimSpace(in.DepartmentID),
		})
	}

	students := make([]models.Student, 0, len(req.Students))
	seen := make(map[string]struct{}, len(req.Students))
	for _, in := range req.Students {
		id := strings.TrimSpace(in.ID)
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s listed twice", id))
		}
		seen[id] = struct{}{}
		students = append(students, models.Student{
			ID:                 id,
			DepartmentID:       strings.TrimSpace(in.DepartmentID),
			PreviousCourseCode: in.PreviousCourseCode,
		})
	}

	rules := s.defaultRules
	if len(req.Rules) > 0 {
		rules = eligibility.RuleSet(req.Rules)
	}
	if err := rules.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid eligibility rules")
	}

	session := &models.Session{Name: req.Name, Type: req.Type}
	params := repository.CreateSessionParams{Session: session, Courses: courses, Students: students, Rules: rules}
	if err := s.sessions.Create(ctx, params); err != nil {
		return nil, mapCoreError(err, "failed to create session")
	}
	s.cache.InvalidateSessions(ctx)
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("name", session.Name),
		zap.Int("courses", len(courses)),
		zap.Int("students", len(students)))

	return &models.SessionDetail{Session: *session, Courses: params.Courses}, nil
}

// List returns sessions newest first.
func (s *SessionService) List(ctx context.Context, query dto.SessionQuery) ([]models.Session, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session filter")
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}

	filter := models.SessionFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.SessionStatus(query.Status)
		filter.Status = &status
	}
	if query.Type != "" {
		sessionType := models.SessionType(query.Type)
		filter.Type = &sessionType
	}

	type page struct {
		Sessions []models.Session `json:"sessions"`
		Total    int              `json:"total"`
	}
	key := sessionListKey(query.Status, query.Type, query.Page, query.PageSize)
	result, err := readThrough(ctx, s.cache, key, func() (page, error) {
		sessions, total, err := s.sessions.List(ctx, filter)
		return page{Sessions: sessions, Total: total}, err
	})
	if err != nil {
		return nil, nil, mapCoreError(err, "failed to list sessions")
	}
	if result.Sessions == nil {
		result.Sessions = []models.Session{}
	}
	return result.Sessions, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: result.Total}, nil
}

// Get returns a session with its courses as stored. Seat counts of an open
// session are then overlaid from its live coordinator so they agree with the
// seat feed; if the coordinator cannot answer, the stored counts are served.
func (s *SessionService) Get(ctx context.Context, ref string) (*models.SessionDetail, error) {
	detail, err := readThrough(ctx, s.cache, sessionDetailKey(ref), func() (*models.SessionDetail, error) {
		session, err := s.sessions.FindByRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		courses, err := s.courses.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		return &models.SessionDetail{Session: *session, Courses: courses}, nil
	})
	if err != nil {
		return nil, mapCoreError(err, "failed to load session")
	}

	if detail.Status == models.SessionStatusOpen && s.lifecycle != nil {
		live, err := s.lifecycle.Snapshot(ctx, detail.ID)
		if err != nil {
			s.logger.Warn("live seat counts unavailable", zap.String("session_id", detail.ID), zap.Error(err))
			return detail, nil
		}
		applied := 0
		for i := range detail.Courses {
			if filled, ok := live.SeatsFilled[detail.Courses[i].ID]; ok {
				detail.Courses[i].SeatsFilled = filled
			}
			applied += detail.Courses[i].SeatsFilled
		}
		detail.AppliedStudents = applied
	}
	return detail, nil
}

// Start opens an upcoming session for enrollment.
func (s *SessionService) Start(ctx context.Context, ref string) (*models.Session, error) {
	session, err := s.lifecycle.Start(ctx, ref)
	if err != nil {
		return nil, mapCoreError(err, "failed to start session")
	}
	s.cache.InvalidateSessions(ctx)
	return session, nil
}

// Stop closes an open session.
func (s *SessionService) Stop(ctx context.Context, ref string) (*models.Session, error) {
	session, err := s.lifecycle.Stop(ctx, ref)
	if err != nil {
		return nil, mapCoreError(err, "failed to stop session")
	}
	s.cache.InvalidateSessions(ctx)
	return session, nil
}
