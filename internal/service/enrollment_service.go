package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

type enrollmentRouter interface {
	Submit(ctx context.Context, ref, studentID, courseID string) (enrollment.Result, error)
	Lookup(ctx context.Context, ref, studentID string) (string, bool, error)
}

// EnrollmentService turns coordinator decisions into API responses.
type EnrollmentService struct {
	router    enrollmentRouter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(router enrollmentRouter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{router: router, validator: validate, logger: logger}
}

// Submit requests a seat for studentID. A repeated request for an enrolled
// student succeeds with AlreadyEnrolled set and the original course.
func (s *EnrollmentService) Submit(ctx context.Context, ref, studentID string, req dto.SubmitEnrollmentRequest) (*dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if studentID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	result, err := s.router.Submit(ctx, ref, studentID, req.CourseID)
	if err != nil {
		mapped := mapCoreError(err, "failed to submit enrollment")
		s.logger.Warn("enrollment submit failed",
			zap.String("session", ref),
			zap.String("student_id", studentID),
			zap.String("course_id", req.CourseID),
			zap.Error(err))
		return nil, mapped
	}

	switch result.Outcome {
	case enrollment.OutcomeEnrolled:
		return &dto.EnrollmentResponse{SessionID: ref, StudentID: studentID, CourseID: result.CourseID}, nil
	case enrollment.OutcomeAlreadyEnrolled:
		return &dto.EnrollmentResponse{SessionID: ref, StudentID: studentID, CourseID: result.CourseID, AlreadyEnrolled: true}, nil
	case enrollment.OutcomeIneligible:
		return nil, appErrors.Clone(appErrors.ErrIneligible, result.Reason)
	case enrollment.OutcomeSeatUnavailable:
		return nil, appErrors.ErrSeatUnavailable
	case enrollment.OutcomeSessionNotOpen:
		return nil, appErrors.ErrSessionNotOpen
	default:
		return nil, appErrors.Clone(appErrors.ErrInternal, "unknown enrollment outcome")
	}
}

// Check reports whether studentID holds a seat in the session.
func (s *EnrollmentService) Check(ctx context.Context, ref, studentID string) (*dto.EnrollmentStatusResponse, error) {
	courseID, ok, err := s.router.Lookup(ctx, ref, studentID)
	if err != nil {
		return nil, mapCoreError(err, "failed to check enrollment")
	}
	if !ok {
		return &dto.EnrollmentStatusResponse{Enrolled: false}, nil
	}
	return &dto.EnrollmentStatusResponse{Enrolled: true, CourseID: &courseID}, nil
}
