package service

import (
	"context"
	"errors"

	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

// mapCoreError converts enrollment core and repository errors to API errors.
func mapCoreError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, enrollment.ErrSessionNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	case errors.Is(err, enrollment.ErrInvalidTransition):
		return appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, err.Error())
	case errors.Is(err, enrollment.ErrUnknownCourse):
		return appErrors.Clone(appErrors.ErrValidation, "course is not part of this session")
	case errors.Is(err, enrollment.ErrPersistence), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, err.Error())
	case errors.Is(err, repository.ErrExportJobNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
	}
}
