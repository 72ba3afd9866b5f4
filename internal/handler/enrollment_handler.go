package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/response"
)

type enrollmentService interface {
	Submit(ctx context.Context, ref, studentID string, req dto.SubmitEnrollmentRequest) (*dto.EnrollmentResponse, error)
	Check(ctx context.Context, ref, studentID string) (*dto.EnrollmentStatusResponse, error)
}

// EnrollmentHandler exposes seat requests and enrollment lookups.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler builds a new handler.
func NewEnrollmentHandler(service enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Submit godoc
// @Summary Request a seat in a course
// @Description The caller's token identifies the student. A repeated request returns the existing enrollment with already_enrolled set.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Session ID or name"
// @Param payload body dto.SubmitEnrollmentRequest true "Course choice"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{id}/enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req dto.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	resp, err := h.service.Submit(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if resp.AlreadyEnrolled {
		response.JSON(c, http.StatusOK, resp, nil)
		return
	}
	response.Created(c, resp)
}

// Check godoc
// @Summary Check whether a student holds a seat
// @Tags Enrollments
// @Produce json
// @Param id path string true "Session ID or name"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/enrollments/{studentId} [get]
func (h *EnrollmentHandler) Check(c *gin.Context) {
	resp, err := h.service.Check(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
