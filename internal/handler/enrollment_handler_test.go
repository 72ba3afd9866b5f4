package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

type enrollmentServiceStub struct {
	studentID string
	ref       string
	resp      *dto.EnrollmentResponse
	err       error
}

func (s *enrollmentServiceStub) Submit(_ context.Context, ref, studentID string, req dto.SubmitEnrollmentRequest) (*dto.EnrollmentResponse, error) {
	s.ref = ref
	s.studentID = studentID
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &dto.EnrollmentResponse{SessionID: ref, StudentID: studentID, CourseID: req.CourseID}, nil
}

func (s *enrollmentServiceStub) Check(_ context.Context, ref, studentID string) (*dto.EnrollmentStatusResponse, error) {
	s.ref = ref
	s.studentID = studentID
	course := "course-1"
	return &dto.EnrollmentStatusResponse{Enrolled: true, CourseID: &course}, nil
}

func newEnrollmentRouter(svc *enrollmentServiceStub) *gin.Engine {
	h := NewEnrollmentHandler(svc)
	r := gin.New()
	r.Use(withClaims("stu-7", models.RoleStudent))
	r.POST("/sessions/:id/enrollments", h.Submit)
	r.GET("/sessions/:id/enrollments/:studentId", h.Check)
	return r
}

func TestEnrollmentHandlerSubmitUsesTokenSubject(t *testing.T) {
	svc := &enrollmentServiceStub{}
	r := newEnrollmentRouter(svc)

	w := performRequest(t, r, http.MethodPost, "/sessions/s-1/enrollments", map[string]string{"course_id": "course-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "stu-7", svc.studentID)
	assert.Equal(t, "s-1", svc.ref)
	var resp dto.EnrollmentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.Equal(t, "course-1", resp.CourseID)
	assert.False(t, resp.AlreadyEnrolled)
}

func TestEnrollmentHandlerSubmitAlreadyEnrolled(t *testing.T) {
	svc := &enrollmentServiceStub{resp: &dto.EnrollmentResponse{SessionID: "s-1", StudentID: "stu-7", CourseID: "course-2", AlreadyEnrolled: true}}
	r := newEnrollmentRouter(svc)

	w := performRequest(t, r, http.MethodPost, "/sessions/s-1/enrollments", map[string]string{"course_id": "course-1"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.EnrollmentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.True(t, resp.AlreadyEnrolled)
	assert.Equal(t, "course-2", resp.CourseID)
}

func TestEnrollmentHandlerSubmitErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		retryAfter bool
	}{
		{name: "seat unavailable", err: appErrors.ErrSeatUnavailable, status: http.StatusConflict},
		{name: "ineligible", err: appErrors.Clone(appErrors.ErrIneligible, "course belongs to your department"), status: http.StatusForbidden},
		{name: "session not open", err: appErrors.ErrSessionNotOpen, status: http.StatusConflict},
		{name: "persistence", err: appErrors.ErrPersistence, status: http.StatusServiceUnavailable, retryAfter: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEnrollmentRouter(&enrollmentServiceStub{err: tc.err})

			w := performRequest(t, r, http.MethodPost, "/sessions/s-1/enrollments", map[string]string{"course_id": "course-1"})

			require.Equal(t, tc.status, w.Code)
			if tc.retryAfter {
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestEnrollmentHandlerSubmitRejectsMalformedBody(t *testing.T) {
	svc := &enrollmentServiceStub{}
	r := newEnrollmentRouter(svc)

	w := performRequest(t, r, http.MethodPost, "/sessions/s-1/enrollments", []string{"course-1"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.studentID)
}

func TestEnrollmentHandlerCheck(t *testing.T) {
	svc := &enrollmentServiceStub{}
	r := newEnrollmentRouter(svc)

	w := performRequest(t, r, http.MethodGet, "/sessions/s-1/enrollments/stu-9", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-9", svc.studentID)
	var resp dto.EnrollmentStatusResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.True(t, resp.Enrolled)
	require.NotNil(t, resp.CourseID)
	assert.Equal(t, "course-1", *resp.CourseID)
}
