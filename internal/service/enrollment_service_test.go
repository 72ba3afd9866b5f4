package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

func TestEnrollmentServiceSubmitOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		result  enrollment.Result
		wantErr *appErrors.Error
		already bool
	}{
		{name: "enrolled", result: enrollment.Result{Outcome: enrollment.OutcomeEnrolled, CourseID: "c1"}},
		{name: "already enrolled", result: enrollment.Result{Outcome: enrollment.OutcomeAlreadyEnrolled, CourseID: "c1"}, already: true},
		{name: "ineligible", result: enrollment.Result{Outcome: enrollment.OutcomeIneligible, Reason: "prerequisite not met"}, wantErr: appErrors.ErrIneligible},
		{name: "seat unavailable", result: enrollment.Result{Outcome: enrollment.OutcomeSeatUnavailable}, wantErr: appErrors.ErrSeatUnavailable},
		{name: "not open", result: enrollment.Result{Outcome: enrollment.OutcomeSessionNotOpen}, wantErr: appErrors.ErrSessionNotOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := &routerStub{result: tc.result}
			svc := NewEnrollmentService(router, nil, nil)

			resp, err := svc.Submit(context.Background(), "electives", "1XX21CS001", dto.SubmitEnrollmentRequest{CourseID: "c1"})
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "c1", resp.CourseID)
			assert.Equal(t, tc.already, resp.AlreadyEnrolled)
			assert.Equal(t, "c1", router.lastCourse)
		})
	}
}

func TestEnrollmentServiceIneligibleCarriesReason(t *testing.T) {
	router := &routerStub{result: enrollment.Result{Outcome: enrollment.OutcomeIneligible, Reason: "course not offered to department ME"}}
	svc := NewEnrollmentService(router, nil, nil)

	_, err := svc.Submit(context.Background(), "s", "1XX21ME001", dto.SubmitEnrollmentRequest{CourseID: "c1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
	assert.Equal(t, "course not offered to department ME", appErr.Message)
}

func TestEnrollmentServiceSubmitErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *appErrors.Error
	}{
		{"persistence", fmt.Errorf("%w: timeout", enrollment.ErrPersistence), appErrors.ErrPersistence},
		{"unknown course", enrollment.ErrUnknownCourse, appErrors.ErrValidation},
		{"unknown session", enrollment.ErrSessionNotFound, appErrors.ErrNotFound},
		{"unexpected", fmt.Errorf("boom"), appErrors.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewEnrollmentService(&routerStub{err: tc.err}, nil, nil)
			_, err := svc.Submit(context.Background(), "s", "1XX21CS001", dto.SubmitEnrollmentRequest{CourseID: "c1"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEnrollmentServicePersistenceIsRetryable(t *testing.T) {
	svc := NewEnrollmentService(&routerStub{err: enrollment.ErrPersistence}, nil, nil)
	_, err := svc.Submit(context.Background(), "s", "1XX21CS001", dto.SubmitEnrollmentRequest{CourseID: "c1"})
	appErr := appErrors.FromError(err)
	assert.True(t, appErr.Retryable())
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
}

func TestEnrollmentServiceSubmitValidation(t *testing.T) {
	router := &routerStub{}
	svc := NewEnrollmentService(router, nil, nil)

	_, err := svc.Submit(context.Background(), "s", "1XX21CS001", dto.SubmitEnrollmentRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, router.lastCourse)
}

func TestEnrollmentServiceCheck(t *testing.T) {
	svc := NewEnrollmentService(&routerStub{lookupID: "c2", lookupOK: true}, nil, nil)
	resp, err := svc.Check(context.Background(), "s", "1XX21CS001")
	require.NoError(t, err)
	assert.True(t, resp.Enrolled)
	require.NotNil(t, resp.CourseID)
	assert.Equal(t, "c2", *resp.CourseID)

	svc = NewEnrollmentService(&routerStub{}, nil, nil)
	resp, err = svc.Check(context.Background(), "s", "1XX21CS002")
	require.NoError(t, err)
	assert.False(t, resp.Enrolled)
	assert.Nil(t, resp.CourseID)

	svc = NewEnrollmentService(&routerStub{lookupErr: enrollment.ErrSessionNotFound}, nil, nil)
	_, err = svc.Check(context.Background(), "missing", "1XX21CS001")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
