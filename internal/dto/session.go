package dto

import "github.com/noah-isme/seat-enrollment-api/internal/models"

// CreateSessionRequest captures POST /sessions payload.
type CreateSessionRequest struct {
	Name     string                   `json:"name" validate:"required,max=128"`
	Type     models.SessionType       `json:"type" validate:"required,oneof=open professional"`
	Courses  []CourseInput            `json:"courses" validate:"required,min=1,dive"`
	Students []StudentInput           `json:"students" validate:"required,min=1,dive"`
	Rules    []models.EligibilityRule `json:"rules,omitempty" validate:"omitempty,dive"`
}

// CourseInput describes one course offered by a new session.
type CourseInput struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=255"`
	Seats        int    `json:"seats" validate:"gte=0"`
	DepartmentID string `json:"department_id" validate:"required,max=16"`
}

// StudentInput describes one roster entry of a new session.
type StudentInput struct {
	ID                 string  `json:"id" validate:"required,max=32"`
	DepartmentID       string  `json:"department_id" validate:"required,max=16"`
	PreviousCourseCode *string `json:"previous_course_code,omitempty" validate:"omitempty,max=32"`
}

// SessionQuery filters GET /sessions.
type SessionQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=upcoming open closed"`
	Type     string `form:"type" validate:"omitempty,oneof=open professional"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}
