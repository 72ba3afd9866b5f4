package dto

// SubmitEnrollmentRequest captures POST /sessions/:id/enrollments payload.
type SubmitEnrollmentRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// EnrollmentResponse reports a successful or repeated submit.
type EnrollmentResponse struct {
	SessionID       string `json:"session_id"`
	StudentID       string `json:"student_id"`
	CourseID        string `json:"course_id"`
	AlreadyEnrolled bool   `json:"already_enrolled"`
}

// EnrollmentStatusResponse answers GET /sessions/:id/enrollments/:studentId.
type EnrollmentStatusResponse struct {
	Enrolled bool    `json:"enrolled"`
	CourseID *string `json:"course_id"`
}
