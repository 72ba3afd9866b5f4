package models

import "time"

// Enrollment records one granted seat. A student holds at most one per
// session and rows are never updated.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentExportRow is the flattened shape used by enrollment exports.
type EnrollmentExportRow struct {
	StudentID    string    `db:"student_id"`
	DepartmentID string    `db:"department_id"`
	CourseCode   string    `db:"course_code"`
	CourseName   string    `db:"course_name"`
	EnrolledAt   time.Time `db:"created_at"`
}
