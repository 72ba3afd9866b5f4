package models

import "time"

// Student is a roster entry. The core only reads students.
type Student struct {
	ID                 string    `db:"id" json:"id"`
	DepartmentID       string    `db:"department_id" json:"department_id"`
	PreviousCourseCode *string   `db:"previous_course_code" json:"previous_course_code,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
