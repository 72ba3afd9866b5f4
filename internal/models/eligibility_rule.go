package models

// RuleKind names an eligibility rule variant.
type RuleKind string

const (
	// RuleBlockPrevious denies a course whose code equals the student's
	// previous course. An empty CourseCode applies it to every course.
	RuleBlockPrevious RuleKind = "block_previous"
	// RuleRequiresPrevious admits CourseCode only to students whose previous
	// course is RequiredPreviousCode.
	RuleRequiresPrevious RuleKind = "requires_previous"
	// RuleExcludeDepartment closes CourseCode to DepartmentID.
	RuleExcludeDepartment RuleKind = "exclude_department"
)

// EligibilityRule is one row of a session's rule table.
type EligibilityRule struct {
	SessionID            string   `db:"session_id" json:"-" yaml:"-"`
	Position             int      `db:"position" json:"position" yaml:"-"`
	Kind                 RuleKind `db:"kind" json:"kind" yaml:"kind" validate:"required,oneof=block_previous requires_previous exclude_department"`
	CourseCode           string   `db:"course_code" json:"course_code,omitempty" yaml:"course_code,omitempty"`
	RequiredPreviousCode string   `db:"required_previous_code" json:"required_previous_code,omitempty" yaml:"required_previous_code,omitempty"`
	DepartmentID         string   `db:"department_id" json:"department_id,omitempty" yaml:"department_id,omitempty"`
}
