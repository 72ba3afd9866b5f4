// Package eligibility decides whether a student may take a course under a
// session's rule table. Evaluation is pure and safe for concurrent use.
package eligibility

import (
	"fmt"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// Denial reasons returned to callers verbatim.
const (
	ReasonMatchesPrevious    = "course matches previous course"
	ReasonPrerequisite       = "prerequisite not met"
	ReasonIncompleteRecord   = "student record incomplete"
	reasonExcludedDepartment = "course not offered to department %s"
)

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the permitting decision.
var Allow = Decision{Allowed: true}

// Deny builds a denying decision carrying reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Evaluate applies rules in order and returns the first denial. A student
// with missing attributes is denied rather than admitted.
func Evaluate(student *models.Student, course *models.Course, rules RuleSet) Decision {
	if student == nil || student.ID == "" || student.DepartmentID == "" || course == nil {
		return Deny(ReasonIncompleteRecord)
	}

	for _, rule := range rules {
		if d := apply(rule, student, course); !d.Allowed {
			return d
		}
	}
	return Allow
}

func apply(rule models.EligibilityRule, student *models.Student, course *models.Course) Decision {
	switch rule.Kind {
	case models.RuleBlockPrevious:
		if rule.CourseCode != "" && rule.CourseCode != course.Code {
			return Allow
		}
		if student.PreviousCourseCode != nil && *student.PreviousCourseCode == course.Code {
			return Deny(ReasonMatchesPrevious)
		}
	case models.RuleRequiresPrevious:
		if rule.CourseCode != course.Code {
			return Allow
		}
		if student.PreviousCourseCode == nil || *student.PreviousCourseCode != rule.RequiredPreviousCode {
			return Deny(ReasonPrerequisite)
		}
	case models.RuleExcludeDepartment:
		if rule.CourseCode == course.Code && rule.DepartmentID == student.DepartmentID {
			return Deny(fmt.Sprintf(reasonExcludedDepartment, rule.DepartmentID))
		}
	default:
		// Unknown kinds never reach here once a RuleSet is validated; treat
		// them as closed.
		return Deny(fmt.Sprintf("unsupported rule %q", rule.Kind))
	}
	return Allow
}
