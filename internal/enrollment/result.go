package enrollment

// Outcome classifies a submit decision.
type Outcome string

const (
	OutcomeEnrolled        Outcome = "enrolled"
	OutcomeAlreadyEnrolled Outcome = "already_enrolled"
	OutcomeIneligible      Outcome = "ineligible"
	OutcomeSeatUnavailable Outcome = "seat_unavailable"
	OutcomeSessionNotOpen  Outcome = "session_not_open"
)

// ReasonNotOnRoster denies students outside the session roster.
const ReasonNotOnRoster = "student not on session roster"

// Result is the decision for one submit. CourseID is the granted course for
// Enrolled and the existing course for AlreadyEnrolled. Reason is set for
// Ineligible.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	CourseID string  `json:"course_id,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func enrolled(courseID string) Result {
	return Result{Outcome: OutcomeEnrolled, CourseID: courseID}
}

func alreadyEnrolled(courseID string) Result {
	return Result{Outcome: OutcomeAlreadyEnrolled, CourseID: courseID}
}

func ineligible(reason string) Result {
	return Result{Outcome: OutcomeIneligible, Reason: reason}
}

var (
	seatUnavailable = Result{Outcome: OutcomeSeatUnavailable}
	sessionNotOpen  = Result{Outcome: OutcomeSessionNotOpen}
)
