package models

import "time"

// SessionType distinguishes the two elective pools a session can run.
type SessionType string

const (
	SessionTypeOpen         SessionType = "open"
	SessionTypeProfessional SessionType = "professional"
)

// SessionStatus is the lifecycle state of a session. It only moves
// upcoming -> open -> closed.
type SessionStatus string

const (
	SessionStatusUpcoming SessionStatus = "upcoming"
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusClosed   SessionStatus = "closed"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusUpcoming, SessionStatusOpen, SessionStatusClosed:
		return true
	}
	return false
}

// Session is a time-bounded enrollment window stored in the sessions table.
type Session struct {
	ID              string        `db:"id" json:"id"`
	Name            string        `db:"name" json:"name"`
	Type            SessionType   `db:"type" json:"type"`
	Status          SessionStatus `db:"status" json:"status"`
	TotalStudents   int           `db:"total_students" json:"total_students"`
	AppliedStudents int           `db:"applied_students" json:"applied_students"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionFilter captures list criteria for sessions.
type SessionFilter struct {
	Status   *SessionStatus
	Type     *SessionType
	Page     int
	PageSize int
}

// SessionDetail bundles a session with its courses.
type SessionDetail struct {
	Session
	Courses []Course `json:"courses"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
