package models

// Course is an offering within a session with a fixed seat capacity.
type Course struct {
	ID           string `db:"id" json:"id"`
	SessionID    string `db:"session_id" json:"session_id"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	Seats        int    `db:"seats" json:"seats"`
	SeatsFilled  int    `db:"seats_filled" json:"seats_filled"`
	DepartmentID string `db:"department_id" json:"department_id"`
}

// SeatsAvailable returns the remaining capacity, never negative.
func (c Course) SeatsAvailable() int {
	if c.SeatsFilled >= c.Seats {
		return 0
	}
	return c.Seats - c.SeatsFilled
}
