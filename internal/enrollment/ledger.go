package enrollment

import (
	"fmt"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

type seatCount struct {
	capacity  int
	reserved  int
	committed int
}

// Ledger tracks seats per course for one session. Reservations hold a seat
// while the grant is persisted; only committed counts are published. It is
// not safe for concurrent use; the owning coordinator serializes access.
type Ledger struct {
	seats map[string]*seatCount
}

// NewLedger seeds a ledger from courses using filled[courseID] as the
// committed count.
func NewLedger(courses []models.Course, filled map[string]int) (*Ledger, error) {
	l := &Ledger{seats: make(map[string]*seatCount, len(courses))}
	for _, c := range courses {
		n := filled[c.ID]
		if c.Seats < 0 || n < 0 || n > c.Seats {
			return nil, fmt.Errorf("course %s: filled %d outside capacity %d", c.ID, n, c.Seats)
		}
		l.seats[c.ID] = &seatCount{capacity: c.Seats, committed: n}
	}
	return l, nil
}

// TryReserve holds a seat in courseID if one is free.
func (l *Ledger) TryReserve(courseID string) (bool, error) {
	s, ok := l.seats[courseID]
	if !ok {
		return false, ErrUnknownCourse
	}
	if s.committed+s.reserved >= s.capacity {
		return false, nil
	}
	s.reserved++
	return true, nil
}

// Release drops a reservation that will not be committed.
func (l *Ledger) Release(courseID string) {
	if s, ok := l.seats[courseID]; ok && s.reserved > 0 {
		s.reserved--
	}
}

// Commit turns a reservation into a filled seat and returns the new count.
func (l *Ledger) Commit(courseID string) int {
	s, ok := l.seats[courseID]
	if !ok {
		return 0
	}
	if s.reserved > 0 {
		s.reserved--
	}
	s.committed++
	return s.committed
}

// Adopt counts a seat that was filled durably without a reservation here.
func (l *Ledger) Adopt(courseID string) int {
	s, ok := l.seats[courseID]
	if !ok {
		return 0
	}
	if s.committed < s.capacity {
		s.committed++
	}
	return s.committed
}

// Filled returns the committed count of courseID.
func (l *Ledger) Filled(courseID string) int {
	if s, ok := l.seats[courseID]; ok {
		return s.committed
	}
	return 0
}

// Snapshot returns committed counts for every course.
func (l *Ledger) Snapshot() map[string]int {
	out := make(map[string]int, len(l.seats))
	for id, s := range l.seats {
		out[id] = s.committed
	}
	return out
}
