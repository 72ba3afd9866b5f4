package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// Publisher receives committed seat counts.
type Publisher interface {
	Publish(sessionID string, update broadcast.Update)
}

// Metrics observes coordinator decisions.
type Metrics interface {
	RecordOutcome(outcome string)
	ObservePersist(d time.Duration, err error)
}

const defaultPersistTimeout = 3 * time.Second

// Coordinator serializes grant decisions for one open session. Eligibility
// and persistence run outside its lock; the enrolled check, the seat
// reservation and the commit/publish step run under it.
type Coordinator struct {
	sessionID      string
	store          Store
	publisher      Publisher
	metrics        Metrics
	logger         *zap.Logger
	persistTimeout time.Duration
	now            func() time.Time

	// immutable after construction
	rules    eligibility.RuleSet
	students map[string]*models.Student
	courses  map[string]*models.Course

	mu       sync.Mutex
	open     bool
	ledger   *Ledger
	enrolled map[string]string
	// pending holds a channel per student with a grant being persisted,
	// closed once that grant commits or is abandoned.
	pending  map[string]chan struct{}
	applied  int
	seq      uint64
	inflight sync.WaitGroup
}

type coordinatorOptions struct {
	store          Store
	publisher      Publisher
	metrics        Metrics
	logger         *zap.Logger
	persistTimeout time.Duration
}

// newCoordinator builds an open coordinator from state. Seat counts are
// recounted from enrollment rows; the returned map holds them.
func newCoordinator(sessionID string, state *SessionState, opts coordinatorOptions) (*Coordinator, map[string]int, error) {
	if opts.persistTimeout <= 0 {
		opts.persistTimeout = defaultPersistTimeout
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}

	c := &Coordinator{
		sessionID:      sessionID,
		store:          opts.store,
		publisher:      opts.publisher,
		metrics:        opts.metrics,
		logger:         opts.logger.With(zap.String("session_id", sessionID)),
		persistTimeout: opts.persistTimeout,
		now:            time.Now,
		rules:          state.Rules,
		students:       make(map[string]*models.Student, len(state.Roster)),
		courses:        make(map[string]*models.Course, len(state.Courses)),
		open:           true,
		enrolled:       make(map[string]string, len(state.Enrollments)),
		pending:        make(map[string]chan struct{}),
	}
	for i := range state.Roster {
		s := state.Roster[i]
		c.students[s.ID] = &s
	}
	for i := range state.Courses {
		course := state.Courses[i]
		c.courses[course.ID] = &course
	}

	filled := make(map[string]int, len(state.Courses))
	for _, e := range state.Enrollments {
		if _, ok := c.courses[e.CourseID]; !ok {
			return nil, nil, fmt.Errorf("enrollment %s references course %s outside session", e.ID, e.CourseID)
		}
		if _, dup := c.enrolled[e.StudentID]; dup {
			return nil, nil, fmt.Errorf("student %s holds more than one enrollment", e.StudentID)
		}
		c.enrolled[e.StudentID] = e.CourseID
		filled[e.CourseID]++
	}
	ledger, err := NewLedger(state.Courses, filled)
	if err != nil {
		return nil, nil, err
	}
	c.ledger = ledger
	c.applied = len(state.Enrollments)
	return c, filled, nil
}

// SessionID returns the coordinated session.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Submit decides one enrollment request. Decisions come back as a Result;
// the error path carries ErrUnknownCourse and ErrPersistence.
func (c *Coordinator) Submit(ctx context.Context, studentID, courseID string) (Result, error) {
	res, err := c.submit(ctx, studentID, courseID)
	if c.metrics != nil {
		outcome := string(res.Outcome)
		if err != nil {
			outcome = "error"
		}
		c.metrics.RecordOutcome(outcome)
	}
	return res, err
}

func (c *Coordinator) submit(ctx context.Context, studentID, courseID string) (Result, error) {
	for {
		if res, done, err := c.precheck(ctx, studentID); done || err != nil {
			return res, err
		}

		course, ok := c.courses[courseID]
		if !ok {
			return Result{}, ErrUnknownCourse
		}
		student, ok := c.students[studentID]
		if !ok {
			return ineligible(ReasonNotOnRoster), nil
		}
		if d := eligibility.Evaluate(student, course, c.rules); !d.Allowed {
			return ineligible(d.Reason), nil
		}

		c.mu.Lock()
		// State may have moved while eligibility ran.
		res, done, settled := c.precheckLocked(studentID)
		if settled != nil {
			c.mu.Unlock()
			continue
		}
		if done {
			c.mu.Unlock()
			return res, nil
		}
		granted, err := c.ledger.TryReserve(courseID)
		if err != nil {
			c.mu.Unlock()
			return Result{}, err
		}
		if !granted {
			c.mu.Unlock()
			return seatUnavailable, nil
		}
		c.pending[studentID] = make(chan struct{})
		c.inflight.Add(1)
		c.mu.Unlock()

		return c.grant(ctx, studentID, courseID)
	}
}

// grant persists a reserved seat and settles the outcome.
func (c *Coordinator) grant(ctx context.Context, studentID, courseID string) (Result, error) {
	defer c.inflight.Done()

	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		SessionID: c.sessionID,
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: c.now().UTC(),
	}
	persistErr := c.persist(ctx, enrollment)

	switch {
	case persistErr == nil:
		c.mu.Lock()
		filled := c.ledger.Commit(courseID)
		c.enrolled[studentID] = courseID
		c.applied++
		c.settleLocked(studentID)
		c.publishLocked(courseID, filled)
		c.mu.Unlock()
		return enrolled(courseID), nil

	case errors.Is(persistErr, ErrDuplicateEnrollment):
		c.abandon(studentID, courseID)
		return c.reconcileDuplicate(ctx, studentID)

	case errors.Is(persistErr, ErrStatusConflict):
		c.abandon(studentID, courseID)
		return sessionNotOpen, nil

	case errors.Is(persistErr, ErrSeatsExhausted):
		c.abandon(studentID, courseID)
		c.logger.Warn("durable seat guard rejected a grant the ledger allowed", zap.String("course_id", courseID))
		c.reconcileStore(ctx)
		return seatUnavailable, nil

	default:
		c.abandon(studentID, courseID)
		c.logger.Error("enrollment persist failed, seat released",
			zap.String("student_id", studentID), zap.String("course_id", courseID), zap.Error(persistErr))
		return Result{}, fmt.Errorf("%w: %v", ErrPersistence, persistErr)
	}
}

// precheck answers requests decided by session or student state. A student
// with a grant still persisting waits for it to settle first, so no caller
// hears about a grant that may yet fail.
func (c *Coordinator) precheck(ctx context.Context, studentID string) (Result, bool, error) {
	for {
		c.mu.Lock()
		res, done, settled := c.precheckLocked(studentID)
		c.mu.Unlock()
		if settled == nil {
			return res, done, nil
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return Result{}, false, fmt.Errorf("%w: grant still in flight: %v", ErrPersistence, ctx.Err())
		}
	}
}

// precheckLocked returns a non-nil channel when studentID has a grant in
// flight; the caller must wait on it and check again.
func (c *Coordinator) precheckLocked(studentID string) (Result, bool, <-chan struct{}) {
	if !c.open {
		return sessionNotOpen, true, nil
	}
	if existing, ok := c.enrolled[studentID]; ok {
		return alreadyEnrolled(existing), true, nil
	}
	if settled, ok := c.pending[studentID]; ok {
		return Result{}, false, settled
	}
	return Result{}, false, nil
}

func (c *Coordinator) settleLocked(studentID string) {
	if settled, ok := c.pending[studentID]; ok {
		close(settled)
		delete(c.pending, studentID)
	}
}

// persist runs detached from caller cancellation so a disconnecting client
// cannot leave the outcome undecided, bounded by persistTimeout.
func (c *Coordinator) persist(ctx context.Context, e *models.Enrollment) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	start := c.now()
	err := c.store.CommitEnrollment(pctx, e)
	if c.metrics != nil {
		c.metrics.ObservePersist(c.now().Sub(start), err)
	}
	return err
}

func (c *Coordinator) abandon(studentID, courseID string) {
	c.mu.Lock()
	c.ledger.Release(courseID)
	c.settleLocked(studentID)
	c.mu.Unlock()
}

// reconcileDuplicate adopts an enrollment row that exists durably but not
// in memory, such as a commit that landed after its caller timed out.
func (c *Coordinator) reconcileDuplicate(ctx context.Context, studentID string) (Result, error) {
	existing, err := c.store.FindEnrollment(ctx, c.sessionID, studentID)
	if err != nil || existing == nil {
		return Result{}, fmt.Errorf("%w: resolve duplicate enrollment: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.enrolled[studentID]; ok {
		return alreadyEnrolled(current), nil
	}
	c.enrolled[studentID] = existing.CourseID
	c.applied++
	filled := c.ledger.Adopt(existing.CourseID)
	c.publishLocked(existing.CourseID, filled)
	c.logger.Info("adopted enrollment found in store", zap.String("student_id", studentID), zap.String("course_id", existing.CourseID))
	return alreadyEnrolled(existing.CourseID), nil
}

// reconcileStore adopts every durable enrollment the coordinator has not
// seen. Rows of students with a grant in flight are left to that grant.
func (c *Coordinator) reconcileStore(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()
	rows, err := c.store.ListEnrollments(rctx, c.sessionID)
	if err != nil {
		c.logger.Warn("reconcile with store failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range rows {
		if _, ok := c.enrolled[e.StudentID]; ok {
			continue
		}
		if _, ok := c.pending[e.StudentID]; ok {
			continue
		}
		if _, ok := c.courses[e.CourseID]; !ok {
			continue
		}
		c.enrolled[e.StudentID] = e.CourseID
		c.applied++
		c.publishLocked(e.CourseID, c.ledger.Adopt(e.CourseID))
		c.logger.Info("adopted enrollment found in store", zap.String("student_id", e.StudentID), zap.String("course_id", e.CourseID))
	}
}

func (c *Coordinator) publishLocked(courseID string, filled int) {
	c.seq++
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(c.sessionID, broadcast.Update{
		Type:        broadcast.UpdateDelta,
		SessionID:   c.sessionID,
		Seq:         c.seq,
		SeatsFilled: map[string]int{courseID: filled},
	})
}

// Announce publishes a full snapshot, used when the session opens.
func (c *Coordinator) Announce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.publisher != nil {
		c.publisher.Publish(c.sessionID, c.snapshotLocked())
	}
}

// Snapshot returns committed counts for every course.
func (c *Coordinator) Snapshot() broadcast.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() broadcast.Update {
	t := broadcast.UpdateSnapshot
	if !c.open {
		t = broadcast.UpdateClosed
	}
	return broadcast.Update{Type: t, SessionID: c.sessionID, Seq: c.seq, SeatsFilled: c.ledger.Snapshot()}
}

// Lookup reports the committed course of studentID.
func (c *Coordinator) Lookup(studentID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	courseID, ok := c.enrolled[studentID]
	return courseID, ok
}

// Applied returns the number of committed enrollments.
func (c *Coordinator) Applied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// freeze stops accepting requests and waits for in-flight grants to settle.
// The returned snapshot includes every committed grant.
func (c *Coordinator) freeze() broadcast.Update {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	c.inflight.Wait()
	return c.Snapshot()
}

// thaw reopens a frozen coordinator after a failed close.
func (c *Coordinator) thaw() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
}
