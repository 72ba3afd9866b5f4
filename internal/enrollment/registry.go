package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

const (
	finalCountAttempts = 3
	finalCountBackoff  = 20 * time.Millisecond
)

// Broadcaster is the part of the hub the registry drives.
type Broadcaster interface {
	Publisher
	CloseSession(sessionID string, final broadcast.Update)
}

// RegistryConfig tunes coordinators built by the registry.
type RegistryConfig struct {
	PersistTimeout time.Duration
}

// Registry owns the lifecycle of sessions and the single live coordinator of
// every open session.
type Registry struct {
	store   Store
	hub     Broadcaster
	metrics Metrics
	logger  *zap.Logger
	cfg     RegistryConfig

	mu           sync.RWMutex
	coordinators map[string]*Coordinator
	names        map[string]string

	// lifecycle orders seeding against stopping so a coordinator is never
	// registered for a session that closed while it was being built.
	lifecycle sync.Mutex
	group     singleflight.Group
}

// NewRegistry constructs a registry. metrics may be nil.
func NewRegistry(store Store, hub Broadcaster, metrics Metrics, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:        store,
		hub:          hub,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		coordinators: make(map[string]*Coordinator),
		names:        make(map[string]string),
	}
}

// Start opens an upcoming session. Starting an open session is a no-op
// returning it; a closed session cannot be reopened.
func (r *Registry) Start(ctx context.Context, ref string) (*models.Session, error) {
	session, err := r.store.GetSession(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionStatusClosed:
		return nil, fmt.Errorf("%w: session %s is closed", ErrInvalidTransition, session.Name)
	case models.SessionStatusOpen:
		_, current, err := r.activate(ctx, session)
		return current, err
	}

	v, err, _ := r.group.Do("start:"+session.ID, func() (interface{}, error) {
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()

		if c := r.live(session.ID); c != nil {
			return r.store.GetSession(ctx, session.ID)
		}
		state, err := r.store.LoadSessionState(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		c, err := r.seed(ctx, session, state)
		if err != nil {
			return nil, err
		}
		opened, err := r.store.UpdateSessionStatus(ctx, session.ID, models.SessionStatusUpcoming, models.SessionStatusOpen)
		if errors.Is(err, ErrStatusConflict) {
			// Another caller moved it; report based on what it is now.
			current, gerr := r.store.GetSession(ctx, session.ID)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status != models.SessionStatusOpen {
				return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, current.Name, current.Status)
			}
			r.register(current, c)
			c.Announce()
			return current, nil
		}
		if err != nil {
			return nil, err
		}
		r.register(opened, c)
		c.Announce()
		r.logger.Info("session started", zap.String("session_id", opened.ID), zap.String("name", opened.Name))
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

// Stop closes an open session, freezing its coordinator and ending its
// broadcast feed. Stopping a closed session is a no-op; an upcoming session
// cannot be stopped.
func (r *Registry) Stop(ctx context.Context, ref string) (*models.Session, error) {
	session, err := r.store.GetSession(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionStatusClosed:
		return session, nil
	case models.SessionStatusUpcoming:
		return nil, fmt.Errorf("%w: session %s has not started", ErrInvalidTransition, session.Name)
	}

	v, err, _ := r.group.Do("stop:"+session.ID, func() (interface{}, error) {
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()

		c := r.live(session.ID)
		var final broadcast.Update
		if c != nil {
			final = c.freeze()
		}

		closed, err := r.store.UpdateSessionStatus(ctx, session.ID, models.SessionStatusOpen, models.SessionStatusClosed)
		if err != nil {
			if c != nil {
				c.thaw()
			}
			if errors.Is(err, ErrStatusConflict) {
				return r.store.GetSession(ctx, session.ID)
			}
			return nil, err
		}

		if c == nil {
			final = broadcast.Update{SeatsFilled: r.finalCounts(ctx, session.ID)}
		}
		r.unregister(closed)
		r.hub.CloseSession(closed.ID, final)
		r.logger.Info("session stopped", zap.String("session_id", closed.ID), zap.Int("applied_students", closed.AppliedStudents))
		return closed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

// Recover rebuilds coordinators for every session the store reports open.
// It returns how many sessions are live afterwards.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	sessions, err := r.store.ListSessionsByStatus(ctx, models.SessionStatusOpen)
	if err != nil {
		return 0, err
	}

	var errs []error
	live := 0
	for i := range sessions {
		c, _, err := r.activate(ctx, &sessions[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("recover %s: %w", sessions[i].ID, err))
			continue
		}
		if c != nil {
			live++
		}
	}
	if live > 0 {
		r.logger.Info("recovered open sessions", zap.Int("sessions", live))
	}
	return live, errors.Join(errs...)
}

// Route returns the coordinator of an open session, rebuilding it from the
// store if this process has none. Sessions that are not open yield
// (nil, session, nil).
func (r *Registry) Route(ctx context.Context, ref string) (*Coordinator, *models.Session, error) {
	if c := r.lookup(ref); c != nil {
		return c, nil, nil
	}
	session, err := r.store.GetSession(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != models.SessionStatusOpen {
		return nil, session, nil
	}
	return r.activate(ctx, session)
}

// Submit routes an enrollment request to its session.
func (r *Registry) Submit(ctx context.Context, ref, studentID, courseID string) (Result, error) {
	c, _, err := r.Route(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if c == nil {
		if r.metrics != nil {
			r.metrics.RecordOutcome(string(OutcomeSessionNotOpen))
		}
		return sessionNotOpen, nil
	}
	return c.Submit(ctx, studentID, courseID)
}

// Lookup reports the course a student is enrolled in, if any.
func (r *Registry) Lookup(ctx context.Context, ref, studentID string) (string, bool, error) {
	c, session, err := r.Route(ctx, ref)
	if err != nil {
		return "", false, err
	}
	if c != nil {
		courseID, ok := c.Lookup(studentID)
		return courseID, ok, nil
	}
	e, err := r.store.FindEnrollment(ctx, session.ID, studentID)
	if err != nil {
		return "", false, err
	}
	if e == nil {
		return "", false, nil
	}
	return e.CourseID, true, nil
}

// Snapshot returns the current counts of a session. It is the hub's
// snapshot source.
func (r *Registry) Snapshot(ctx context.Context, ref string) (broadcast.Update, error) {
	c, session, err := r.Route(ctx, ref)
	if err != nil {
		return broadcast.Update{}, err
	}
	if c != nil {
		return c.Snapshot(), nil
	}
	courses, err := r.store.ListCourses(ctx, session.ID)
	if err != nil {
		return broadcast.Update{}, err
	}
	t := broadcast.UpdateSnapshot
	if session.Status == models.SessionStatusClosed {
		t = broadcast.UpdateClosed
	}
	return broadcast.Update{Type: t, SessionID: session.ID, SeatsFilled: seatsFromCourses(courses)}, nil
}

// LiveSessions returns the number of sessions with a coordinator.
func (r *Registry) LiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coordinators)
}

type activation struct {
	coordinator *Coordinator
	session     *models.Session
}

// activate returns the live coordinator of an open session, building it from
// the store when missing. A session found no longer open yields a nil
// coordinator with its current row.
func (r *Registry) activate(ctx context.Context, session *models.Session) (*Coordinator, *models.Session, error) {
	if c := r.live(session.ID); c != nil {
		return c, session, nil
	}
	v, err, _ := r.group.Do("recover:"+session.ID, func() (interface{}, error) {
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()

		current, err := r.store.GetSession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if c := r.live(current.ID); c != nil {
			return activation{c, current}, nil
		}
		if current.Status != models.SessionStatusOpen {
			return activation{nil, current}, nil
		}
		state, err := r.store.LoadSessionState(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		c, err := r.seed(ctx, current, state)
		if err != nil {
			return nil, err
		}
		r.register(current, c)
		r.logger.Info("session coordinator rebuilt", zap.String("session_id", current.ID), zap.Int("applied_students", c.Applied()))
		return activation{c, current}, nil
	})
	if err != nil {
		return nil, session, err
	}
	a := v.(activation)
	return a.coordinator, a.session, nil
}

func (r *Registry) seed(ctx context.Context, session *models.Session, state *SessionState) (*Coordinator, error) {
	c, filled, err := newCoordinator(session.ID, state, coordinatorOptions{
		store:          r.store,
		publisher:      r.hub,
		metrics:        r.metrics,
		logger:         r.logger,
		persistTimeout: r.cfg.PersistTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("seed session %s: %w", session.ID, err)
	}

	if drifted(state.Courses, filled) || session.AppliedStudents != len(state.Enrollments) {
		r.logger.Warn("stored seat counts drifted from enrollments, rewriting", zap.String("session_id", session.ID))
		if err := r.store.SyncSeatCounts(ctx, session.ID, filled, len(state.Enrollments)); err != nil {
			return nil, fmt.Errorf("sync seat counts: %w", err)
		}
	}
	return c, nil
}

func (r *Registry) live(sessionID string) *Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinators[sessionID]
}

func (r *Registry) lookup(ref string) *Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.coordinators[ref]; ok {
		return c
	}
	if id, ok := r.names[ref]; ok {
		return r.coordinators[id]
	}
	return nil
}

func (r *Registry) register(session *models.Session, c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinators[session.ID] = c
	r.names[session.Name] = session.ID
}

func (r *Registry) unregister(session *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.coordinators, session.ID)
	delete(r.names, session.Name)
}

func drifted(courses []models.Course, filled map[string]int) bool {
	for _, c := range courses {
		if c.SeatsFilled != filled[c.ID] {
			return true
		}
	}
	return false
}

// finalCounts reads the closing counts of a session that has no live
// coordinator. It returns nil when the store stays unreadable; the closed
// update then carries no counts and subscribers keep the last ones they saw.
func (r *Registry) finalCounts(ctx context.Context, sessionID string) map[string]int {
	var err error
retry:
	for attempt := 1; attempt <= finalCountAttempts; attempt++ {
		var courses []models.Course
		courses, err = r.store.ListCourses(ctx, sessionID)
		if err == nil {
			return seatsFromCourses(courses)
		}
		if attempt == finalCountAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * finalCountBackoff):
		case <-ctx.Done():
			break retry
		}
	}
	r.logger.Error("final seat counts unavailable, closing feed without counts",
		zap.String("session_id", sessionID), zap.Error(err))
	return nil
}

func seatsFromCourses(courses []models.Course) map[string]int {
	out := make(map[string]int, len(courses))
	for _, c := range courses {
		out[c.ID] = c.SeatsFilled
	}
	return out
}
