// Package broadcast fans seat-count updates out to the subscribers of each
// session without letting slow readers hold up publishers.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// UpdateType labels an Update.
type UpdateType string

const (
	UpdateSnapshot UpdateType = "snapshot"
	UpdateDelta    UpdateType = "delta"
	UpdateClosed   UpdateType = "closed"
)

// Update maps course id to seats filled. A snapshot carries every course of
// the session, a delta only the courses that changed. Seq increases with
// every grant in the session. A closed update may carry no counts when they
// could not be read; readers keep the last counts they saw.
type Update struct {
	Type        UpdateType     `json:"type"`
	SessionID   string         `json:"session_id"`
	Seq         uint64         `json:"seq"`
	SeatsFilled map[string]int `json:"seats_filled,omitempty"`
}

// SnapshotFunc returns the current full state of a session.
type SnapshotFunc func(ctx context.Context, sessionID string) (Update, error)

// Observer receives hub events for metrics.
type Observer interface {
	SubscribersChanged(delta int)
	UpdateDropped()
}

// ErrClosed is returned by Next once a subscription has ended.
var ErrClosed = errors.New("subscription closed")

const defaultBuffer = 16

// Hub holds the subscriber sets of every session.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*Subscription]struct{}
	snapshot SnapshotFunc
	buffer   int
	observer Observer
	logger   *zap.Logger
}

// NewHub builds a hub. snapshot may be set later with SetSnapshotFunc but
// must be present before the first Subscribe.
func NewHub(snapshot SnapshotFunc, buffer int, observer Observer, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:     make(map[string]map[*Subscription]struct{}),
		snapshot: snapshot,
		buffer:   buffer,
		observer: observer,
		logger:   logger,
	}
}

// SetSnapshotFunc installs the snapshot source. It resolves the construction
// cycle between the hub and the session registry.
func (h *Hub) SetSnapshotFunc(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// Subscribe registers a reader for sessionID. The first Next returns a full
// snapshot; later reads return deltas.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	sub := &Subscription{
		hub:       h,
		sessionID: sessionID,
		ch:        make(chan Update, h.buffer),
		done:      make(chan struct{}),
	}

	snapshot := h.snapshotFunc()
	if snapshot == nil {
		return nil, errors.New("broadcast: snapshot source not configured")
	}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	h.notifySubscribers(1)

	// Registered before the snapshot is read so no delta falls in between;
	// deltas older than the snapshot are discarded by sequence.
	initial, err := snapshot(ctx, sessionID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	initial.Type = orSnapshot(initial.Type)
	sub.pending = &initial
	if initial.Type == UpdateClosed {
		sub.Close()
	}
	return sub, nil
}

// Publish offers update to every subscriber of sessionID without blocking.
// A subscriber with a full buffer is marked stale and resyncs from a fresh
// snapshot on its next read.
func (h *Hub) Publish(sessionID string, update Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- update:
		default:
			sub.stale.Store(true)
			if h.observer != nil {
				h.observer.UpdateDropped()
			}
			h.logger.Debug("subscriber buffer full, marked for resync", zap.String("session_id", sessionID))
		}
	}
}

// CloseSession ends every subscription of sessionID; each reader receives
// final as its last update.
func (h *Hub) CloseSession(sessionID string, final Update) {
	final.Type = UpdateClosed
	final.SessionID = sessionID

	h.mu.Lock()
	set := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for sub := range set {
		f := final
		sub.final.Store(&f)
		sub.closeOnce.Do(func() { close(sub.done) })
	}
	h.notifySubscribers(-len(set))
	if len(set) > 0 {
		h.logger.Info("session feed closed", zap.String("session_id", sessionID), zap.Int("subscribers", len(set)))
	}
}

func (h *Hub) snapshotFunc() SnapshotFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot
}

// Subscribers reports the live subscriber count of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) remove(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.sessionID]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
	return true
}

func (h *Hub) notifySubscribers(delta int) {
	if h.observer != nil && delta != 0 {
		h.observer.SubscribersChanged(delta)
	}
}

func orSnapshot(t UpdateType) UpdateType {
	if t == "" || t == UpdateDelta {
		return UpdateSnapshot
	}
	return t
}
