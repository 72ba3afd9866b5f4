package broadcast

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// Subscription is one reader's view of a session feed. Next must not be
// called from more than one goroutine at a time.
type Subscription struct {
	hub       *Hub
	sessionID string
	ch        chan Update
	done      chan struct{}
	closeOnce sync.Once
	stale     atomic.Bool
	final     atomic.Pointer[Update]

	pending   *Update
	lastSeq   uint64
	delivered bool
	finished  bool
}

// SessionID returns the observed session.
func (s *Subscription) SessionID() string { return s.sessionID }

// Next blocks for the next update. Updates never carry a sequence lower
// than one already returned. After the closing update it returns ErrClosed.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	if s.finished {
		return Update{}, ErrClosed
	}
	if s.pending != nil {
		u := *s.pending
		s.pending = nil
		return s.deliver(u), nil
	}

	for {
		if s.stale.CompareAndSwap(true, false) {
			s.drain()
			u, err := s.hub.snapshotFunc()(ctx, s.sessionID)
			if err != nil {
				return Update{}, err
			}
			if !s.delivered || u.Seq >= s.lastSeq {
				u.Type = orSnapshot(u.Type)
				return s.deliver(u), nil
			}
		}

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case u := <-s.ch:
			if s.delivered && u.Seq <= s.lastSeq {
				continue
			}
			return s.deliver(u), nil
		case <-s.done:
			if f := s.final.Swap(nil); f != nil {
				return s.deliver(*f), nil
			}
			s.finished = true
			return Update{}, ErrClosed
		}
	}
}

// Updates exposes the feed as an iterator that stops when the subscription
// ends or ctx is cancelled.
func (s *Subscription) Updates(ctx context.Context) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		for {
			u, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(u) {
				return
			}
		}
	}
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.hub.remove(s) {
		s.hub.notifySubscribers(-1)
	}
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) deliver(u Update) Update {
	if u.Seq > s.lastSeq {
		s.lastSeq = u.Seq
	}
	s.delivered = true
	if u.Type == UpdateClosed {
		s.finished = true
	}
	return u
}

func (s *Subscription) drain() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}
