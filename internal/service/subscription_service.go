package service

import (
	"context"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

type sessionResolver interface {
	FindByRef(ctx context.Context, ref string) (*models.Session, error)
}

type seatFeed interface {
	Subscribe(ctx context.Context, sessionID string) (*broadcast.Subscription, error)
}

// SubscriptionService opens seat feeds addressed by session id or name.
type SubscriptionService struct {
	sessions sessionResolver
	feed     seatFeed
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(sessions sessionResolver, feed seatFeed) *SubscriptionService {
	return &SubscriptionService{sessions: sessions, feed: feed}
}

// Subscribe resolves ref and registers a subscription on its seat feed. The
// first update delivered is a snapshot.
func (s *SubscriptionService) Subscribe(ctx context.Context, ref string) (*broadcast.Subscription, error) {
	session, err := s.sessions.FindByRef(ctx, ref)
	if err != nil {
		return nil, mapCoreError(err, "failed to resolve session")
	}
	sub, err := s.feed.Subscribe(ctx, session.ID)
	if err != nil {
		return nil, mapCoreError(err, "failed to subscribe to seat feed")
	}
	return sub, nil
}
