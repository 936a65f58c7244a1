// Package notify implements the notification store: durable writes plus
// a best-effort realtime push to whichever gateway instance holds the
// recipient's WebSocket connection.
package notify

import (
	"context"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/internal/store"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/google/uuid"
)

// RealtimePublisher delivers a push frame to a user's connection,
// wherever in the fleet it is held. Failures here are logged, never
// propagated: the durable write already succeeded.
type RealtimePublisher interface {
	PublishToUser(ctx context.Context, userID string, frame []byte) error
}

// Frame renders the push payload described for notification events.
type Frame struct {
	EventType string            `json:"event_type"`
	UserIDs   []string          `json:"user_ids"`
	Payload   FramePayload      `json:"payload"`
}

type FramePayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Link      string `json:"link"`
	CreatedAt string `json:"createdAt"`
}

// Service implements the notification store's operations.
type Service struct {
	repo      *store.NotificationRepository
	publisher RealtimePublisher
	window    time.Duration
}

func NewService(repo *store.NotificationRepository, publisher RealtimePublisher, aggregateWindow time.Duration) *Service {
	return &Service{repo: repo, publisher: publisher, window: aggregateWindow}
}

// Create inserts a single, non-aggregated notification and pushes it
// realtime on a best-effort basis.
func (s *Service) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	if n.ActorsCount == 0 {
		n.ActorsCount = 1
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.pushBestEffort(ctx, n)
	return nil
}

// CreateMany inserts a batch (e.g. post.created fan-out to followers)
// and pushes each realtime on a best-effort basis. A push failure for
// one recipient does not affect the others or roll back the write.
func (s *Service) CreateMany(ctx context.Context, ns []*domain.Notification) error {
	now := time.Now()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		n.CreatedAt, n.UpdatedAt = now, now
		if n.ActorsCount == 0 {
			n.ActorsCount = 1
		}
	}
	if err := s.repo.CreateMany(ctx, ns); err != nil {
		return err
	}
	for _, n := range ns {
		s.pushBestEffort(ctx, n)
	}
	return nil
}

// CreateAggregated folds a new actor into the existing row for (userID,
// notificationType, referenceID) within the aggregation window, or
// creates a fresh row if none qualifies. verb renders the present-tense
// action ("liked your post", "commented on your post", ...).
func (s *Service) CreateAggregated(ctx context.Context, userID, referenceID, notificationType, linkURL, actorID, actorName, verb string) (*domain.Notification, error) {
	now := time.Now()
	existing, err := s.repo.FindAggregated(ctx, userID, notificationType, referenceID, s.window, now)
	if err != nil && apperrors.Code(err) != apperrors.CodeNotFound {
		return nil, err
	}

	var n *domain.Notification
	if existing != nil {
		n = existing
		n.ActorsCount++
		n.LastActorID = actorID
		n.LastActorName = actorName
		n.UpdatedAt = now
	} else {
		n = &domain.Notification{
			ID:               uuid.New().String(),
			UserID:           userID,
			NotificationType: notificationType,
			ReferenceID:      referenceID,
			ActorsCount:      1,
			LastActorID:      actorID,
			LastActorName:    actorName,
			LinkURL:          linkURL,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}
	n.BodyTemplate = n.AggregateBody(verb)

	if err := s.repo.CreateAggregated(ctx, n); err != nil {
		return nil, err
	}
	s.pushBestEffort(ctx, n)
	return n, nil
}

// FindByUser lists a user's notifications newest first.
func (s *Service) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	return s.repo.FindByUser(ctx, userID, limit)
}

// FindAggregated returns the active aggregated row for (userID,
// notificationType, referenceID) within the aggregation window, or
// apperrors.CodeNotFound if none qualifies.
func (s *Service) FindAggregated(ctx context.Context, userID, notificationType, referenceID string) (*domain.Notification, error) {
	return s.repo.FindAggregated(ctx, userID, notificationType, referenceID, s.window, time.Now())
}

// MarkRead flips is_read for a single notification.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}

// Delete removes a notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) pushBestEffort(ctx context.Context, n *domain.Notification) {
	if s.publisher == nil {
		return
	}
	frame, err := encodeFrame(n)
	if err != nil {
		logger.L().WarnContext(ctx, "failed to encode notification push frame", "notification_id", n.ID, "error", err)
		return
	}
	if err := s.publisher.PublishToUser(ctx, n.UserID, frame); err != nil {
		logger.L().WarnContext(ctx, "failed to push notification realtime", "notification_id", n.ID, "user_id", n.UserID, "error", err)
	}
}
