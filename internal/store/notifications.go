package store

import (
	"context"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/database"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"gorm.io/gorm"
)

// NotificationRepository persists Notification rows and backs the
// aggregation lookups the consumer relies on.
type NotificationRepository struct {
	db database.DB
}

func NewNotificationRepository(db database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func toRow(n *domain.Notification) *NotificationRow {
	return &NotificationRow{
		ID:               n.ID,
		UserID:           n.UserID,
		TitleTemplate:    n.TitleTemplate,
		BodyTemplate:     n.BodyTemplate,
		NotificationType: n.NotificationType,
		ReferenceID:      n.ReferenceID,
		ActorsCount:      n.ActorsCount,
		LastActorID:      n.LastActorID,
		LastActorName:    n.LastActorName,
		IsRead:           n.IsRead,
		LinkURL:          n.LinkURL,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func fromRow(r *NotificationRow) *domain.Notification {
	return &domain.Notification{
		ID:               r.ID,
		UserID:           r.UserID,
		TitleTemplate:    r.TitleTemplate,
		BodyTemplate:     r.BodyTemplate,
		NotificationType: r.NotificationType,
		ReferenceID:      r.ReferenceID,
		ActorsCount:      r.ActorsCount,
		LastActorID:      r.LastActorID,
		LastActorName:    r.LastActorName,
		IsRead:           r.IsRead,
		LinkURL:          r.LinkURL,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Create inserts a single, non-aggregated notification.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	row := toRow(n)
	if err := r.db.Get(ctx).WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.Wrap(err, "failed to create notification")
	}
	return nil
}

// CreateMany inserts a batch of non-aggregated notifications in one
// statement, used for post.created fan-out to many followers.
func (r *NotificationRepository) CreateMany(ctx context.Context, ns []*domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	rows := make([]*NotificationRow, len(ns))
	for i, n := range ns {
		rows[i] = toRow(n)
	}
	if err := r.db.Get(ctx).WithContext(ctx).Create(&rows).Error; err != nil {
		return apperrors.Wrap(err, "failed to create notifications")
	}
	return nil
}

// FindAggregated looks up the existing aggregation row for (userID,
// notificationType, referenceID) created within window of now, if any.
// All three must match: a post.liked and a post.commented notification
// referencing the same post_id are distinct aggregation targets. Returns
// apperrors.CodeNotFound when no row qualifies, signalling the caller to
// create a fresh row instead of aggregating onto a stale one.
func (r *NotificationRepository) FindAggregated(ctx context.Context, userID, notificationType, referenceID string, window time.Duration, now time.Time) (*domain.Notification, error) {
	var row NotificationRow
	cutoff := now.Add(-window)
	err := r.db.Get(ctx).WithContext(ctx).
		Where("user_id = ? AND notification_type = ? AND reference_id = ? AND created_at >= ?", userID, notificationType, referenceID, cutoff).
		Order("created_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("no aggregation row in window", err)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find aggregated notification")
	}
	return fromRow(&row), nil
}

// CreateAggregated upserts n by primary key: it inserts the first row of
// an aggregation or overwrites an existing one, and returns only an error.
// The caller recomputes ActorsCount, LastActorID/LastActorName and body
// before calling this.
func (r *NotificationRepository) CreateAggregated(ctx context.Context, n *domain.Notification) error {
	row := toRow(n)
	return apperrors.Wrap(r.db.Get(ctx).WithContext(ctx).Save(row).Error, "failed to save aggregated notification")
}

// FindByUser returns a user's notifications newest first.
func (r *NotificationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var rows []NotificationRow
	q := r.db.Get(ctx).WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to find notifications by user")
	}
	out := make([]*domain.Notification, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

// MarkRead flips is_read for a single notification. Idempotent: marking
// an already-read notification again is a no-op, not an error.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	err := r.db.Get(ctx).WithContext(ctx).Model(&NotificationRow{}).
		Where("id = ?", id).Update("is_read", true).Error
	return apperrors.Wrap(err, "failed to mark notification read")
}

// Delete removes a notification.
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	err := r.db.Get(ctx).WithContext(ctx).Delete(&NotificationRow{}, "id = ?", id).Error
	return apperrors.Wrap(err, "failed to delete notification")
}
