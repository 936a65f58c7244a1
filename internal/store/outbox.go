package store

import (
	"context"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/database"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
)

// OutboxRepository persists OutboxEntry rows and serves the polling
// dispatcher's batch query.
type OutboxRepository struct {
	db database.DB
}

func NewOutboxRepository(db database.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create inserts an outbox row through r.db.Get(ctx). The postgres and
// sqlite adapters return their primary connection for every context, so
// the insert runs as its own statement and does not join a transaction
// that the caller opened for the aggregate write it announces.
func (r *OutboxRepository) Create(ctx context.Context, e *domain.OutboxEntry) error {
	row := &OutboxRow{
		ID:          e.ID,
		AggregateID: e.AggregateID,
		RoutingKey:  string(e.RoutingKey),
		Payload:     e.Payload,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
	}
	return apperrors.Wrap(r.db.Get(ctx).WithContext(ctx).Create(row).Error, "failed to create outbox entry")
}

// FetchPendingBatch returns up to limit pending rows, oldest first.
func (r *OutboxRepository) FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	var rows []OutboxRow
	err := r.db.Get(ctx).WithContext(ctx).
		Where("status = ?", string(domain.OutboxPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch pending outbox batch")
	}
	out := make([]*domain.OutboxEntry, len(rows))
	for i, row := range rows {
		out[i] = &domain.OutboxEntry{
			ID:          row.ID,
			AggregateID: row.AggregateID,
			RoutingKey:  domain.RoutingKey(row.RoutingKey),
			Payload:     row.Payload,
			Status:      domain.OutboxStatus(row.Status),
			CreatedAt:   row.CreatedAt,
		}
	}
	return out, nil
}

// MarkPublished flips a row to published after a successful send. Left
// pending (untouched) on publish failure so the next poll retries it.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	err := r.db.Get(ctx).WithContext(ctx).Model(&OutboxRow{}).
		Where("id = ?", id).Update("status", string(domain.OutboxPublished)).Error
	return apperrors.Wrap(err, "failed to mark outbox entry published")
}
