// Package outbox implements the polling dispatcher that publishes
// transactionally-written OutboxEntry rows to the event bus.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/concurrency"
	"github.com/social-eventfabric/realtime/pkg/concurrency/distlock"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

const dispatchLockTTL = 5 * time.Second

// Params bundles the dispatcher's tunables.
type Params struct {
	PollInterval time.Duration
	BatchSize    int
}

// Repository is the capability set the dispatcher needs out of
// internal/store.OutboxRepository. Tests substitute an in-memory fake.
type Repository interface {
	FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error)
	MarkPublished(ctx context.Context, id string) error
}

// Dispatcher polls for pending OutboxEntry rows and publishes them to the
// bus. A distributed lock bounds concurrent drains to one process at a
// time across a horizontally scaled outbox fleet; this is an efficiency
// measure, not a correctness requirement, since consumer-side dedup
// already absorbs any at-least-once overlap.
type Dispatcher struct {
	repo     Repository
	producer messaging.Producer
	locker   distlock.Locker
	pool     *concurrency.WorkerPool
	params   Params
}

func NewDispatcher(repo Repository, producer messaging.Producer, locker distlock.Locker, params Params) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		producer: producer,
		locker:   locker,
		pool:     concurrency.NewWorkerPool(8, params.BatchSize),
		params:   params,
	}
}

// Run polls every PollInterval until ctx is cancelled, publishing and
// marking each pending batch.
func (d *Dispatcher) Run(ctx context.Context) {
	d.pool.Start(ctx)
	defer d.pool.Stop()

	ticker := time.NewTicker(d.params.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) {
	lock := d.locker.NewLock("outbox:drain", dispatchLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.L().WarnContext(ctx, "outbox dispatcher failed to acquire drain lock, skipping tick", "error", err)
		return
	}
	if !acquired {
		// Another process is draining this window; nothing to do here.
		return
	}
	defer lock.Release(ctx)

	batch, err := d.repo.FetchPendingBatch(ctx, d.params.BatchSize)
	if err != nil {
		logger.L().ErrorContext(ctx, "outbox dispatcher failed to fetch pending batch", "error", err)
		return
	}

	for _, entry := range batch {
		entry := entry
		d.pool.Submit(func(taskCtx context.Context) {
			d.publishOne(taskCtx, entry)
		})
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, entry *domain.OutboxEntry) {
	payload, err := json.Marshal(wireEvent{
		RoutingKey: string(entry.RoutingKey),
		MessageID:  entry.ID,
		Body:       rawMessage(entry.Payload),
	})
	if err != nil {
		logger.L().ErrorContext(ctx, "outbox dispatcher failed to encode entry", "entry_id", entry.ID, "error", err)
		return
	}

	if err := d.producer.Publish(ctx, &messaging.Message{
		ID:        entry.ID,
		Topic:     string(entry.RoutingKey),
		Payload:   payload,
		Timestamp: time.Now(),
	}); err != nil {
		// Left pending for the next poll tick; no status change on failure.
		logger.L().WarnContext(ctx, "outbox dispatcher publish failed, will retry", "entry_id", entry.ID, "error", err)
		return
	}

	if err := d.repo.MarkPublished(ctx, entry.ID); err != nil {
		logger.L().ErrorContext(ctx, "outbox dispatcher failed to mark entry published", "entry_id", entry.ID, "error", err)
	}
}

// wireEvent matches the shape internal/consumer.decode expects off the bus.
type wireEvent struct {
	RoutingKey string          `json:"routing_key"`
	MessageID  string          `json:"message_id"`
	Body       json.RawMessage `json:"body"`
}

func rawMessage(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}
