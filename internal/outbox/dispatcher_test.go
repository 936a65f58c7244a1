package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/domain"
	memlock "github.com/social-eventfabric/realtime/pkg/concurrency/distlock/adapters/memory"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

type fakeRepo struct {
	mu        sync.Mutex
	pending   []*domain.OutboxEntry
	published map[string]bool
}

func newFakeRepo(entries ...*domain.OutboxEntry) *fakeRepo {
	return &fakeRepo{pending: entries, published: map[string]bool{}}
}

func (r *fakeRepo) FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OutboxEntry
	for _, e := range r.pending {
		if !r.published[e.ID] {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) MarkPublished(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[id] = true
	return nil
}

func (r *fakeRepo) isPublished(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published[id]
}

type fakeProducer struct {
	mu        sync.Mutex
	published []*messaging.Message
	fail      bool
}

func (p *fakeProducer) Publish(ctx context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	if p.fail {
		return assert.AnError
	}
	return nil
}

func (p *fakeProducer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, m := range msgs {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestDrainOncePublishesAndMarksPending(t *testing.T) {
	repo := newFakeRepo(&domain.OutboxEntry{
		ID:         "1",
		RoutingKey: domain.RoutingViolationEvents,
		Payload:    []byte(`{"owner_id":"u1","reason":"spam"}`),
		Status:     domain.OutboxPending,
	})
	producer := &fakeProducer{}
	d := NewDispatcher(repo, producer, memlock.New(), Params{PollInterval: time.Millisecond, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.pool.Start(ctx)
	d.drainOnce(ctx)

	require.Eventually(t, func() bool {
		return producer.count() == 1 && repo.isPublished("1")
	}, time.Second, time.Millisecond)

	var got wireEvent
	require.NoError(t, json.Unmarshal(producer.published[0].Payload, &got))
	assert.Equal(t, "violation.events", got.RoutingKey)
	assert.Equal(t, "1", got.MessageID)
}

func TestDrainOnceLeavesEntryPendingOnPublishFailure(t *testing.T) {
	repo := newFakeRepo(&domain.OutboxEntry{
		ID:         "2",
		RoutingKey: domain.RoutingPostLiked,
		Payload:    []byte(`{}`),
		Status:     domain.OutboxPending,
	})
	producer := &fakeProducer{fail: true}
	d := NewDispatcher(repo, producer, memlock.New(), Params{PollInterval: time.Millisecond, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.pool.Start(ctx)
	d.drainOnce(ctx)

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, time.Millisecond)
	assert.False(t, repo.isPublished("2"))
}

func TestDrainOnceSkipsWhenLockHeldByAnotherProcess(t *testing.T) {
	repo := newFakeRepo(&domain.OutboxEntry{
		ID:         "3",
		RoutingKey: domain.RoutingPostLiked,
		Payload:    []byte(`{}`),
		Status:     domain.OutboxPending,
	})
	producer := &fakeProducer{}
	locker := memlock.New()

	held := locker.NewLock("outbox:drain", time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	d := NewDispatcher(repo, producer, locker, Params{PollInterval: time.Millisecond, BatchSize: 10})
	d.drainOnce(context.Background())

	assert.Equal(t, 0, producer.count())
	assert.False(t, repo.isPublished("3"))
}
