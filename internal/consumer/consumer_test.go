package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/idempotency"
	"github.com/social-eventfabric/realtime/internal/notify"
	"github.com/social-eventfabric/realtime/internal/store"
	memorycache "github.com/social-eventfabric/realtime/pkg/cache/adapters/memory"
	memorylock "github.com/social-eventfabric/realtime/pkg/concurrency/distlock/adapters/memory"
	"github.com/social-eventfabric/realtime/pkg/database"
	dbsql "github.com/social-eventfabric/realtime/pkg/database/sql"
	"github.com/social-eventfabric/realtime/pkg/database/sql/adapters/sqlite"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

type noopPublisher struct{}

func (noopPublisher) PublishToUser(ctx context.Context, userID string, frame []byte) error {
	return nil
}

func newTestConsumer(t *testing.T) (*Consumer, *notify.Service) {
	t.Helper()
	db, err := sqlite.New(dbsql.Config{Driver: database.DriverSQLite, Name: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Get(context.Background()).AutoMigrate(&store.NotificationRow{}))

	repo := store.NewNotificationRepository(db)
	notifySvc := notify.NewService(repo, noopPublisher{}, 24*time.Hour)

	dedup := idempotency.New(memorycache.New(), memorylock.New(), time.Hour)
	c := New(notifySvc, dedup, Options{DedupTTL: time.Hour})
	return c, notifySvc
}

func likedEvent(t *testing.T, liker string) *messaging.Message {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"routing_key": "post.liked",
		"body": map[string]interface{}{
			"owner_id":   "u1",
			"post_id":    "p1",
			"actor_id":   liker,
			"actor_name": liker,
		},
	})
	require.NoError(t, err)
	return &messaging.Message{Topic: "post.liked", Payload: body}
}

func TestAggregatedLikeProducesSingleRowWithCount(t *testing.T) {
	c, notifySvc := newTestConsumer(t)
	ctx := context.Background()

	for _, liker := range []string{"A", "B", "C"} {
		require.NoError(t, c.Handle(ctx, likedEvent(t, liker)))
	}

	rows, err := notifySvc.FindByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].ActorsCount)
	assert.Equal(t, "C", rows[0].LastActorName)
	assert.Equal(t, "C and 2 others liked your post", rows[0].BodyTemplate)
}

func TestDuplicateViolationEventSuppressed(t *testing.T) {
	c, notifySvc := newTestConsumer(t)
	ctx := context.Background()

	body, err := json.Marshal(map[string]interface{}{
		"routing_key": "violation.events",
		"message_id":  "evt-violation-1",
		"body": map[string]interface{}{
			"owner_id": "u9",
			"reason":   "nudity",
		},
	})
	require.NoError(t, err)
	msg := &messaging.Message{Topic: "violation.events", Payload: body}

	require.NoError(t, c.Handle(ctx, msg))
	require.NoError(t, c.Handle(ctx, msg))

	rows, err := notifySvc.FindByUser(ctx, "u9", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUnknownRoutingKeyIsDroppedNotErrored(t *testing.T) {
	c, _ := newTestConsumer(t)
	body, _ := json.Marshal(map[string]interface{}{"routing_key": "unknown.thing", "body": map[string]interface{}{}})
	err := c.Handle(context.Background(), &messaging.Message{Topic: "unknown.thing", Payload: body})
	assert.NoError(t, err)
}
