package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/internal/store"
	"github.com/social-eventfabric/realtime/pkg/database"
	dbsql "github.com/social-eventfabric/realtime/pkg/database/sql"
	"github.com/social-eventfabric/realtime/pkg/database/sql/adapters/sqlite"
)

// failingPublisher always errors, used to assert that a realtime push
// failure never rolls back or fails the durable write.
type failingPublisher struct{ calls int }

func (f *failingPublisher) PublishToUser(ctx context.Context, userID string, frame []byte) error {
	f.calls++
	return errors.New("pub/sub unavailable")
}

func newTestService(t *testing.T, publisher RealtimePublisher) *Service {
	t.Helper()
	db, err := sqlite.New(dbsql.Config{Driver: database.DriverSQLite, Name: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Get(context.Background()).AutoMigrate(&store.NotificationRow{}))

	repo := store.NewNotificationRepository(db)
	return NewService(repo, publisher, 24*time.Hour)
}

func TestCreateSucceedsEvenWhenPushFails(t *testing.T) {
	pub := &failingPublisher{}
	svc := newTestService(t, pub)

	err := svc.Create(context.Background(), &domain.Notification{UserID: "u1", BodyTemplate: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)

	rows, err := svc.FindByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMarkReadIsMonotoneAndIdempotent(t *testing.T) {
	svc := newTestService(t, &failingPublisher{})
	ctx := context.Background()

	n := &domain.Notification{UserID: "u1", BodyTemplate: "hi"}
	require.NoError(t, svc.Create(ctx, n))

	require.NoError(t, svc.MarkRead(ctx, n.ID))
	require.NoError(t, svc.MarkRead(ctx, n.ID))

	rows, err := svc.FindByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsRead)
}

func TestCreateAggregatedOutsideWindowStartsFreshRow(t *testing.T) {
	svc := newTestService(t, &failingPublisher{})
	svc.window = time.Millisecond

	ctx := context.Background()
	n1, err := svc.CreateAggregated(ctx, "u1", "p1", "post.liked", "/posts/p1", "A", "A", "liked your post")
	require.NoError(t, err)
	assert.Equal(t, 1, n1.ActorsCount)

	time.Sleep(5 * time.Millisecond)

	n2, err := svc.CreateAggregated(ctx, "u1", "p1", "post.liked", "/posts/p1", "B", "B", "liked your post")
	require.NoError(t, err)
	assert.Equal(t, 1, n2.ActorsCount)
	assert.NotEqual(t, n1.ID, n2.ID)
}

func TestAggregationIsScopedByNotificationType(t *testing.T) {
	svc := newTestService(t, &failingPublisher{})
	ctx := context.Background()

	liked, err := svc.CreateAggregated(ctx, "u1", "p1", "post.liked", "/posts/p1", "A", "A", "liked your post")
	require.NoError(t, err)
	commented, err := svc.CreateAggregated(ctx, "u1", "p1", "post.commented", "/posts/p1", "B", "B", "commented on your post")
	require.NoError(t, err)

	assert.NotEqual(t, liked.ID, commented.ID)
	assert.Equal(t, 1, liked.ActorsCount)
	assert.Equal(t, 1, commented.ActorsCount)

	rows, err := svc.FindByUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDeleteRemovesNotification(t *testing.T) {
	svc := newTestService(t, &failingPublisher{})
	ctx := context.Background()

	n := &domain.Notification{UserID: "u1", BodyTemplate: "hi"}
	require.NoError(t, svc.Create(ctx, n))
	require.NoError(t, svc.Delete(ctx, n.ID))

	rows, err := svc.FindByUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
