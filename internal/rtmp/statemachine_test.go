package rtmp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/domain"
)

type fakeSessionStore struct {
	sessions map[string]*domain.StreamSession
}

func newFakeSessionStore(sessions ...*domain.StreamSession) *fakeSessionStore {
	m := make(map[string]*domain.StreamSession, len(sessions))
	for _, s := range sessions {
		m[s.ID] = s
	}
	return &fakeSessionStore{sessions: m}
}

func (f *fakeSessionStore) FindByID(ctx context.Context, id string) (*domain.StreamSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Save(ctx context.Context, s *domain.StreamSession) error {
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func TestOnPublishOfIdleSessionTransitionsToLive(t *testing.T) {
	store := newFakeSessionStore(&domain.StreamSession{ID: "5", Token: "tok", Status: domain.StreamIdle})
	svc := NewService(store)

	code := svc.OnPublish(context.Background(), "5", "tok")

	assert.Equal(t, CodeAccept, code)
	sess, _ := store.FindByID(context.Background(), "5")
	assert.Equal(t, domain.StreamLive, sess.Status)
	require.NotNil(t, sess.StartedAt)
}

func TestOnPublishRejectsWrongToken(t *testing.T) {
	store := newFakeSessionStore(&domain.StreamSession{ID: "5", Token: "tok", Status: domain.StreamIdle})
	svc := NewService(store)

	code := svc.OnPublish(context.Background(), "5", "wrong")

	assert.Equal(t, CodeReject, code)
	sess, _ := store.FindByID(context.Background(), "5")
	assert.Equal(t, domain.StreamIdle, sess.Status)
}

func TestOnPublishRejectsNonIdleSession(t *testing.T) {
	store := newFakeSessionStore(&domain.StreamSession{ID: "5", Token: "tok", Status: domain.StreamLive})
	svc := NewService(store)

	code := svc.OnPublish(context.Background(), "5", "tok")

	assert.Equal(t, CodeReject, code)
}

func TestOnUnpublishIsIdempotentAfterFirstCall(t *testing.T) {
	store := newFakeSessionStore(&domain.StreamSession{ID: "5", Token: "tok", Status: domain.StreamLive, ViewerCount: 12})
	svc := NewService(store)

	code1 := svc.OnUnpublish(context.Background(), "5")
	sess, _ := store.FindByID(context.Background(), "5")
	require.Equal(t, domain.StreamEnded, sess.Status)
	assert.Equal(t, 0, sess.ViewerCount)

	code2 := svc.OnUnpublish(context.Background(), "5")
	code3 := svc.OnUnpublish(context.Background(), "5")

	assert.Equal(t, CodeAccept, code1)
	assert.Equal(t, CodeAccept, code2)
	assert.Equal(t, CodeAccept, code3)
}

func TestOnUnpublishOfIdleSessionIsNoopAccept(t *testing.T) {
	store := newFakeSessionStore(&domain.StreamSession{ID: "5", Token: "tok", Status: domain.StreamIdle})
	svc := NewService(store)

	code := svc.OnUnpublish(context.Background(), "5")

	assert.Equal(t, CodeAccept, code)
	sess, _ := store.FindByID(context.Background(), "5")
	assert.Equal(t, domain.StreamIdle, sess.Status)
}

func TestExtractTokenFromParam(t *testing.T) {
	assert.Equal(t, "tok", ExtractToken("?token=tok"))
	assert.Equal(t, "tok", ExtractToken("token=tok"))
	assert.Equal(t, "", ExtractToken(""))
}
