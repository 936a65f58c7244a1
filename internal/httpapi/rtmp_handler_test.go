package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/internal/rtmp"
)

type fakeSessionStore struct {
	sessions map[string]*domain.StreamSession
}

func (f *fakeSessionStore) FindByID(ctx context.Context, id string) (*domain.StreamSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, assert.AnError
	}
	return s, nil
}

func (f *fakeSessionStore) Save(ctx context.Context, s *domain.StreamSession) error {
	f.sessions[s.ID] = s
	return nil
}

func TestRTMPCallbackAcceptsValidPublish(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.StreamSession{
		"5": {ID: "5", Token: "tok", Status: domain.StreamIdle},
	}}
	s := NewServer(Deps{RTMP: rtmp.NewService(store)})

	form := url.Values{"action": {"on_publish"}, "stream": {"5"}, "param": {"?token=tok"}}
	req := httptest.NewRequest(http.MethodPost, "/rtmp/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":0}`, rec.Body.String())
}

func TestRTMPCallbackRejectsBadToken(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.StreamSession{
		"5": {ID: "5", Token: "tok", Status: domain.StreamIdle},
	}}
	s := NewServer(Deps{RTMP: rtmp.NewService(store)})

	form := url.Values{"action": {"on_publish"}, "stream": {"5"}, "param": {"?token=wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/rtmp/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":1}`, rec.Body.String())
}

func TestHealthzReturnsOK(t *testing.T) {
	s := NewServer(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
