// Package rtmp implements the publish state machine driven by the media
// server's on_publish/on_unpublish webhook callbacks.
package rtmp

import (
	"context"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"github.com/social-eventfabric/realtime/pkg/logger"
)

// Code mirrors the media server's accept/reject contract: {code:0}
// accepts the publish, {code:1} rejects it.
type Code int

const (
	CodeAccept Code = 0
	CodeReject Code = 1
)

// SessionStore is the capability set the state machine needs: lookup by
// the webhook's stream id, and upsert. internal/store.SessionRepository
// implements this against GORM; tests substitute an in-memory fake.
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*domain.StreamSession, error)
	Save(ctx context.Context, s *domain.StreamSession) error
}

// Service implements the RTMP publish state machine over a SessionStore.
// Transitions only ever move forward: Idle -> Live -> Ended.
type Service struct {
	repo SessionStore
}

func NewService(repo SessionStore) *Service {
	return &Service{repo: repo}
}

// OnPublish requires a stored session for streamID currently Idle and
// bearing the expected token. Any other current state, or a token
// mismatch, is rejected; the media server is told to refuse the publish.
// Idle -> Live is the only transition this method ever performs.
func (s *Service) OnPublish(ctx context.Context, streamID, token string) Code {
	sess, err := s.repo.FindByID(ctx, streamID)
	if err != nil {
		logger.L().WarnContext(ctx, "on_publish for unknown stream", "stream_id", streamID)
		return CodeReject
	}

	if sess.Token != token {
		logger.L().WarnContext(ctx, "on_publish rejected: token mismatch", "stream_id", streamID)
		return CodeReject
	}
	if sess.Status != domain.StreamIdle {
		logger.L().WarnContext(ctx, "on_publish rejected: session not idle", "stream_id", streamID, "status", sess.Status)
		return CodeReject
	}

	now := time.Now()
	sess.Status = domain.StreamLive
	sess.StartedAt = &now
	if err := s.repo.Save(ctx, sess); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist on_publish transition", "stream_id", streamID, "error", err)
		return CodeReject
	}
	return CodeAccept
}

// OnUnpublish transitions a Live session to Ended, resetting
// ViewerCount. Called again for an already-Ended or still-Idle session it
// is a no-op; the media server always receives an accept code since this
// callback must never be retried by it.
func (s *Service) OnUnpublish(ctx context.Context, streamID string) Code {
	sess, err := s.repo.FindByID(ctx, streamID)
	if err != nil {
		return CodeAccept
	}

	if sess.Status != domain.StreamLive {
		return CodeAccept
	}

	now := time.Now()
	sess.Status = domain.StreamEnded
	sess.EndedAt = &now
	sess.ViewerCount = 0
	if err := s.repo.Save(ctx, sess); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist on_unpublish transition", "stream_id", streamID, "error", err)
	}
	return CodeAccept
}

// UserIDFor looks up the owning user of a stream session, used by the
// webhook handler to attribute a freshly accepted publish to its owner
// when kicking off moderation monitoring.
func (s *Service) UserIDFor(ctx context.Context, streamID string) (string, error) {
	sess, err := s.repo.FindByID(ctx, streamID)
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

// StateViolation is returned by callers that want to surface a typed
// error (e.g. a REST admin endpoint) rather than just a webhook code.
func StateViolation(streamKey string, from domain.StreamStatus) error {
	return apperrors.Conflict("invalid rtmp state transition from "+string(from), nil)
}
