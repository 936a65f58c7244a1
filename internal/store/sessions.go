package store

import (
	"context"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/database"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"gorm.io/gorm"
)

// SessionRepository persists RTMP publish state machine rows.
type SessionRepository struct {
	db database.DB
}

func NewSessionRepository(db database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func sessionFromRow(row *StreamSessionRow) *domain.StreamSession {
	return &domain.StreamSession{
		ID:          row.ID,
		StreamKey:   row.StreamKey,
		Token:       row.Token,
		UserID:      row.UserID,
		Status:      domain.StreamStatus(row.Status),
		StartedAt:   row.StartedAt,
		EndedAt:     row.EndedAt,
		ViewerCount: row.ViewerCount,
	}
}

// FindByID looks up a session by the stream id the media server's
// webhook identifies it with.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.StreamSession, error) {
	var row StreamSessionRow
	err := r.db.Get(ctx).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("stream session not found", err)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find stream session")
	}
	return sessionFromRow(&row), nil
}

// FindByStreamKey looks up a session by its publish stream key.
func (r *SessionRepository) FindByStreamKey(ctx context.Context, streamKey string) (*domain.StreamSession, error) {
	var row StreamSessionRow
	err := r.db.Get(ctx).WithContext(ctx).Where("stream_key = ?", streamKey).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("stream session not found", err)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find stream session")
	}
	return sessionFromRow(&row), nil
}

// Save upserts a session row by id.
func (r *SessionRepository) Save(ctx context.Context, s *domain.StreamSession) error {
	row := &StreamSessionRow{
		ID:          s.ID,
		StreamKey:   s.StreamKey,
		Token:       s.Token,
		UserID:      s.UserID,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		ViewerCount: s.ViewerCount,
	}
	return apperrors.Wrap(r.db.Get(ctx).WithContext(ctx).Save(row).Error, "failed to save stream session")
}
