// Package store holds the GORM row models and repositories backing
// notifications, the outbox, and RTMP stream sessions.
package store

import "time"

// NotificationRow is the notifications table row. Indexed on user_id so
// findByUser scans cheaply, and on (user_id, reference_id) so aggregation
// lookups don't table-scan.
type NotificationRow struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"index:idx_notifications_user;index:idx_notifications_user_ref"`
	TitleTemplate    string
	BodyTemplate     string
	NotificationType string
	ReferenceID      string `gorm:"index:idx_notifications_user_ref"`
	ActorsCount      int
	LastActorID      string
	LastActorName    string
	IsRead           bool
	LinkURL          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (NotificationRow) TableName() string { return "notifications" }

// OutboxRow is the outbox_entries table row. Indexed on (status,
// created_at) so the poller's batch query is an index scan.
type OutboxRow struct {
	ID          string `gorm:"primaryKey"`
	AggregateID string
	RoutingKey  string
	Payload     []byte
	Status      string `gorm:"index:idx_outbox_status_created"`
	CreatedAt   time.Time `gorm:"index:idx_outbox_status_created"`
}

func (OutboxRow) TableName() string { return "outbox_entries" }

// StreamSessionRow is the sessions table row. Indexed on status and on
// the owning user so "is this user already live" lookups are cheap.
type StreamSessionRow struct {
	ID          string `gorm:"primaryKey"`
	StreamKey   string `gorm:"uniqueIndex"`
	Token       string
	UserID      string `gorm:"index:idx_sessions_user"`
	Status      string `gorm:"index:idx_sessions_status"`
	StartedAt   *time.Time
	EndedAt     *time.Time
	ViewerCount int
}

func (StreamSessionRow) TableName() string { return "stream_sessions" }
