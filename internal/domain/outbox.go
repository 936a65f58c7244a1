package domain

import "time"

// OutboxStatus tracks whether an outbox row still needs to be published.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
)

// OutboxEntry is written in the same transaction as the domain change it
// announces, and published by a separate poller. This decouples the
// durable write from event-bus availability.
type OutboxEntry struct {
	ID          string
	AggregateID string
	RoutingKey  RoutingKey
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
}
