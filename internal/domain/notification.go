package domain

import (
	"strconv"
	"time"
)

// Notification is a single row of durable, user-facing notification
// state. Aggregated notifications (ActorsCount > 1) are updated in place
// rather than multiplied into many rows for the same (user, type,
// reference).
type Notification struct {
	ID               string
	UserID           string
	TitleTemplate    string
	BodyTemplate     string
	NotificationType string
	ReferenceID      string
	ActorsCount      int
	LastActorID      string
	LastActorName    string
	IsRead           bool
	LinkURL          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AggregateBody renders the human-readable body for an aggregated
// notification: "<last actor> liked your post" for a single actor, or
// "<last actor> and N others liked your post" once more actors have
// piled on within the aggregation window. "others" stays plural even
// at N=1 ("A and 1 others"), matching the worked example in spec §4.1.
func (n *Notification) AggregateBody(verb string) string {
	if n.ActorsCount <= 1 {
		return n.LastActorName + " " + verb
	}
	others := n.ActorsCount - 1
	return n.LastActorName + " and " + strconv.Itoa(others) + " others " + verb
}
