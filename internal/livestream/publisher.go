package livestream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

// BusViolationPublisher publishes a violation.events envelope onto the
// shared event bus, consumed by internal/consumer like any other
// producer's event.
type BusViolationPublisher struct {
	producer messaging.Producer
}

func NewBusViolationPublisher(producer messaging.Producer) *BusViolationPublisher {
	return &BusViolationPublisher{producer: producer}
}

type wireEvent struct {
	RoutingKey string                 `json:"routing_key"`
	Body       map[string]interface{} `json:"body"`
}

func (p *BusViolationPublisher) PublishViolation(ctx context.Context, streamID, userID, reason string) error {
	payload, err := json.Marshal(wireEvent{
		RoutingKey: string(domain.RoutingViolationEvents),
		Body: map[string]interface{}{
			"owner_id":  userID,
			"stream_id": streamID,
			"reason":    reason,
		},
	})
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, &messaging.Message{
		Topic:     string(domain.RoutingViolationEvents),
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
