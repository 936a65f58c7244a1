// Package kafka adapts github.com/IBM/sarama to the messaging.Broker
// contract. It is kept as the alternate MESSAGING_DRIVER=kafka backend;
// the default production backend is the rabbitmq adapter.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

// Config configures a Kafka broker connection.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Version string   `env:"KAFKA_VERSION" env-default:"2.8.0"`
}

// Broker is a sarama-backed messaging.Broker.
type Broker struct {
	cfg    Config
	client sarama.Client
}

// New dials Kafka and returns a ready Broker.
func New(cfg Config) (*Broker, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}

	return &Broker{cfg: cfg, client: client}, nil
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	syncProducer, err := sarama.NewSyncProducerFromClient(b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &producer{broker: b, topic: topic, producer: syncProducer}, nil
}

func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if group == "" {
		group = "default"
	}
	consumerGroup, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &consumer{topic: topic, group: consumerGroup}, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return !b.client.Closed()
}

// consumer implements messaging.Consumer over a sarama consumer group.
type consumer struct {
	topic string
	group sarama.ConsumerGroup
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	h := &groupHandler{handler: handler}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			return messaging.ErrConsumeFailed(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *consumer) Close() error {
	return c.group.Close()
}

// groupHandler bridges sarama's ConsumerGroupHandler to messaging.MessageHandler.
type groupHandler struct {
	handler messaging.MessageHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		headers := make(map[string]string, len(msg.Headers))
		for _, rh := range msg.Headers {
			headers[string(rh.Key)] = string(rh.Value)
		}

		m := &messaging.Message{
			Topic:     msg.Topic,
			Key:       msg.Key,
			Payload:   msg.Value,
			Headers:   headers,
			Timestamp: msg.Timestamp,
			Metadata: messaging.MessageMetadata{
				Partition: msg.Partition,
				Offset:    msg.Offset,
			},
		}

		if err := h.handler(sess.Context(), m); err != nil {
			// Do not mark the message; sarama will redeliver on the next rebalance.
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

var _ messaging.Broker = (*Broker)(nil)
