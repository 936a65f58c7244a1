// Package memory provides an in-process messaging.Broker backed by
// buffered channels, used for tests and for local development without a
// running broker.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/social-eventfabric/realtime/pkg/messaging"
	"github.com/google/uuid"
)

// Config configures the in-memory broker.
type Config struct {
	// BufferSize is the channel buffer depth for each topic.
	BufferSize int
}

// Broker is an in-process fan-out broker: every Consumer created for a
// topic receives every message published to it, regardless of group
// (there is no load-balancing across consumers in memory).
type Broker struct {
	cfg Config

	mu     sync.Mutex
	topics map[string][]chan *messaging.Message
	closed bool
}

// New creates an in-memory broker.
func New(cfg Config) *Broker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &Broker{cfg: cfg, topics: make(map[string][]chan *messaging.Message)}
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	return &producer{broker: b, topic: topic}, nil
}

func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, messaging.ErrClosed(nil)
	}

	ch := make(chan *messaging.Message, b.cfg.BufferSize)
	b.topics[topic] = append(b.topics[topic], ch)
	return &consumer{broker: b, topic: topic, ch: ch}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, chans := range b.topics {
		for _, ch := range chans {
			close(ch)
		}
	}
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *Broker) publish(msg *messaging.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return messaging.ErrClosed(nil)
	}

	for _, ch := range b.topics[msg.Topic] {
		select {
		case ch <- msg:
		default:
			return messaging.ErrQueueFull(nil)
		}
	}
	return nil
}

// producer implements messaging.Producer over the in-memory broker.
type producer struct {
	broker *Broker
	topic  string
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	if msg.Topic == "" {
		msg.Topic = p.topic
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return p.broker.publish(msg)
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error {
	return nil
}

// consumer implements messaging.Consumer over a subscribed channel.
type consumer struct {
	broker *Broker
	topic  string
	ch     chan *messaging.Message
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, msg)
		}
	}
}

func (c *consumer) Close() error {
	return nil
}

var _ messaging.Broker = (*Broker)(nil)
