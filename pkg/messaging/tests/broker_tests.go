// Package tests holds a shared conformance suite that every messaging.Broker
// adapter (memory, rabbitmq, kafka) is expected to pass.
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/social-eventfabric/realtime/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBrokerTests exercises the baseline publish/consume contract every
// messaging.Broker implementation must satisfy.
func RunBrokerTests(t *testing.T, broker messaging.Broker) {
	t.Helper()

	t.Run("publish and consume round trip", func(t *testing.T) {
		topic := "tests.roundtrip"

		consumer, err := broker.Consumer(topic, "roundtrip-group")
		require.NoError(t, err)
		defer consumer.Close()

		producer, err := broker.Producer(topic)
		require.NoError(t, err)
		defer producer.Close()

		received := make(chan *messaging.Message, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = consumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
				select {
				case received <- msg:
				default:
				}
				return nil
			})
		}()

		require.NoError(t, producer.Publish(context.Background(), &messaging.Message{
			Topic:   topic,
			Payload: []byte(`{"hello":"world"}`),
		}))

		select {
		case msg := <-received:
			assert.Equal(t, []byte(`{"hello":"world"}`), msg.Payload)
			assert.NotEmpty(t, msg.ID)
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}

		cancel()
		wg.Wait()
	})

	t.Run("healthy reports true before close", func(t *testing.T) {
		assert.True(t, broker.Healthy(context.Background()))
	})
}
