// Command consumer reads every event-bus routing key this fabric cares
// about, deduplicates by message id, and turns each event into one or
// more notification writes, pushed realtime via the cross-instance router.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/social-eventfabric/realtime/internal/bootstrap"
	"github.com/social-eventfabric/realtime/internal/config"
	"github.com/social-eventfabric/realtime/internal/consumer"
	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/internal/idempotency"
	"github.com/social-eventfabric/realtime/internal/notify"
	"github.com/social-eventfabric/realtime/internal/router"
	"github.com/social-eventfabric/realtime/internal/store"
	"github.com/social-eventfabric/realtime/pkg/concurrency/distlock"
	distlockredis "github.com/social-eventfabric/realtime/pkg/concurrency/distlock/adapters/redis"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/messaging"
	"github.com/social-eventfabric/realtime/pkg/telemetry"
)

const consumerGroup = "notification-consumer"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Async: true, Redact: true})
	log.Info("starting consumer")

	shutdownTracing, err := telemetry.Init(telemetry.Config{ServiceName: "consumer", Endpoint: cfg.OTLPEndpoint, Environment: cfg.Env})
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	metrics := telemetry.NewMetrics()

	db, err := bootstrap.NewDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cacheInstance, err := bootstrap.NewCache(cfg)
	if err != nil {
		log.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	redisClient := bootstrap.NewRedisClient(cfg)
	defer redisClient.Close()

	broker, err := bootstrap.NewMessagingBroker(cfg)
	if err != nil {
		log.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	var locker distlock.Locker = distlockredis.New(redisClient, "idem:")
	dedup := idempotency.New(cacheInstance, locker, cfg.IdempotencyDefaultTTL())

	notifRepo := store.NewNotificationRepository(db)
	crossInstance := router.New(redisClient)
	notifySvc := notify.NewService(notifRepo, crossInstance, cfg.AggregateWindow())

	// FollowerLookup has no concrete implementation in this fabric: the
	// follower graph lives in the social-graph service this repo doesn't
	// own. post.created fan-out is a documented no-op until that's wired.
	c := consumer.New(notifySvc, dedup, consumer.Options{DedupTTL: cfg.DedupMsgTTL(), Followers: nil})

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	errCh := make(chan error, len(domain.ValidRoutingKeys))
	for routingKey := range domain.ValidRoutingKeys {
		routingKey := routingKey
		bc, err := broker.Consumer(string(routingKey), consumerGroup)
		if err != nil {
			log.Error("failed to bind consumer", "routing_key", routingKey, "error", err)
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := bc.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
				metrics.EventsConsumedTotal.WithLabelValues(string(routingKey)).Inc()
				return c.Handle(ctx, msg)
			})
			if err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	go func() {
		if err := telemetry.ServeMetrics(metricsCtx, cfg.MetricsPort); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("consumer goroutine failed", "error", err)
	}

	cancel()
	wg.Wait()
	cancelMetrics()

	log.Info("consumer stopped")
}
