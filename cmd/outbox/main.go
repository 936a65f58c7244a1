// Command outbox polls the transactional outbox table and publishes
// pending rows to the event bus, with a distributed lock bounding
// concurrent drains across a horizontally scaled fleet.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/social-eventfabric/realtime/internal/bootstrap"
	"github.com/social-eventfabric/realtime/internal/config"
	"github.com/social-eventfabric/realtime/internal/outbox"
	"github.com/social-eventfabric/realtime/internal/store"
	"github.com/social-eventfabric/realtime/pkg/concurrency/distlock"
	distlockredis "github.com/social-eventfabric/realtime/pkg/concurrency/distlock/adapters/redis"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Async: true, Redact: true})
	log.Info("starting outbox dispatcher")

	shutdownTracing, err := telemetry.Init(telemetry.Config{ServiceName: "outbox", Endpoint: cfg.OTLPEndpoint, Environment: cfg.Env})
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	telemetry.NewMetrics()

	db, err := bootstrap.NewDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	broker, err := bootstrap.NewMessagingBroker(cfg)
	if err != nil {
		log.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	redisClient := bootstrap.NewRedisClient(cfg)
	defer redisClient.Close()

	var locker distlock.Locker = distlockredis.New(redisClient, "outbox:")

	repo := store.NewOutboxRepository(db)
	producer, err := broker.Producer("")
	if err != nil {
		log.Error("failed to create outbox producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(repo, producer, locker, outbox.Params{
		PollInterval: cfg.OutboxPollInterval(),
		BatchSize:    cfg.OutboxBatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	go func() {
		if err := telemetry.ServeMetrics(metricsCtx, cfg.MetricsPort); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	log.Info("shutdown signal received")

	cancel()
	<-done
	cancelMetrics()
	time.Sleep(100 * time.Millisecond)

	log.Info("outbox dispatcher stopped")
}
