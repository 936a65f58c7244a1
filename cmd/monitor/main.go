// Command monitor runs the livestream moderation monitor: one polling
// task per actively monitored stream, triggered by cmd/gateway's RTMP
// webhook over its internal HTTP endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/social-eventfabric/realtime/internal/bootstrap"
	"github.com/social-eventfabric/realtime/internal/config"
	"github.com/social-eventfabric/realtime/internal/httpapi"
	"github.com/social-eventfabric/realtime/internal/livestream"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Async: true, Redact: true})
	log.Info("starting monitor")

	shutdownTracing, err := telemetry.Init(telemetry.Config{ServiceName: "monitor", Endpoint: cfg.OTLPEndpoint, Environment: cfg.Env})
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	metrics := telemetry.NewMetrics()

	broker, err := bootstrap.NewMessagingBroker(cfg)
	if err != nil {
		log.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	violationProducer, err := broker.Producer("violation.events")
	if err != nil {
		log.Error("failed to create violation producer", "error", err)
		os.Exit(1)
	}
	defer violationProducer.Close()

	registry := livestream.NewRegistry(
		livestream.Params{Interval: cfg.MonitorInterval(), OfflineThreshold: cfg.MonitorOfflineThreshold},
		livestream.NewHTTPPlaylistFetcher(cfg.MonitorCDNBaseURL),
		livestream.NewHTTPOracle(cfg.ModerationOracleURL),
		livestream.NewBusViolationPublisher(violationProducer),
	)

	server := httpapi.NewServer(httpapi.Deps{Monitors: registry})

	reportCtx, cancelReport := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-reportCtx.Done():
				return
			case <-ticker.C:
				metrics.MonitorActiveTotal.Set(float64(registry.Active()))
			}
		}
	}()

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	go func() {
		if err := telemetry.ServeMetrics(metricsCtx, cfg.MetricsPort); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Start(cfg.MonitorAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("monitor server failed", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	cancelReport()
	cancelMetrics()

	log.Info("monitor stopped")
}
