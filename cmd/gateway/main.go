// Command gateway runs the WebSocket front door: the notification push
// socket, the livestream chat socket, the cross-instance Redis router,
// and the RTMP publish webhook, all behind one echo server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/social-eventfabric/realtime/internal/bootstrap"
	"github.com/social-eventfabric/realtime/internal/chatroom"
	"github.com/social-eventfabric/realtime/internal/config"
	"github.com/social-eventfabric/realtime/internal/httpapi"
	"github.com/social-eventfabric/realtime/internal/notify"
	"github.com/social-eventfabric/realtime/internal/router"
	"github.com/social-eventfabric/realtime/internal/rtmp"
	"github.com/social-eventfabric/realtime/internal/store"
	"github.com/social-eventfabric/realtime/internal/wsgateway"
	"github.com/social-eventfabric/realtime/pkg/api/ratelimit"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Async: true, Redact: true})
	log.Info("starting gateway")

	shutdownTracing, err := telemetry.Init(telemetry.Config{ServiceName: "gateway", Endpoint: cfg.OTLPEndpoint, Environment: cfg.Env})
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

	notifRepo := store.NewNotificationRepository(db)
	sessionRepo := store.NewSessionRepository(db)

	crossInstance := router.New(redisClient)
	notifySvc := notify.NewService(notifRepo, crossInstance, cfg.AggregateWindow())

	limiter := ratelimit.New(cacheInstance, ratelimit.StrategyFixedWindow)
	chatHub := chatroom.NewHub(chatroom.Params{
		ViewUpdateThrottle: cfg.ChatViewUpdateThrottle(),
		MaxMessageChars:    cfg.ChatMaxMsgChars,
		RateLimitPerSecond: int64(cfg.ChatRateLimitPerS),
	}, limiter)

	rtmpSvc := rtmp.NewService(sessionRepo)

	manager := wsgateway.NewConnectionManager()
	wsParams := wsgateway.Params{
		SendQueueCapacity: cfg.WSSendQueueCapacity,
		ReadLimit:         int64(cfg.WSReadLimit),
		PingPeriod:        cfg.WSPingPeriod(),
		PongWait:          cfg.WSPongWait(),
		WriteWait:         cfg.WSWriteWait(),
	}

	server := httpapi.NewServer(httpapi.Deps{
		Manager:         manager,
		Notify:          notifySvc,
		Chat:            chatHub,
		RTMP:            rtmpSvc,
		MonitorNotifier: httpapi.NewHTTPMonitorNotifier(cfg.MonitorServiceURL),
		WSParams:        wsParams,
	})

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	routerErrCh := make(chan error, 1)
	go func() {
		routerErrCh <- crossInstance.Run(routerCtx, func(ctx context.Context, userID string, payload []byte) {
			for _, c := range manager.ForUser(userID) {
				if c.Enqueue(payload) {
					metrics.WSFramesSentTotal.Inc()
				}
			}
		}, func(ctx context.Context, payload []byte) {
			manager.ForEach(func(c *wsgateway.Connection) {
				if c.Enqueue(payload) {
					metrics.WSFramesSentTotal.Inc()
				}
			})
		})
	}()

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	go func() {
		if err := telemetry.ServeMetrics(metricsCtx, cfg.MetricsPort); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Start(cfg.GatewayAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("gateway server failed", "error", err)
		}
	case err := <-routerErrCh:
		log.Error("cross-instance router stopped", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.WSShutdownBudget())
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	cancelRouter()
	manager.Shutdown(shutdownCtx)
	cancelMetrics()

	log.Info("gateway stopped")
}
