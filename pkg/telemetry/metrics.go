package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments shared across the gateway,
// consumer, monitor, and outbox binaries. NewMetrics registers the full set
// in every binary that calls it, so dashboards use a single, consistent
// metric name set.
type Metrics struct {
	WSConnections            prometheus.Gauge
	WSFramesSentTotal        prometheus.Counter
	EventsConsumedTotal      *prometheus.CounterVec
	EventsDeduplicatedTotal  prometheus.Counter
	NotificationsCreatedTotal prometheus.Counter
	MonitorActiveTotal       prometheus.Gauge
	OutboxPendingTotal       prometheus.Gauge
}

// NewMetrics registers every instrument against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of currently open WebSocket connections on this process.",
		}),
		WSFramesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ws_frames_sent_total",
			Help: "Total number of WebSocket frames written to clients.",
		}),
		EventsConsumedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of events consumed from the bus, labeled by type.",
		}, []string{"event_type"}),
		EventsDeduplicatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_deduplicated_total",
			Help: "Total number of events dropped as duplicates by the idempotency store.",
		}),
		NotificationsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notification rows inserted (excludes aggregation updates).",
		}),
		MonitorActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_active_total",
			Help: "Number of livestream monitors currently active on this process.",
		}),
		OutboxPendingTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_total",
			Help: "Number of outbox entries awaiting dispatch, as observed at the last poll.",
		}),
	}
}

// ServeMetrics starts a /metrics HTTP server on port and blocks until ctx
// is canceled, at which point it shuts down gracefully.
func ServeMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
