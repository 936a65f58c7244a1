// Package livestream implements the periodic livestream moderation
// monitor: one lightweight task per actively monitored stream that polls
// its HLS playlist, sends new segments to the moderation oracle, and
// emits a violation event when the oracle rejects a segment.
package livestream

import (
	"context"
	"sync"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/pkg/datastructures/set"
	"github.com/social-eventfabric/realtime/pkg/logger"
)

// ViolationPublisher emits a violation.events envelope for a rejected
// segment. Implemented by BusViolationPublisher over a messaging.Producer.
type ViolationPublisher interface {
	PublishViolation(ctx context.Context, streamID, userID, reason string) error
}

// Oracle classifies a single livestream segment.
type Oracle interface {
	Classify(ctx context.Context, userID string, segment []byte) (domain.ModerationOutcome, error)
}

// PlaylistFetcher retrieves the latest segment URL for a stream, or
// ErrOffline if the playlist is not currently being served (404).
type PlaylistFetcher interface {
	LatestSegment(ctx context.Context, streamID string) (string, error)
	FetchSegment(ctx context.Context, segmentURL string) ([]byte, error)
}

// Params bundles the tunables a monitor's periodic task enforces.
type Params struct {
	Interval         time.Duration
	OfflineThreshold int
}

// monitor is one process-local polling loop for a single stream.
type monitor struct {
	streamID string
	userID   string
	seen     *set.Set[string]

	consecutiveIdle   int
	consecutiveErrors int

	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the process-local activeMonitors map: at most one active
// monitor per stream_id. All inserts/deletes go through the writer lock;
// StartMonitoring's existence check is the only read on the hot path.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*monitor

	params    Params
	playlist  PlaylistFetcher
	oracle    Oracle
	publisher ViolationPublisher
}

func NewRegistry(params Params, playlist PlaylistFetcher, oracle Oracle, publisher ViolationPublisher) *Registry {
	return &Registry{
		monitors:  make(map[string]*monitor),
		params:    params,
		playlist:  playlist,
		oracle:    oracle,
		publisher: publisher,
	}
}

// StartMonitoring registers and starts a monitor for streamID if one does
// not already exist. Returns false ("already active", no new goroutine)
// when a monitor for this stream is already running.
func (r *Registry) StartMonitoring(ctx context.Context, streamID, userID string) bool {
	r.mu.Lock()
	if _, exists := r.monitors[streamID]; exists {
		r.mu.Unlock()
		return false
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &monitor{
		streamID: streamID,
		userID:   userID,
		seen:     set.New[string](),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.monitors[streamID] = m
	r.mu.Unlock()

	go r.run(mctx, m)
	return true
}

// Stop tears down an active monitor for streamID, if any. Used for
// explicit-stop teardown (distinct from violation/offline teardown, which
// the loop itself triggers).
func (r *Registry) Stop(streamID string) {
	r.mu.Lock()
	m, ok := r.monitors[streamID]
	r.mu.Unlock()
	if !ok {
		return
	}
	m.cancel()
	<-m.done
}

// Active reports the number of monitors currently running, for the
// monitor_active_total gauge.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

func (r *Registry) teardown(streamID string) {
	r.mu.Lock()
	delete(r.monitors, streamID)
	r.mu.Unlock()
}

func (r *Registry) run(ctx context.Context, m *monitor) {
	defer close(m.done)
	defer r.teardown(m.streamID)

	ticker := time.NewTicker(r.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.tick(ctx, m) {
				return
			}
		}
	}
}

// tick runs one poll cycle and returns true when the monitor should be
// torn down (violation, offline threshold, or fetch-error threshold).
func (r *Registry) tick(ctx context.Context, m *monitor) bool {
	segmentURL, err := r.playlist.LatestSegment(ctx, m.streamID)
	if err != nil {
		if err == ErrOffline {
			return r.noteIdle(ctx, m)
		}
		return r.noteError(ctx, m, err)
	}

	if m.seen.Contains(segmentURL) {
		return r.noteIdle(ctx, m)
	}

	segment, err := r.playlist.FetchSegment(ctx, segmentURL)
	if err != nil {
		return r.noteError(ctx, m, err)
	}
	m.seen.Add(segmentURL)

	outcome, err := r.oracle.Classify(ctx, m.userID, segment)
	if err != nil {
		return r.noteError(ctx, m, err)
	}

	if outcome.Rejected() {
		logger.L().WarnContext(ctx, "livestream segment rejected by moderation oracle", "stream_id", m.streamID, "reason", outcome.Reason)
		if err := r.publisher.PublishViolation(ctx, m.streamID, m.userID, outcome.Reason); err != nil {
			logger.L().ErrorContext(ctx, "failed to publish violation event", "stream_id", m.streamID, "error", err)
		}
		return true
	}

	m.consecutiveIdle = 0
	m.consecutiveErrors = 0
	return false
}

func (r *Registry) noteIdle(ctx context.Context, m *monitor) bool {
	m.consecutiveIdle++
	if m.consecutiveIdle >= r.params.OfflineThreshold {
		logger.L().InfoContext(ctx, "livestream monitor stopping: no new segment, stream likely offline", "stream_id", m.streamID, "consecutive_idle", m.consecutiveIdle)
		return true
	}
	return false
}

func (r *Registry) noteError(ctx context.Context, m *monitor, err error) bool {
	m.consecutiveErrors++
	logger.L().WarnContext(ctx, "livestream monitor fetch error", "stream_id", m.streamID, "consecutive_errors", m.consecutiveErrors, "error", err)
	if m.consecutiveErrors >= r.params.OfflineThreshold {
		logger.L().WarnContext(ctx, "livestream monitor stopping: too many consecutive fetch errors", "stream_id", m.streamID)
		return true
	}
	return false
}
