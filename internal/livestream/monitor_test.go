package livestream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-eventfabric/realtime/internal/domain"
)

type fakePlaylist struct {
	mu       sync.Mutex
	segments []string
	idx      int
	offline  bool
	errs     int
}

func (f *fakePlaylist) LatestSegment(ctx context.Context, streamID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return "", ErrOffline
	}
	if f.errs > 0 {
		f.errs--
		return "", assert.AnError
	}
	if f.idx >= len(f.segments) {
		return f.segments[len(f.segments)-1], nil
	}
	s := f.segments[f.idx]
	f.idx++
	return s, nil
}

func (f *fakePlaylist) FetchSegment(ctx context.Context, url string) ([]byte, error) {
	return []byte("segment-bytes"), nil
}

type fakeOracle struct {
	outcome domain.ModerationOutcome
}

func (o *fakeOracle) Classify(ctx context.Context, userID string, segment []byte) (domain.ModerationOutcome, error) {
	return o.outcome, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	reasons []string
}

func (p *fakePublisher) PublishViolation(ctx context.Context, streamID, userID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
	return nil
}

func TestStartMonitoringIsIdempotent(t *testing.T) {
	playlist := &fakePlaylist{offline: true}
	oracle := &fakeOracle{outcome: domain.ModerationOutcome{Verdict: domain.VerdictAccepted}}
	publisher := &fakePublisher{}
	reg := NewRegistry(Params{Interval: time.Hour, OfflineThreshold: 4}, playlist, oracle, publisher)

	started1 := reg.StartMonitoring(context.Background(), "stream9", "u9")
	started2 := reg.StartMonitoring(context.Background(), "stream9", "u9")

	assert.True(t, started1)
	assert.False(t, started2)
	assert.Equal(t, 1, reg.Active())

	reg.Stop("stream9")
	assert.Equal(t, 0, reg.Active())
}

func TestMonitorTearsDownOnRejection(t *testing.T) {
	playlist := &fakePlaylist{segments: []string{"seg1.ts"}}
	oracle := &fakeOracle{outcome: domain.ModerationOutcome{Verdict: domain.VerdictRejected, Reason: "nudity"}}
	publisher := &fakePublisher{}
	reg := NewRegistry(Params{Interval: 5 * time.Millisecond, OfflineThreshold: 4}, playlist, oracle, publisher)

	reg.StartMonitoring(context.Background(), "stream9", "u9")

	require.Eventually(t, func() bool { return reg.Active() == 0 }, time.Second, time.Millisecond)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.reasons, 1)
	assert.Equal(t, "nudity", publisher.reasons[0])
}

func TestMonitorTearsDownAfterOfflineThreshold(t *testing.T) {
	playlist := &fakePlaylist{offline: true}
	oracle := &fakeOracle{outcome: domain.ModerationOutcome{Verdict: domain.VerdictAccepted}}
	publisher := &fakePublisher{}
	reg := NewRegistry(Params{Interval: 2 * time.Millisecond, OfflineThreshold: 3}, playlist, oracle, publisher)

	reg.StartMonitoring(context.Background(), "stream-offline", "u1")

	require.Eventually(t, func() bool { return reg.Active() == 0 }, time.Second, time.Millisecond)
}

func TestMonitorTearsDownAfterErrorThreshold(t *testing.T) {
	playlist := &fakePlaylist{errs: 10}
	oracle := &fakeOracle{outcome: domain.ModerationOutcome{Verdict: domain.VerdictAccepted}}
	publisher := &fakePublisher{}
	reg := NewRegistry(Params{Interval: 2 * time.Millisecond, OfflineThreshold: 3}, playlist, oracle, publisher)

	reg.StartMonitoring(context.Background(), "stream-err", "u1")

	require.Eventually(t, func() bool { return reg.Active() == 0 }, time.Second, time.Millisecond)
}

func TestLastSegmentLineSkipsCommentsAndBlankLines(t *testing.T) {
	playlist := []byte("#EXTM3U\n#EXT-X-VERSION:3\n\n#EXTINF:4.0,\nseg1.ts\n#EXTINF:4.0,\nseg2.ts\n")
	assert.Equal(t, "seg2.ts", lastSegmentLine(playlist))
}
