package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorycache "github.com/social-eventfabric/realtime/pkg/cache/adapters/memory"
	memorylock "github.com/social-eventfabric/realtime/pkg/concurrency/distlock/adapters/memory"
)

func newTestStore() *Store {
	return New(memorycache.New(), memorylock.New(), time.Hour)
}

func TestCheckAndMarkFirstThenDuplicate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	outcome, err := s.CheckAndMark(ctx, "processed_msg:", "evt-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, First, outcome)

	for i := 0; i < 3; i++ {
		outcome, err = s.CheckAndMark(ctx, "processed_msg:", "evt-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, Duplicate, outcome)
	}
}

func TestCheckAndMarkDistinctKeysAreIndependent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	o1, err := s.CheckAndMark(ctx, "processed_msg:", "a", time.Hour)
	require.NoError(t, err)
	o2, err := s.CheckAndMark(ctx, "processed_msg:", "b", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, First, o1)
	assert.Equal(t, First, o2)
}

func TestCheckAndMarkEmptyKeyFails(t *testing.T) {
	s := newTestStore()
	_, err := s.CheckAndMark(context.Background(), "processed_msg:", "", time.Hour)
	assert.Error(t, err)
}

func TestRemoveAllowsRetry(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.CheckAndMark(ctx, "idempotency:", "k", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "idempotency:", "k"))

	outcome, err := s.CheckAndMark(ctx, "idempotency:", "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, First, outcome)
}
