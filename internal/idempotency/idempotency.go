// Package idempotency provides an atomic, cross-process check-and-mark
// primitive used to suppress duplicate event processing and duplicate
// notification writes.
package idempotency

import (
	"context"
	"time"

	"github.com/social-eventfabric/realtime/pkg/cache"
	"github.com/social-eventfabric/realtime/pkg/concurrency/distlock"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
)

// Outcome reports whether a key was seen for the first time or was
// already marked by an earlier, possibly concurrent, caller.
type Outcome int

const (
	First Outcome = iota
	Duplicate
)

// Store implements checkAndMark/remove over a shared cache, using a
// short-lived distributed lock to make the check-then-set atomic across
// every process sharing the cache backend.
type Store struct {
	cache      cache.Cache
	locker     distlock.Locker
	lockTTL    time.Duration
	defaultTTL time.Duration
}

// New builds a Store. defaultTTL is used by CheckAndMark when the caller
// passes a zero ttl.
func New(c cache.Cache, locker distlock.Locker, defaultTTL time.Duration) *Store {
	return &Store{
		cache:      c,
		locker:     locker,
		lockTTL:    2 * time.Second,
		defaultTTL: defaultTTL,
	}
}

func cacheKey(namespace, key string) string {
	return namespace + ":" + key
}

// CheckAndMark atomically checks whether (namespace, key) has been seen
// before. If not, it marks the key with ttl (or the store's default if
// ttl is zero) and returns First. If it was already marked, it returns
// Duplicate without altering the existing entry's expiry.
func (s *Store) CheckAndMark(ctx context.Context, namespace, key string, ttl time.Duration) (Outcome, error) {
	if key == "" {
		return Duplicate, apperrors.InvalidArgument("idempotency key must not be empty", nil)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	ck := cacheKey(namespace, key)

	lock := s.locker.NewLock("lock:"+ck, s.lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return Duplicate, apperrors.Wrap(err, "failed to acquire idempotency lock")
	}
	if !acquired {
		// Another process is deciding this key right now; treat as duplicate
		// rather than block, since the winner will have already marked it.
		return Duplicate, nil
	}
	defer lock.Release(ctx)

	var existing struct{}
	err = s.cache.Get(ctx, ck, &existing)
	if err == nil {
		return Duplicate, nil
	}
	if apperrors.Code(err) != apperrors.CodeNotFound {
		return Duplicate, apperrors.Wrap(err, "failed to read idempotency key")
	}

	if err := s.cache.Set(ctx, ck, struct{}{}, ttl); err != nil {
		return Duplicate, apperrors.Wrap(err, "failed to mark idempotency key")
	}
	return First, nil
}

// Remove deletes a mark, used to undo a dedup record when downstream
// processing fails transiently and the event will be retried.
func (s *Store) Remove(ctx context.Context, namespace, key string) error {
	if key == "" {
		return apperrors.InvalidArgument("idempotency key must not be empty", nil)
	}
	return s.cache.Delete(ctx, cacheKey(namespace, key))
}
