package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps a cron cycle exclusive across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Refresh extends a held lock; it reports false once ownership is lost.
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseStore is the compare-and-act surface of pkg/redis.Client.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfEqual(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfEqual(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a lease on one key whose value is a random owner token. Only
// the holder of the token can extend or drop it.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock constructs a Redis-backed lock on key.
func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	ok, err := l.store.ExpireIfEqual(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if !ok {
		l.owner = ""
	}
	return ok, nil
}

// Release drops the lease if this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.DeleteIfEqual(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
