package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss   = errors.New("cache: key not found")
	ErrLockNotHeld = errors.New("cache: lock not held")
)

// Service defines cache operations interface. Values are stored as JSON;
// Get decodes into dest, which must be a pointer.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}
