package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// noExpiry stands in for "never" so every entry has a deadline.
const noExpiry = 7 * 24 * time.Hour

type memEntry struct {
	key      string
	value    []byte
	expireAt time.Time
	lock     bool
}

func (e *memEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache implements Service in process memory with LRU eviction. It is
// the L1 of LayeredCache and the whole cache when Redis is disabled.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}

	mc := &MemoryCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: cfg.MaxSize,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = noExpiry
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(&memEntry{key: key, value: data, expireAt: time.Now().Add(expiration)})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e := mc.live(key, time.Now())
	if e == nil || e.lock {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	data := e.value
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.remove(key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := time.Now()
	for _, key := range keys {
		if mc.live(key, now) != nil {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := time.Now()
	if mc.live(key, now) != nil {
		return false, nil
	}
	mc.put(&memEntry{key: key, expireAt: now.Add(ttl), lock: true})
	return true, nil
}

// Unlock releases a live lock. An expired or missing lock is ErrLockNotHeld.
func (mc *MemoryCache) Unlock(_ context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	e := mc.live(key, time.Now())
	if e == nil || !e.lock {
		return ErrLockNotHeld
	}
	mc.remove(key)
	return nil
}

// Len reports the number of stored items, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// live returns the unexpired entry for key and marks it used. Expired
// entries are dropped on the way.
func (mc *MemoryCache) live(key string, now time.Time) *memEntry {
	el, ok := mc.items[key]
	if !ok {
		return nil
	}
	e := el.Value.(*memEntry)
	if e.expired(now) {
		mc.lru.Remove(el)
		delete(mc.items, key)
		return nil
	}
	mc.lru.MoveToFront(el)
	return e
}

func (mc *MemoryCache) put(e *memEntry) {
	if el, ok := mc.items[e.key]; ok {
		el.Value = e
		mc.lru.MoveToFront(el)
		return
	}
	for mc.lru.Len() >= mc.maxSize {
		oldest := mc.lru.Back()
		mc.lru.Remove(oldest)
		delete(mc.items, oldest.Value.(*memEntry).key)
	}
	mc.items[e.key] = mc.lru.PushFront(e)
}

func (mc *MemoryCache) remove(key string) {
	if el, ok := mc.items[key]; ok {
		mc.lru.Remove(el)
		delete(mc.items, key)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case now := <-mc.ticker.C:
			mc.mu.Lock()
			for el := mc.lru.Back(); el != nil; {
				prev := el.Prev()
				if e := el.Value.(*memEntry); e.expired(now) {
					mc.lru.Remove(el)
					delete(mc.items, e.key)
				}
				el = prev
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
