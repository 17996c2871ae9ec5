package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/pkg/cache"
	applogger "ConfluenceCal/pkg/logger"
)

// RedisWeightStore keeps the current published weights per symbol in the
// shared cache and provides the per-symbol run lock.
type RedisWeightStore struct {
	c      cache.Service
	prefix string
	ttl    time.Duration
	l      *applogger.Logger
}

// NewRedisWeightStore stores records under prefix. A ttl of 0 keeps them
// until overwritten.
func NewRedisWeightStore(c cache.Service, prefix string, ttl time.Duration) *RedisWeightStore {
	if prefix == "" {
		prefix = "weights"
	}
	return &RedisWeightStore{c: c, prefix: prefix, ttl: ttl}
}

// SetLogger injects a structured logger.
func (s *RedisWeightStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *RedisWeightStore) key(symbol string) string {
	return cache.GenerateKey(s.prefix, symbol)
}

func (s *RedisWeightStore) lockKey(symbol string) string {
	return cache.GenerateKeyWithParams(s.prefix, "lock", symbol)
}

func (s *RedisWeightStore) SaveWeights(ctx context.Context, rec *models.PublishedWeights) error {
	if err := s.c.Set(ctx, s.key(rec.Symbol), rec, s.ttl); err != nil {
		if s.l != nil {
			s.l.Error("redis save_weights error", applogger.String("symbol", rec.Symbol), applogger.Error(err))
		}
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (s *RedisWeightStore) LoadWeights(ctx context.Context, symbol string) (*models.PublishedWeights, error) {
	var rec models.PublishedWeights
	if err := s.c.Get(ctx, s.key(symbol), &rec); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("load weights: %w", err)
	}
	return &rec, nil
}

func (s *RedisWeightStore) TryLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	return s.c.TryLock(ctx, s.lockKey(symbol), ttl)
}

func (s *RedisWeightStore) Unlock(ctx context.Context, symbol string) error {
	return s.c.Unlock(ctx, s.lockKey(symbol))
}
