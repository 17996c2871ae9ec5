package cache

import (
	"testing"
	"time"

	"ConfluenceCal/internal/domain/models"
)

func TestWeightCacheExpiresAgainstCallerClock(t *testing.T) {
	c := NewWeightCache(time.Hour)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := models.PublishedWeights{Symbol: "BTCUSDT", Weights: models.DefaultWeights(), Score: 1.1, Version: "v1"}
	c.Set(rec, t0)

	got, ok := c.Get("BTCUSDT", t0.Add(59*time.Minute))
	if !ok || got.Version != "v1" || got.Weights != rec.Weights {
		t.Fatalf("fresh entry: %+v, %v", got, ok)
	}
	if _, ok := c.Get("BTCUSDT", t0.Add(time.Hour)); ok {
		t.Fatalf("entry should expire at ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be dropped, len=%d", c.Len())
	}
}

func TestWeightCacheWithoutTTL(t *testing.T) {
	c := NewWeightCache(0)
	t0 := time.Now()
	c.Set(models.PublishedWeights{Symbol: "ETHUSDT"}, t0)
	if _, ok := c.Get("ETHUSDT", t0.Add(1000*time.Hour)); !ok {
		t.Fatalf("entry without ttl should not expire")
	}
	c.Invalidate("ETHUSDT")
	if _, ok := c.Get("ETHUSDT", t0); ok {
		t.Fatalf("invalidated entry returned")
	}
}

func TestWeightCacheReplaceResetsAge(t *testing.T) {
	c := NewWeightCache(time.Minute)
	t0 := time.Now()
	c.Set(models.PublishedWeights{Symbol: "X", Version: "a"}, t0)
	c.Set(models.PublishedWeights{Symbol: "X", Version: "b"}, t0.Add(50*time.Second))
	got, ok := c.Get("X", t0.Add(90*time.Second))
	if !ok || got.Version != "b" {
		t.Fatalf("replaced entry: %+v, %v", got, ok)
	}
}
