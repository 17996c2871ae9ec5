package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !l.Allow("10.0.0.1", 2, 0.5) {
			t.Fatalf("request %d should pass", i)
		}
	}
	if l.Allow("10.0.0.1", 2, 0.5) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("10.0.0.2", 2, 0.5) {
		t.Fatalf("other keys have their own bucket")
	}

	now = now.Add(2 * time.Second)
	if !l.Allow("10.0.0.1", 2, 0.5) {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow("10.0.0.1", 2, 0.5) {
		t.Fatalf("only one token refilled")
	}
}
