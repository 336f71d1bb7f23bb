package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })
	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)

	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("get a = %v %v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should have expired")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatalf("zero ttl should not expire")
	}
	if n := c.Purge(); n != 1 {
		t.Fatalf("purge left %d entries", n)
	}
}
