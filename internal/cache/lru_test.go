package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("2024-01", "jan")
	c.Set("2024-02", "feb")
	c.Get("2024-01")
	c.Set("2024-03", "mar")

	if _, ok := c.Get("2024-02"); ok {
		t.Error("least recently used entry was not evicted")
	}
	if v, ok := c.Get("2024-01"); !ok || v != "jan" {
		t.Errorf("Get(2024-01) = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", "3")

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry returned")
	}
	if v, ok := c.Get("b"); !ok || v != "3" {
		t.Errorf("refreshed entry: %q, %v", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRUCache_PurgeAndStats(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Get("a")
	c.Get("missing")
	c.Purge()
	c.Get("a")

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 2 || st.Size != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestManager_Sweep(t *testing.T) {
	c, clock := newTestCache(10, time.Second)
	c.Set("a", "1")
	m := NewManager()
	m.Register(c)

	clock.t = clock.t.Add(2 * time.Second)
	if n := m.sweep(); n != 1 {
		t.Errorf("sweep() = %d, want 1", n)
	}
}
