package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLRU_GetPut(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss")
	}
	c.Put("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	c.Put("b", 2)
	c.Put("c", 3) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	c.Put("b", 20)
	if v, _ := c.Get("b"); v != 20 {
		t.Errorf("overwrite: Get(b) = %v", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestLRU_TTL(t *testing.T) {
	clk := newFakeClock()
	c := NewLRU[string, string](10, time.Hour, WithClock(clk.Now))
	c.Put("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("immediate Get = %q, %v", v, ok)
	}
	clk.Advance(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry expired early")
	}
	clk.Advance(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after 61 minutes")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, Len = %d", c.Len())
	}
}

func TestLRU_TTLBoundary(t *testing.T) {
	clk := newFakeClock()
	c := NewLRU[string, int](10, time.Hour, WithClock(clk.Now))
	c.Put("k", 1)
	clk.Advance(time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Error("entry aged exactly ttl should expire")
	}
}

func TestLRU_PutRefreshesAge(t *testing.T) {
	clk := newFakeClock()
	c := NewLRU[string, int](10, time.Hour, WithClock(clk.Now))
	c.Put("k", 1)
	clk.Advance(50 * time.Minute)
	c.Put("k", 2)
	clk.Advance(50 * time.Minute)
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Errorf("Get = %v, %v; overwrite should reset the age", v, ok)
	}
}

func TestLRU_EvictsLeastRecentlyAccessed(t *testing.T) {
	c := NewLRU[string, int](100, time.Hour)
	for i := 0; i < 100; i++ {
		c.Put(strconv.Itoa(i), i)
	}
	// Touch key 0 so key 1 becomes the least recently used.
	if _, ok := c.Get("0"); !ok {
		t.Fatal("key 0 missing")
	}
	c.Put("100", 100)

	if _, ok := c.Get("1"); ok {
		t.Error("key 1 should have been evicted")
	}
	for i := 0; i <= 100; i++ {
		if i == 1 {
			continue
		}
		if _, ok := c.Get(strconv.Itoa(i)); !ok {
			t.Errorf("key %d missing", i)
		}
	}
	if c.Len() != 100 {
		t.Errorf("Len = %d, want 100", c.Len())
	}
}

func TestLRU_RemoveClear(t *testing.T) {
	c := NewLRU[int, int](0, 0)
	c.Put(1, 1)
	c.Put(2, 2) // capacity raised to 1
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	c.Remove(2)
	if _, ok := c.Get(2); ok {
		t.Error("Remove failed")
	}
	c.Put(3, 3)
	c.Clear()
	if c.Len() != 0 {
		t.Error("Clear failed")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Put(g*1000+i, i)
				c.Get(g*1000 + i/2)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len = %d, want 50", c.Len())
	}
}
