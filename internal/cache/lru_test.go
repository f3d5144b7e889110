package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spendlog/internal/log"
)

var _ Cache[int] = (*LRUCache[int])(nil)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	c.Set("a", "2")
	v, _ = c.Get("a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a") // b is now oldest
	c.Set("c", "3")

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}

func TestLRU_TTL(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	clock.Advance(30 * time.Second)
	c.Set("c", "3")
	clock.Advance(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired()) // b
	assert.Equal(t, 1, c.Size())         // c survives
}

func TestLRU_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("user:1:a", "x")
	c.Set("user:1:b", "x")
	c.Set("user:10:a", "x")
	c.Set("user:2:a", "x")

	assert.Equal(t, 2, c.DeletePrefix("user:1:"))
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("user:10:a")
	assert.True(t, ok)
}

func TestLRU_Disabled(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	c.Set("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRUCache[int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.DeletePrefix("k1")
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}

func TestManager(t *testing.T) {
	c, clock := newTestCache(10, time.Second)
	c.Set("a", "1")
	clock.Advance(2 * time.Second)

	m := NewManager(log.Discard())
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
	m.Stop()

	idle := NewManager(nil)
	idle.Stop()
}
