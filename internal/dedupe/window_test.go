// ABOUTME: Tests for the dedupe window
// ABOUTME: Covers expiry, capacity eviction and concurrent check-and-record

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestWindow returns a window whose time only moves when advance is called.
func newTestWindow(ttl time.Duration, maxSize int) (*Window, func(time.Duration)) {
	w := New(ttl, maxSize)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	return w, func(d time.Duration) { now = now.Add(d) }
}

func TestWindow_SeenRecordsKey(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)

	assert.False(t, w.Seen("a"), "first sighting")
	assert.True(t, w.Seen("a"), "second sighting")
	assert.False(t, w.Seen("b"))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_Expiry(t *testing.T) {
	w, advance := newTestWindow(time.Minute, 10)

	w.Seen("a")
	advance(30 * time.Second)
	w.Seen("b")

	advance(30 * time.Second)
	assert.Equal(t, 1, w.Len(), "a expired at exactly ttl")
	assert.True(t, w.Seen("b"))
	assert.False(t, w.Seen("a"), "expired key is new again")
}

func TestWindow_SeenDoesNotRefresh(t *testing.T) {
	w, advance := newTestWindow(time.Minute, 10)

	w.Seen("a")
	advance(50 * time.Second)
	assert.True(t, w.Seen("a"))
	advance(10 * time.Second)
	assert.False(t, w.Seen("a"))
}

func TestWindow_CapacityEvictsOldest(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 2)

	w.Seen("a")
	w.Seen("b")
	w.Seen("c")

	assert.Equal(t, 2, w.Len())
	assert.True(t, w.Seen("c"))
	assert.True(t, w.Seen("b"))
	assert.False(t, w.Seen("a"), "oldest was evicted")
}

func TestWindow_MinimumSize(t *testing.T) {
	w := New(time.Hour, 0)
	assert.False(t, w.Seen("a"))
	assert.True(t, w.Seen("a"))
	assert.False(t, w.Seen("b"))
	assert.Equal(t, 1, w.Len())
}

func TestWindow_ConcurrentSameKey(t *testing.T) {
	w := New(time.Minute, 1000)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !w.Seen("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}

func TestWindow_ConcurrentDistinctKeys(t *testing.T) {
	w := New(time.Minute, 1000)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, w.Seen(fmt.Sprintf("k%d", i)))
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, w.Len())
}
