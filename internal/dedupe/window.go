// ABOUTME: Bounded time window of recently seen keys
// ABOUTME: Lets the socket layer drop frames a client resent after reconnecting

// Package dedupe remembers keys for a fixed window so repeated work can be
// skipped.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key  string
	seen time.Time
}

// Window is a thread-safe set of keys that forgets each key ttl after it was
// first recorded, or earlier when more than maxSize keys are held. Keys are
// kept in insertion order, so expired keys are always at the front and are
// dropped lazily on the next call.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	keys    map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

// New creates a window. maxSize below 1 is treated as 1.
func New(ttl time.Duration, maxSize int) *Window {
	return &Window{
		ttl:     ttl,
		maxSize: max(maxSize, 1),
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Seen reports whether key was recorded within the window. A key that was
// not seen is recorded, so of two concurrent calls with the same key exactly
// one returns false.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.keys[key]; ok {
		return true
	}

	for w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.keys[key] = w.order.PushBack(&entry{key: key, seen: now})
	return false
}

// Len returns the number of keys currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(w.now())
	return w.order.Len()
}

func (w *Window) expireLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*entry).seen) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	w.order.Remove(el)
	delete(w.keys, el.Value.(*entry).key)
}
