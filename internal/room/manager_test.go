// ABOUTME: Tests for room membership and fan-out
// ABOUTME: Covers idempotent join/leave, empty-room drops, isolation, concurrency

package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id     string
	mu     sync.Mutex
	events []Event
	full   bool
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeMember) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func TestManager_BroadcastReachesAllMembers(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	m.Join(a, "r1")
	m.Join(b, "r1")

	turn := chat.NewTurn(chat.RoleUser, "Hello")
	assert.Equal(t, 2, m.Broadcast("r1", turn))

	for _, f := range []*fakeMember{a, b} {
		got := f.received()
		require.Len(t, got, 1, "member %s", f.id)
		assert.Equal(t, EventReceiveMessage, got[0].Name)
		assert.Equal(t, turn, got[0].Payload)
	}
}

func TestManager_JoinIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}
	m.Join(a, "r1")
	m.Join(a, "r1")

	assert.Equal(t, []string{"a"}, m.Members("r1"))
	assert.Equal(t, 1, m.Broadcast("r1", chat.NewTurn(chat.RoleUser, "x")))
	assert.Len(t, a.received(), 1, "double join must not double deliver")
}

func TestManager_LeaveIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}

	m.Leave("a", "r1")
	m.Join(a, "r1")
	m.Leave("a", "r1")
	m.Leave("a", "r1")

	assert.Empty(t, m.Members("r1"))
	assert.Equal(t, 0, m.Rooms())
}

func TestManager_EmptyRoomDropsSilently(t *testing.T) {
	m := NewManager(nil)
	other := &fakeMember{id: "other"}
	m.Join(other, "r-other")

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, m.Broadcast("r-empty", chat.NewTurn(chat.RoleUser, "hi")))
	})
	assert.Empty(t, other.received())
}

func TestManager_RoomsAreIsolated(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	m.Join(a, "r1")
	m.Join(b, "r2")

	m.Broadcast("r1", chat.NewTurn(chat.RoleUser, "for r1"))

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestManager_BroadcastError(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}
	m.Join(a, "r1")

	m.BroadcastError("r1", "Failed to process message")

	got := a.received()
	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Name)
	assert.Equal(t, ErrorPayload{Message: "Failed to process message"}, got[0].Payload)
}

func TestManager_FullMemberIsSkipped(t *testing.T) {
	m := NewManager(nil)
	slow := &fakeMember{id: "slow", full: true}
	fast := &fakeMember{id: "fast"}
	m.Join(slow, "r1")
	m.Join(fast, "r1")

	assert.Equal(t, 1, m.Broadcast("r1", chat.NewTurn(chat.RoleUser, "x")))
	assert.Len(t, fast.received(), 1)
}

func TestManager_LeaveAll(t *testing.T) {
	m := NewManager(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	m.Join(a, "r1")
	m.Join(a, "r2")
	m.Join(b, "r2")

	assert.Equal(t, 2, m.LeaveAll("a"))
	assert.Empty(t, m.Members("r1"))
	assert.Equal(t, []string{"b"}, m.Members("r2"))
	assert.Equal(t, 0, m.LeaveAll("a"))
}

func TestManager_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := &fakeMember{id: fmt.Sprintf("m-%d", i)}
			m.Join(f, "r1")
			m.Broadcast("r1", chat.NewTurn(chat.RoleUser, "x"))
			m.Leave(f.id, "r1")
		}()
	}
	wg.Wait()

	assert.Empty(t, m.Members("r1"))
}
