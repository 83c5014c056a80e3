// ABOUTME: Room membership and non-blocking fan-out of turns and errors
// ABOUTME: Safe for concurrent join, leave and broadcast

package room

import (
	"log/slog"
	"sync"

	"github.com/2389/coven-chat/internal/chat"
)

// Event names delivered to members.
const (
	EventReceiveMessage = "receive-message"
	EventError          = "error"
)

// Event is one server-to-client message.
type Event struct {
	Name    string
	Payload any
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Member is a connection that can join rooms. Send must not block; it
// reports false when the event was not queued.
type Member interface {
	ID() string
	Send(ev Event) bool
}

// Manager maps room IDs to their current members.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Member   // roomID -> memberID -> member
	joined map[string]map[string]struct{} // memberID -> roomIDs
	logger *slog.Logger
}

// NewManager creates an empty manager. Pass nil logger for default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		rooms:  make(map[string]map[string]Member),
		joined: make(map[string]map[string]struct{}),
		logger: logger.With("component", "rooms"),
	}
}

// Join adds m to roomID. Joining twice is a no-op.
func (r *Manager) Join(m Member, roomID string) {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Member)
		r.rooms[roomID] = members
	}
	if _, exists := members[id]; exists {
		return
	}
	members[id] = m

	if _, ok := r.joined[id]; !ok {
		r.joined[id] = make(map[string]struct{})
	}
	r.joined[id][roomID] = struct{}{}

	r.logger.Debug("member joined", "room_id", roomID, "member_id", id)
}

// Leave removes memberID from roomID. Leaving a room never joined is a no-op.
func (r *Manager) Leave(memberID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(memberID, roomID)
}

// LeaveAll removes memberID from every room and returns how many it left.
// Called when a connection goes away.
func (r *Manager) LeaveAll(memberID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.joined[memberID]
	n := len(rooms)
	for roomID := range rooms {
		r.leaveLocked(memberID, roomID)
	}
	return n
}

func (r *Manager) leaveLocked(memberID, roomID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if _, exists := members[memberID]; !exists {
		return
	}
	delete(members, memberID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if rooms, ok := r.joined[memberID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.joined, memberID)
		}
	}

	r.logger.Debug("member left", "room_id", roomID, "member_id", memberID)
}

// Members returns the IDs currently joined to roomID. Nothing on the
// delivery path calls it; it exists for inspection and tests.
func (r *Manager) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// Rooms returns the number of rooms with at least one member.
func (r *Manager) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast delivers turn to every member of roomID as a receive-message
// event and returns how many members accepted it. An empty room drops it.
func (r *Manager) Broadcast(roomID string, turn chat.Turn) int {
	return r.publish(roomID, Event{Name: EventReceiveMessage, Payload: turn})
}

// BroadcastError delivers a room-scoped error event.
func (r *Manager) BroadcastError(roomID, message string) int {
	return r.publish(roomID, Event{Name: EventError, Payload: ErrorPayload{Message: message}})
}

func (r *Manager) publish(roomID string, ev Event) int {
	r.mu.RLock()
	members, ok := r.rooms[roomID]
	if !ok || len(members) == 0 {
		r.mu.RUnlock()
		return 0
	}

	// Copy targets so sends happen outside the lock.
	targets := make([]Member, 0, len(members))
	for _, m := range members {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Send(ev) {
			delivered++
			continue
		}
		r.logger.Debug("dropped event for member",
			"room_id", roomID,
			"member_id", m.ID(),
			"event", ev.Name)
	}
	return delivered
}
